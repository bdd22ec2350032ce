package repository

import (
	"context"
	"errors"
	"fmt"

	"ride-chat-go/internal/model"

	"gorm.io/gorm"
)

// ErrDocumentNotFound 表示文档不存在。
var ErrDocumentNotFound = errors.New("document not found")

// DocumentRepository 保存工具生成的文档版本与修改建议。
type DocumentRepository interface {
	SaveVersion(ctx context.Context, doc *model.Document) error
	Latest(ctx context.Context, documentID string) (*model.Document, error)
	Versions(ctx context.Context, documentID string) ([]model.Document, error)
	SaveSuggestions(ctx context.Context, suggestions []*model.Suggestion) error
	ListSuggestions(ctx context.Context, documentID string) ([]model.Suggestion, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// SaveVersion 追加文档的一个新版本。
func (r *documentRepository) SaveVersion(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// Latest 返回文档的最新版本。
func (r *documentRepository) Latest(ctx context.Context, documentID string) (*model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", documentID).Order("seq DESC").Limit(1).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return &docs[0], nil
}

// Versions 按时间顺序返回文档的所有版本。
func (r *documentRepository) Versions(ctx context.Context, documentID string) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", documentID).Order("seq ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions of document %s: %w", documentID, err)
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return docs, nil
}

func (r *documentRepository) SaveSuggestions(ctx context.Context, suggestions []*model.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&suggestions).Error; err != nil {
		return fmt.Errorf("failed to save suggestions: %w", err)
	}
	return nil
}

func (r *documentRepository) ListSuggestions(ctx context.Context, documentID string) ([]model.Suggestion, error) {
	var suggestions []model.Suggestion
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("created_at ASC").Find(&suggestions).Error; err != nil {
		return nil, fmt.Errorf("failed to list suggestions of document %s: %w", documentID, err)
	}
	return suggestions, nil
}
