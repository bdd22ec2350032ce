package service

import (
	"context"
	"errors"

	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
	"ride-chat-go/pkg/apperr"
)

// DocumentService 定义了工具生成文档的读取操作。
type DocumentService interface {
	Versions(ctx context.Context, identity *model.Identity, documentID string) ([]model.Document, error)
	Suggestions(ctx context.Context, identity *model.Identity, documentID string) ([]model.Suggestion, error)
}

type documentService struct {
	repo repository.DocumentRepository
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(repo repository.DocumentRepository) DocumentService {
	return &documentService{repo: repo}
}

// Versions 返回文档的全部版本，仅所有者可读。
func (s *documentService) Versions(ctx context.Context, identity *model.Identity, documentID string) ([]model.Document, error) {
	if documentID == "" {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("missing document id"))
	}
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeDocument)
	}
	docs, err := s.repo.Versions(ctx, documentID)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return nil, apperr.NotFound(apperr.ScopeDocument)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeDocument, err)
	}
	if docs[0].UserID != identity.UserID {
		return nil, apperr.Forbidden(apperr.ScopeDocument)
	}
	return docs, nil
}

// Suggestions 返回文档的修改建议。文档不存在时返回空列表。
func (s *documentService) Suggestions(ctx context.Context, identity *model.Identity, documentID string) ([]model.Suggestion, error) {
	if documentID == "" {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("missing document id"))
	}
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeDocument)
	}
	suggestions, err := s.repo.ListSuggestions(ctx, documentID)
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeDocument, err)
	}
	if len(suggestions) > 0 && suggestions[0].UserID != identity.UserID {
		return nil, apperr.Forbidden(apperr.ScopeDocument)
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	return suggestions, nil
}
