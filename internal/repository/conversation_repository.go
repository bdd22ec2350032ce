// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"ride-chat-go/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrConversationNotFound 表示对话不存在。
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationExists 表示以相同 ID 创建对话时发生冲突。
	ErrConversationExists = errors.New("conversation already exists")
	// ErrStreamSessionNotFound 表示流会话不存在。
	ErrStreamSessionNotFound = errors.New("stream session not found")
)

// ConversationRepository 定义了对话、消息与流会话的持久化操作。
type ConversationRepository interface {
	Get(ctx context.Context, chatID string) (*model.Chat, error)
	Create(ctx context.Context, chat *model.Chat) error
	AppendMessages(ctx context.Context, chatID string, messages []*model.Message) error
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	LastMessage(ctx context.Context, chatID string) (*model.Message, error)
	Delete(ctx context.Context, chatID string) error
	UpdateVisibility(ctx context.Context, chatID string, visibility model.Visibility) error
	ListByUser(ctx context.Context, userID uint, limit int, endingBefore string) ([]model.Chat, bool, error)
	CreateStreamSession(ctx context.Context, chatID, streamID string) error
	GetStreamSession(ctx context.Context, streamID string) (*model.StreamSession, error)
	LatestStreamSession(ctx context.Context, chatID string) (*model.StreamSession, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Get 按 ID 获取对话，不存在时返回 ErrConversationNotFound。
func (r *conversationRepository) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	var chat model.Chat
	err := r.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", chatID, err)
	}
	return &chat, nil
}

// Create 创建对话。ID 已存在时返回 ErrConversationExists，即使是并发创建导致的冲突。
func (r *conversationRepository) Create(ctx context.Context, chat *model.Chat) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Chat{}).Where("id = ?", chat.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check chat %s: %w", chat.ID, err)
		}
		if count > 0 {
			return ErrConversationExists
		}
		if err := tx.Create(chat).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConversationExists
			}
			return fmt.Errorf("failed to create chat %s: %w", chat.ID, err)
		}
		return nil
	})
}

// AppendMessages 在一个事务中追加一批消息，要么全部可见，要么全部不可见。
func (r *conversationRepository) AppendMessages(ctx context.Context, chatID string, messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check chat %s: %w", chatID, err)
		}
		if count == 0 {
			return ErrConversationNotFound
		}
		for _, m := range messages {
			m.ChatID = chatID
		}
		if err := tx.Create(&messages).Error; err != nil {
			return fmt.Errorf("failed to append messages to chat %s: %w", chatID, err)
		}
		return nil
	})
}

// ListMessages 按写入顺序返回对话中的全部消息。
func (r *conversationRepository) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("seq ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages of chat %s: %w", chatID, err)
	}
	return messages, nil
}

// LastMessage 返回对话的最后一条消息，没有消息时返回 (nil, nil)。
func (r *conversationRepository) LastMessage(ctx context.Context, chatID string) (*model.Message, error) {
	var messages []model.Message
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("seq DESC").Limit(1).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to get last message of chat %s: %w", chatID, err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	return &messages[0], nil
}

// Delete 删除对话及其消息和流会话。
func (r *conversationRepository) Delete(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages of chat %s: %w", chatID, err)
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.StreamSession{}).Error; err != nil {
			return fmt.Errorf("failed to delete stream sessions of chat %s: %w", chatID, err)
		}
		res := tx.Where("id = ?", chatID).Delete(&model.Chat{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete chat %s: %w", chatID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
}

// UpdateVisibility 修改对话的可见性。
func (r *conversationRepository) UpdateVisibility(ctx context.Context, chatID string, visibility model.Visibility) error {
	res := r.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", chatID).Update("visibility", visibility)
	if res.Error != nil {
		return fmt.Errorf("failed to update visibility of chat %s: %w", chatID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ListByUser 按创建时间倒序分页返回用户的对话。endingBefore 为上一页最后一条对话的 ID。
// 第二个返回值表示是否还有更多数据。
func (r *conversationRepository) ListByUser(ctx context.Context, userID uint, limit int, endingBefore string) ([]model.Chat, bool, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if endingBefore != "" {
		cursor, err := r.Get(ctx, endingBefore)
		if err != nil {
			return nil, false, err
		}
		q = q.Where("created_at < ?", cursor.CreatedAt)
	}

	var chats []model.Chat
	if err := q.Order("created_at DESC").Limit(limit + 1).Find(&chats).Error; err != nil {
		return nil, false, fmt.Errorf("failed to list chats of user %d: %w", userID, err)
	}
	hasMore := len(chats) > limit
	if hasMore {
		chats = chats[:limit]
	}
	return chats, hasMore, nil
}

// CreateStreamSession 为对话记录一个新的流 ID。
func (r *conversationRepository) CreateStreamSession(ctx context.Context, chatID, streamID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check chat %s: %w", chatID, err)
		}
		if count == 0 {
			return ErrConversationNotFound
		}
		if err := tx.Create(&model.StreamSession{ID: streamID, ChatID: chatID}).Error; err != nil {
			return fmt.Errorf("failed to create stream session %s: %w", streamID, err)
		}
		return nil
	})
}

// GetStreamSession 按流 ID 查询流会话。
func (r *conversationRepository) GetStreamSession(ctx context.Context, streamID string) (*model.StreamSession, error) {
	var session model.StreamSession
	err := r.db.WithContext(ctx).Where("id = ?", streamID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStreamSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream session %s: %w", streamID, err)
	}
	return &session, nil
}

// LatestStreamSession 返回对话最近一次创建的流会话。
func (r *conversationRepository) LatestStreamSession(ctx context.Context, chatID string) (*model.StreamSession, error) {
	var sessions []model.StreamSession
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("seq DESC").Limit(1).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to get latest stream session of chat %s: %w", chatID, err)
	}
	if len(sessions) == 0 {
		return nil, ErrStreamSessionNotFound
	}
	return &sessions[0], nil
}
