package service

import (
	"context"
	"errors"

	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/log"
)

// HistoryPage 是对话列表的一页。
type HistoryPage struct {
	Chats   []model.Chat `json:"chats"`
	HasMore bool         `json:"hasMore"`
}

// ConversationService 定义了对话管理的业务操作。
type ConversationService interface {
	Delete(ctx context.Context, identity *model.Identity, chatID string) error
	Messages(ctx context.Context, identity *model.Identity, chatID string) ([]model.Message, error)
	UpdateVisibility(ctx context.Context, identity *model.Identity, chatID string, visibility model.Visibility) error
	History(ctx context.Context, identity *model.Identity, limit int, endingBefore string) (*HistoryPage, error)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// owned 返回调用方拥有的对话。
func (s *conversationService) owned(ctx context.Context, identity *model.Identity, chatID string) (*model.Chat, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeChat)
	}
	if chatID == "" {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("missing chat id"))
	}
	chat, err := s.repo.Get(ctx, chatID)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return nil, apperr.NotFound(apperr.ScopeChat)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeChat, err)
	}
	if chat.UserID != identity.UserID {
		return nil, apperr.Forbidden(apperr.ScopeChat)
	}
	return chat, nil
}

// Delete 删除对话及其全部消息，仅所有者可以删除。
func (s *conversationService) Delete(ctx context.Context, identity *model.Identity, chatID string) error {
	if _, err := s.owned(ctx, identity, chatID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, chatID); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return apperr.NotFound(apperr.ScopeChat)
		}
		return apperr.Internal(apperr.ScopeChat, err)
	}
	log.Infow("chat deleted", "chatId", chatID, "userId", identity.UserID)
	return nil
}

// Messages 返回对话的全部消息。公开对话对所有已登录身份可读。
func (s *conversationService) Messages(ctx context.Context, identity *model.Identity, chatID string) ([]model.Message, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeChat)
	}
	chat, err := s.repo.Get(ctx, chatID)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return nil, apperr.NotFound(apperr.ScopeChat)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeChat, err)
	}
	if chat.Visibility == model.VisibilityPrivate && chat.UserID != identity.UserID {
		return nil, apperr.Forbidden(apperr.ScopeChat)
	}
	messages, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeChat, err)
	}
	return messages, nil
}

func (s *conversationService) UpdateVisibility(ctx context.Context, identity *model.Identity, chatID string, visibility model.Visibility) error {
	if !visibility.Valid() {
		return apperr.BadRequest(apperr.ScopeAPI, errors.New("invalid visibility"))
	}
	if _, err := s.owned(ctx, identity, chatID); err != nil {
		return err
	}
	if err := s.repo.UpdateVisibility(ctx, chatID, visibility); err != nil {
		return apperr.Internal(apperr.ScopeChat, err)
	}
	return nil
}

// History 分页返回调用方自己的对话，按创建时间倒序。
func (s *conversationService) History(ctx context.Context, identity *model.Identity, limit int, endingBefore string) (*HistoryPage, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeHistory)
	}
	if limit < 0 || limit > 100 {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("limit must be between 1 and 100"))
	}
	chats, hasMore, err := s.repo.ListByUser(ctx, identity.UserID, limit, endingBefore)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return nil, apperr.BadRequest(apperr.ScopeAPI, errors.New("unknown cursor"))
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeHistory, err)
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	return &HistoryPage{Chats: chats, HasMore: hasMore}, nil
}
