package service

import (
	"context"
	"fmt"

	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
)

// ConversationAssembler 构建一次回合交给模型的有序消息列表。
type ConversationAssembler interface {
	// BuildHistory 读取已持久化的消息并在末尾追加本次的用户消息。不会写入存储。
	BuildHistory(ctx context.Context, chatID string, incoming *model.Message) ([]model.Message, error)
}

type conversationAssembler struct {
	repo repository.ConversationRepository
}

// NewConversationAssembler 创建一个新的 ConversationAssembler 实例。
func NewConversationAssembler(repo repository.ConversationRepository) ConversationAssembler {
	return &conversationAssembler{repo: repo}
}

func (a *conversationAssembler) BuildHistory(ctx context.Context, chatID string, incoming *model.Message) ([]model.Message, error) {
	prior, err := a.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]model.Message, 0, len(prior)+1)
	history = append(history, prior...)
	if incoming != nil {
		history = append(history, *incoming)
	}
	return history, nil
}
