// Package pipeline 定义了回合通知的离线处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"ride-chat-go/internal/model"
	"ride-chat-go/pkg/log"
	"ride-chat-go/pkg/tasks"
)

// IndexFunc 把一个回合写入搜索索引。
type IndexFunc func(ctx context.Context, doc model.TurnDocument) error

// TurnIndexer 把 Kafka 上的回合通知转换为搜索文档。
type TurnIndexer struct {
	index IndexFunc
}

// NewTurnIndexer 创建一个新的 TurnIndexer 实例。
func NewTurnIndexer(index IndexFunc) *TurnIndexer {
	return &TurnIndexer{index: index}
}

// Process 处理一条回合通知。
func (p *TurnIndexer) Process(ctx context.Context, n tasks.TurnNotification) error {
	if n.TurnID == "" || n.ChatID == "" {
		return errors.New("turn notification missing ids")
	}
	doc := model.TurnDocument{
		TurnID:        n.TurnID,
		ChatID:        n.ChatID,
		UserID:        n.UserID,
		UserText:      n.UserText(),
		AssistantText: n.AssistantText(),
		CreatedAt:     model.LocalTime(n.Timestamp),
	}
	if doc.UserText == "" && doc.AssistantText == "" {
		log.Infof("[TurnIndexer] 回合 %s 没有文本内容，跳过", n.TurnID)
		return nil
	}
	if err := p.index(ctx, doc); err != nil {
		return fmt.Errorf("index turn %s: %w", n.TurnID, err)
	}
	log.Infof("[TurnIndexer] 回合 %s 已写入索引, chatId: %s", n.TurnID, n.ChatID)
	return nil
}
