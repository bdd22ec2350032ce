// Package tasks 定义了回合结束后投递到外部系统的消息结构。
package tasks

import (
	"time"

	"ride-chat-go/internal/model"
)

// TurnNotification 描述一次已完成的回合。Message 为用户消息片段，Assistant 为助手消息片段。
type TurnNotification struct {
	TurnID    string       `json:"turn_id"`
	ChatID    string       `json:"chat_id"`
	UserID    uint         `json:"user_id"`
	Message   []model.Part `json:"message"`
	Assistant []model.Part `json:"assistant"`
	Timestamp time.Time    `json:"timestamp"`
}

// UserText 拼接用户消息中的文本片段。
func (n TurnNotification) UserText() string {
	return joinText(n.Message)
}

// AssistantText 拼接助手消息中的文本片段。
func (n TurnNotification) AssistantText() string {
	return joinText(n.Assistant)
}

func joinText(parts []model.Part) string {
	var s string
	for _, p := range parts {
		if p.Type != model.PartText || p.Text == "" {
			continue
		}
		if s != "" {
			s += "\n"
		}
		s += p.Text
	}
	return s
}
