// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Visibility 控制对话对其他身份是否可见。
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid 判断可见性取值是否合法。
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Role 是消息的发送方角色。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType 是消息片段的类型。
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part 是消息内容的一个有序片段。
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// TextPart 创建一个文本片段。
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// Attachment 是消息引用的外部文件，例如上传到对象存储的图片。
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// Chat 是一段对话，归属于唯一的用户。
type Chat struct {
	ID         string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"userId"`
	Title      string     `gorm:"type:varchar(255);not null" json:"title"`
	Visibility Visibility `gorm:"type:varchar(16);not null" json:"visibility"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

func (Chat) TableName() string {
	return "chats"
}

// Message 是对话中的一条消息。Seq 是自增主键，用于在同一对话内给出稳定的全序。
type Message struct {
	Seq         uint64                          `gorm:"primaryKey;autoIncrement" json:"-"`
	ID          string                          `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	ChatID      string                          `gorm:"type:varchar(64);index;not null" json:"chatId"`
	Role        Role                            `gorm:"type:varchar(16);not null" json:"role"`
	Parts       datatypes.JSONSlice[Part]       `json:"parts"`
	Attachments datatypes.JSONSlice[Attachment] `json:"attachments"`
	// Incomplete 标记因超时等原因被截断的助手消息。
	Incomplete bool      `gorm:"not null;default:false" json:"incomplete,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// FirstText 返回消息中第一个文本片段的内容。
func (m *Message) FirstText() string {
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// StreamSession 记录一次回合生成所使用的流 ID，供之后恢复读取。
type StreamSession struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	ChatID    string    `gorm:"type:varchar(64);index;not null" json:"chatId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (StreamSession) TableName() string {
	return "stream_sessions"
}
