package model

import "time"

// DocumentKind 是工具生成的文档类型。
type DocumentKind string

const (
	DocumentKindText DocumentKind = "text"
	DocumentKindCode DocumentKind = "code"
)

// Document 是工具生成的文档的一个版本，同一 ID 的多行按 Seq 递增即为版本历史。
type Document struct {
	Seq       uint64       `gorm:"primaryKey;autoIncrement" json:"-"`
	ID        string       `gorm:"type:varchar(64);index;not null" json:"id"`
	UserID    uint         `gorm:"index;not null" json:"userId"`
	Title     string       `gorm:"type:varchar(255);not null" json:"title"`
	Kind      DocumentKind `gorm:"type:varchar(16);not null" json:"kind"`
	Content   string       `gorm:"type:text" json:"content"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"createdAt"`
}

func (Document) TableName() string {
	return "documents"
}

// Suggestion 是针对文档的一条修改建议。
type Suggestion struct {
	ID            string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	DocumentID    string    `gorm:"type:varchar(64);index;not null" json:"documentId"`
	UserID        uint      `gorm:"index;not null" json:"userId"`
	OriginalText  string    `gorm:"type:text" json:"originalText"`
	SuggestedText string    `gorm:"type:text" json:"suggestedText"`
	Description   string    `gorm:"type:text" json:"description"`
	IsResolved    bool      `gorm:"not null;default:false" json:"isResolved"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Suggestion) TableName() string {
	return "suggestions"
}
