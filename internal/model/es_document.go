package model

// TurnDocument 是索引到 Elasticsearch 的一个已完成回合。
type TurnDocument struct {
	TurnID        string    `json:"turn_id"`
	ChatID        string    `json:"chat_id"`
	UserID        uint      `json:"user_id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	CreatedAt     LocalTime `json:"created_at"`
}

// SearchHit 定义了返回给前端的搜索结果结构。
type SearchHit struct {
	ChatID        string    `json:"chatId"`
	TurnID        string    `json:"turnId"`
	UserText      string    `json:"userText"`
	AssistantText string    `json:"assistantText"`
	Score         float64   `json:"score"`
	CreatedAt     LocalTime `json:"createdAt"`
}
