package generation

import (
	"strings"

	"ride-chat-go/internal/model"

	"github.com/cloudwego/eino/schema"
)

// ToSchemaMessages 把存储的消息转换为模型输入。助手消息按片段顺序展开为
// "助手(文本+工具调用) -> 工具结果" 的序列；没有结果的工具调用会被丢弃。
func ToSchemaMessages(history []model.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for i := range history {
		m := &history[i]
		switch m.Role {
		case model.RoleUser:
			out = append(out, userMessage(m))
		case model.RoleAssistant:
			out = append(out, assistantMessages(m)...)
		}
	}
	return out
}

func userMessage(m *model.Message) *schema.Message {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == model.PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	text := strings.Join(texts, "\n")

	var images []model.Attachment
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			images = append(images, a)
		}
	}
	if len(images) == 0 {
		return schema.UserMessage(text)
	}

	parts := make([]schema.ChatMessagePart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: text})
	}
	for _, a := range images {
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: a.URL, MIMEType: a.ContentType},
		})
	}
	return &schema.Message{Role: schema.User, MultiContent: parts}
}

func assistantMessages(m *model.Message) []*schema.Message {
	var (
		out     []*schema.Message
		cur     *schema.Message
		results []*schema.Message
	)
	flush := func() {
		if cur != nil {
			answered := make(map[string]bool, len(results))
			for _, r := range results {
				answered[r.ToolCallID] = true
			}
			calls := cur.ToolCalls[:0]
			for _, c := range cur.ToolCalls {
				if answered[c.ID] {
					calls = append(calls, c)
				}
			}
			cur.ToolCalls = calls
			if cur.Content != "" || len(cur.ToolCalls) > 0 {
				out = append(out, cur)
			}
		}
		out = append(out, results...)
		cur, results = nil, nil
	}

	for _, p := range m.Parts {
		switch p.Type {
		case model.PartText, model.PartToolCall:
			if len(results) > 0 {
				flush()
			}
			if cur == nil {
				cur = &schema.Message{Role: schema.Assistant}
			}
			if p.Type == model.PartText {
				cur.Content += p.Text
			} else {
				cur.ToolCalls = append(cur.ToolCalls, schema.ToolCall{
					ID:       p.ToolCallID,
					Type:     "function",
					Function: schema.FunctionCall{Name: p.ToolName, Arguments: string(p.Args)},
				})
			}
		case model.PartToolResult:
			results = append(results, schema.ToolMessage(string(p.Result), p.ToolCallID))
		}
	}
	flush()
	return out
}
