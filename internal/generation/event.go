// Package generation 实现多步的模型生成循环：流式调用模型，执行工具，把结果反馈给模型，直到得到最终回答或步数耗尽。
package generation

import (
	"encoding/json"

	"ride-chat-go/internal/model"
	"ride-chat-go/internal/tools"
)

// EventType 是生成事件的类型。
type EventType string

const (
	EventTextDelta        EventType = "text-delta"
	EventToolCallStarted  EventType = "tool-call"
	EventToolCallFinished EventType = "tool-result"
	EventData             EventType = "data"
	EventFinished         EventType = "finish"
	EventFailed           EventType = "error"
)

// Event 是生成循环产出的一个事件。Finished 与 Failed 是终止事件，之后事件通道会被关闭。
type Event struct {
	Type EventType

	// text-delta
	Text string

	// tool-call / tool-result
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	Result     json.RawMessage

	// data
	Data *tools.DataEvent

	// finish / error。失败时 Message 为截至目前已生成的部分内容。
	Message *model.Message
	Steps   int
	Err     error
	Timeout bool
	// Incomplete 表示步数耗尽时模型仍在请求工具。
	Incomplete bool
}

// partsBuilder 按时间顺序累积助手消息的片段，相邻文本合并为一个片段。
type partsBuilder struct {
	parts []model.Part
}

func (b *partsBuilder) text(s string) {
	if s == "" {
		return
	}
	if n := len(b.parts); n > 0 && b.parts[n-1].Type == model.PartText {
		b.parts[n-1].Text += s
		return
	}
	b.parts = append(b.parts, model.TextPart(s))
}

func (b *partsBuilder) toolCall(id, name string, args json.RawMessage) {
	b.parts = append(b.parts, model.Part{Type: model.PartToolCall, ToolCallID: id, ToolName: name, Args: args})
}

func (b *partsBuilder) toolResult(id, name string, result json.RawMessage) {
	b.parts = append(b.parts, model.Part{Type: model.PartToolResult, ToolCallID: id, ToolName: name, Result: result})
}

func (b *partsBuilder) message() *model.Message {
	parts := make([]model.Part, len(b.parts))
	copy(parts, b.parts)
	return &model.Message{Role: model.RoleAssistant, Parts: parts}
}
