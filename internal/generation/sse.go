package generation

import (
	"encoding/json"
	"fmt"

	"ride-chat-go/internal/model"
)

// Frame 名称，客户端按 event 字段分派。
const (
	FrameStart         = "start"
	FrameAppendMessage = "append-message"
)

// EncodeFrame 以 SSE 格式编码一帧：event 行 + data 行 + 空行。
func EncodeFrame(event string, payload interface{}) []byte {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte(`{"message":"json marshal failed"}`)
		event = string(EventFailed)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, b))
}

// EncodeEvent 把非终止事件编码为 SSE 帧；终止事件由编排层在持久化之后自行编码。
func EncodeEvent(ev Event) []byte {
	switch ev.Type {
	case EventTextDelta:
		return EncodeFrame(string(ev.Type), map[string]string{"text": ev.Text})
	case EventToolCallStarted:
		return EncodeFrame(string(ev.Type), map[string]interface{}{
			"toolCallId": ev.ToolCallID,
			"toolName":   ev.ToolName,
			"args":       ev.Args,
		})
	case EventToolCallFinished:
		return EncodeFrame(string(ev.Type), map[string]interface{}{
			"toolCallId": ev.ToolCallID,
			"toolName":   ev.ToolName,
			"result":     ev.Result,
		})
	case EventData:
		return EncodeFrame(string(ev.Type), ev.Data)
	default:
		return nil
	}
}

// FinishFrame 在助手消息持久化之后发送。
func FinishFrame(messageID string, steps int, incomplete bool) []byte {
	reason := "stop"
	if incomplete {
		reason = "length"
	}
	return EncodeFrame(string(EventFinished), map[string]interface{}{
		"messageId":    messageID,
		"steps":        steps,
		"finishReason": reason,
	})
}

// ErrorFrame 携带 "kind:scope" 错误码与面向用户的描述。
func ErrorFrame(code, message string) []byte {
	return EncodeFrame(string(EventFailed), map[string]string{"code": code, "message": message})
}

// AppendMessageFrame 用于恢复时直接补发一条已持久化的消息。
func AppendMessageFrame(m *model.Message) []byte {
	return EncodeFrame(FrameAppendMessage, map[string]interface{}{"message": m})
}
