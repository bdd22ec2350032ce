package generation

import (
	"encoding/json"
	"strings"
	"testing"

	"ride-chat-go/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFrame(t *testing.T, frame []byte) (string, map[string]interface{}) {
	t.Helper()
	s := string(frame)
	require.True(t, strings.HasSuffix(s, "\n\n"))
	lines := strings.Split(strings.TrimSuffix(s, "\n\n"), "\n")
	require.Len(t, lines, 2)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &payload))
	return strings.TrimPrefix(lines[0], "event: "), payload
}

func TestEncodeEvent(t *testing.T) {
	name, payload := decodeFrame(t, EncodeEvent(Event{Type: EventTextDelta, Text: "hi"}))
	assert.Equal(t, "text-delta", name)
	assert.Equal(t, "hi", payload["text"])

	name, payload = decodeFrame(t, EncodeEvent(Event{Type: EventData, Data: &tools.DataEvent{Type: "id", Content: "doc-1"}}))
	assert.Equal(t, "data", name)
	assert.Equal(t, "doc-1", payload["content"])

	assert.Nil(t, EncodeEvent(Event{Type: EventFinished}))
}

func TestTerminalFrames(t *testing.T) {
	name, payload := decodeFrame(t, FinishFrame("m1", 2, false))
	assert.Equal(t, "finish", name)
	assert.Equal(t, "m1", payload["messageId"])
	assert.Equal(t, "stop", payload["finishReason"])

	_, payload = decodeFrame(t, FinishFrame("m1", 5, true))
	assert.Equal(t, "length", payload["finishReason"])

	name, payload = decodeFrame(t, ErrorFrame("rate_limit:chat", "slow down"))
	assert.Equal(t, "error", name)
	assert.Equal(t, "rate_limit:chat", payload["code"])
}
