package generation

import (
	"encoding/json"
	"testing"

	"ride-chat-go/internal/model"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSchemaMessages(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart("weather?")}},
		{Role: model.RoleAssistant, Parts: []model.Part{
			model.TextPart("Checking."),
			{Type: model.PartToolCall, ToolCallID: "c1", ToolName: "getWeather", Args: json.RawMessage(`{}`)},
			{Type: model.PartToolCall, ToolCallID: "orphan", ToolName: "getWeather", Args: json.RawMessage(`{}`)},
			{Type: model.PartToolResult, ToolCallID: "c1", ToolName: "getWeather", Result: json.RawMessage(`{"t":20}`)},
			model.TextPart("It is 20 degrees."),
		}},
	}

	msgs := ToSchemaMessages(history)

	require.Len(t, msgs, 4)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "weather?", msgs[0].Content)

	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "Checking.", msgs[1].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "c1", msgs[1].ToolCalls[0].ID)

	assert.Equal(t, schema.Tool, msgs[2].Role)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.JSONEq(t, `{"t":20}`, msgs[2].Content)

	assert.Equal(t, "It is 20 degrees.", msgs[3].Content)
}

func TestToSchemaMessagesWithImage(t *testing.T) {
	history := []model.Message{{
		Role:  model.RoleUser,
		Parts: []model.Part{model.TextPart("what is this?")},
		Attachments: []model.Attachment{
			{URL: "http://files/a.png", Name: "a.png", ContentType: "image/png"},
		},
	}}

	msgs := ToSchemaMessages(history)

	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].MultiContent, 2)
	assert.Equal(t, "what is this?", msgs[0].MultiContent[0].Text)
	assert.Equal(t, "http://files/a.png", msgs[0].MultiContent[1].ImageURL.URL)
}
