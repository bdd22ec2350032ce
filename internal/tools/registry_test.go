package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ride-chat-go/internal/model"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	result json.RawMessage
	err    error
	panic  bool
	seen   json.RawMessage
}

func (s *stubTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{Name: s.name, Desc: "stub"}
}

func (s *stubTool) Invoke(_ context.Context, args json.RawMessage, _ *TurnContext) (json.RawMessage, error) {
	s.seen = args
	if s.panic {
		panic("boom")
	}
	return s.result, s.err
}

func TestActiveTools(t *testing.T) {
	r := NewRegistry("chat-model-reasoning",
		&stubTool{name: "b"}, &stubTool{name: "a"},
	)

	infos := r.ActiveTools("chat-model")
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "b", infos[1].Name)

	assert.Empty(t, r.ActiveTools("chat-model-reasoning"))
}

func TestInvoke(t *testing.T) {
	ok := &stubTool{name: "ok", result: json.RawMessage(`{"v":1}`)}
	failing := &stubTool{name: "bad", err: errors.New("upstream down")}
	panicky := &stubTool{name: "panicky", panic: true}
	r := NewRegistry("reasoning", ok, failing, panicky)
	tc := &TurnContext{Identity: model.Identity{UserID: 1}}

	res, err := r.Invoke(context.Background(), "ok", nil, tc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(res))
	assert.JSONEq(t, `{}`, string(ok.seen))

	_, err = r.Invoke(context.Background(), "bad", json.RawMessage(`{}`), tc)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Name("bad"), te.Tool)

	_, err = r.Invoke(context.Background(), "panicky", json.RawMessage(`{}`), tc)
	require.ErrorAs(t, err, &te)

	_, err = r.Invoke(context.Background(), "missing", json.RawMessage(`{}`), tc)
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrUnknownTool)
}
