package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ride-chat-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	calls int
	err   error
}

func (p *countingProcessor) Process(_ context.Context, _ tasks.TurnNotification) error {
	p.calls++
	return p.err
}

func TestHandleMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	body, err := json.Marshal(tasks.TurnNotification{TurnID: "t1", ChatID: "c1"})
	require.NoError(t, err)

	t.Run("malformed is committed", func(t *testing.T) {
		p := &countingProcessor{}
		assert.True(t, handleMessage(ctx, rdb, p, []byte("{")))
		assert.Zero(t, p.calls)
	})

	t.Run("failures retry until threshold", func(t *testing.T) {
		p := &countingProcessor{err: errors.New("es down")}
		assert.False(t, handleMessage(ctx, rdb, p, body))
		assert.False(t, handleMessage(ctx, rdb, p, body))
		assert.True(t, handleMessage(ctx, rdb, p, body))
		assert.Equal(t, 3, p.calls)
	})

	t.Run("success clears attempts", func(t *testing.T) {
		mr.Set("kafka:attempts:t1", "2")
		p := &countingProcessor{}
		assert.True(t, handleMessage(ctx, rdb, p, body))
		assert.False(t, mr.Exists("kafka:attempts:t1"))
	})
}

func TestProduceTurnWithoutProducer(t *testing.T) {
	producer = nil
	assert.ErrorIs(t, ProduceTurn(context.Background(), tasks.TurnNotification{}), ErrProducerNotInitialized)
}
