package stream

import (
	"context"
	"testing"
	"time"

	"ride-chat-go/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.StreamConfig {
	return config.StreamConfig{RelayEnabled: true, Retention: time.Minute, BlockTimeout: 50 * time.Millisecond}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func drain(t *testing.T, ch <-chan []byte) []string {
	t.Helper()
	var frames []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return frames
			}
			frames = append(frames, string(f))
		case <-timeout:
			t.Fatal("stream did not finish in time")
			return frames
		}
	}
}

func feed(frames ...string) <-chan []byte {
	ch := make(chan []byte, len(frames))
	for _, f := range frames {
		ch <- []byte(f)
	}
	close(ch)
	return ch
}

func TestRelayReplayAfterFinish(t *testing.T) {
	_, rdb := newRedis(t)
	tr := NewTransport(context.Background(), rdb, testConfig())
	require.True(t, tr.RelayAvailable())

	got := drain(t, tr.Open(context.Background(), "s1", feed("a", "b", "c")))
	assert.Equal(t, []string{"a", "b", "c"}, got)

	resumed, err := tr.Resume(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, drain(t, resumed))
}

func TestRelayLiveFollow(t *testing.T) {
	_, rdb := newRedis(t)
	tr := NewTransport(context.Background(), rdb, testConfig())

	source := make(chan []byte)
	primary := tr.Open(context.Background(), "live", source)

	source <- []byte("first")
	assert.Equal(t, "first", string(<-primary))

	resumed, err := tr.Resume(context.Background(), "live")
	require.NoError(t, err)

	done := make(chan []string)
	go func() { done <- drain(t, resumed) }()

	source <- []byte("second")
	assert.Equal(t, "second", string(<-primary))
	close(source)
	drain(t, primary)

	assert.Equal(t, []string{"first", "second"}, <-done)
}

func TestRelaySetsRetention(t *testing.T) {
	mr, rdb := newRedis(t)
	tr := NewTransport(context.Background(), rdb, testConfig())
	drain(t, tr.Open(context.Background(), "ttl", feed("x")))

	assert.Equal(t, time.Minute, mr.TTL(relayKey("ttl")))

	mr.FastForward(2 * time.Minute)
	_, err := tr.Resume(context.Background(), "ttl")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestResumeUnknownStream(t *testing.T) {
	_, rdb := newRedis(t)
	tr := NewTransport(context.Background(), rdb, testConfig())

	_, err := tr.Resume(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestDirectMode(t *testing.T) {
	tr := NewTransport(context.Background(), nil, config.StreamConfig{})
	assert.False(t, tr.RelayAvailable())

	assert.Equal(t, []string{"a", "b"}, drain(t, tr.Open(context.Background(), "d1", feed("a", "b"))))

	_, err := tr.Resume(context.Background(), "d1")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestRelayUnavailableFallsBackToDirect(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	tr := NewTransport(context.Background(), rdb, testConfig())
	assert.False(t, tr.RelayAvailable())
	assert.Equal(t, []string{"a"}, drain(t, tr.Open(context.Background(), "x", feed("a"))))
}

func TestConsumerGoneKeepsDraining(t *testing.T) {
	_, rdb := newRedis(t)
	tr := NewTransport(context.Background(), rdb, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	source := make(chan []byte)
	out := tr.Open(ctx, "gone", source)
	cancel()

	// 消费者已离开，生产端仍然必须能把帧全部送出
	for _, f := range []string{"1", "2", "3"} {
		select {
		case source <- []byte(f):
		case <-time.After(2 * time.Second):
			t.Fatal("producer blocked after consumer left")
		}
	}
	close(source)
	drain(t, out)

	resumed, err := tr.Resume(context.Background(), "gone")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, drain(t, resumed))
}

func TestRelayWriteFailureWithdrawsStream(t *testing.T) {
	mr, rdb := newRedis(t)
	tr := NewTransport(context.Background(), rdb, testConfig())

	source := make(chan []byte)
	primary := tr.Open(context.Background(), "broken", source)

	source <- []byte("a")
	assert.Equal(t, "a", string(<-primary))

	mr.SetError("ERR injected")
	source <- []byte("b")
	assert.Equal(t, "b", string(<-primary))
	mr.SetError("")

	source <- []byte("c")
	assert.Equal(t, "c", string(<-primary))
	close(source)
	assert.Empty(t, drain(t, primary))

	// 主消费者不受影响，但不完整的中继流不能再被恢复
	assert.False(t, mr.Exists(relayKey("broken")))
	_, err := tr.Resume(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestRelayStartFailureWritesNothing(t *testing.T) {
	mr, rdb := newRedis(t)
	tr := NewTransport(context.Background(), rdb, testConfig())

	mr.SetError("ERR injected")
	primary := tr.Open(context.Background(), "nostart", feed("a", "b"))
	mr.SetError("")

	assert.Equal(t, []string{"a", "b"}, drain(t, primary))
	assert.False(t, mr.Exists(relayKey("nostart")))
	_, err := tr.Resume(context.Background(), "nostart")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}
