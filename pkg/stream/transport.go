// Package stream 负责把一次回合的帧序列送达客户端。
// Relay 模式下帧同时写入 Redis Stream，断线的客户端可以凭流 ID 重新读取；
// Direct 模式下帧只交给发起请求的那个消费者。
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-chat-go/internal/config"
	"ride-chat-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// ErrStreamNotFound 表示流不存在、已过期，或当前运行在 Direct 模式。
var ErrStreamNotFound = errors.New("stream not found")

const (
	fieldStart = "s"
	fieldData  = "d"
	fieldEnd   = "e"

	writeTimeout = 3 * time.Second
)

// Transport 是流的投递层。
type Transport interface {
	// Open 开始投递 source 中的帧，返回给当前消费者的通道。
	// 消费者 ctx 结束后生产端继续把 source 读完，帧被丢弃（Relay 模式下仍写入 Redis）。
	Open(ctx context.Context, streamID string, source <-chan []byte) <-chan []byte
	// Resume 从头重放一个流，并跟随直到流结束。
	Resume(ctx context.Context, streamID string) (<-chan []byte, error)
	RelayAvailable() bool
}

type transport struct {
	rdb       *redis.Client
	relay     bool
	retention time.Duration
	block     time.Duration
}

// NewTransport 创建投递层。Relay 是否可用只在这里判断一次。
func NewTransport(ctx context.Context, rdb *redis.Client, cfg config.StreamConfig) Transport {
	t := &transport{rdb: rdb, retention: cfg.Retention, block: cfg.BlockTimeout}
	if t.retention <= 0 {
		t.retention = 10 * time.Minute
	}
	if t.block <= 0 {
		t.block = 5 * time.Second
	}
	if !cfg.RelayEnabled || rdb == nil {
		log.Info("[Stream] 可恢复流未启用，使用 Direct 模式")
		return t
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warnf("[Stream] Redis 不可用，可恢复流降级为 Direct 模式: %v", err)
		return t
	}
	t.relay = true
	log.Info("[Stream] 可恢复流已启用 (Redis Stream)")
	return t
}

func relayKey(streamID string) string {
	return fmt.Sprintf("stream:relay:%s", streamID)
}

func (t *transport) RelayAvailable() bool {
	return t.relay
}

func (t *transport) Open(ctx context.Context, streamID string, source <-chan []byte) <-chan []byte {
	key := relayKey(streamID)
	relaying := t.relay
	broken := false
	if relaying {
		// 起始标记同步写入，保证 Open 返回后 Resume 一定能找到这个流
		if err := t.append(ctx, key, fieldStart, ""); err != nil {
			log.Warnw("relay start failed, delivering directly", "streamId", streamID, "error", err)
			relaying, broken = false, true
			t.discard(ctx, key)
		}
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		bg := context.WithoutCancel(ctx)
		consumerGone := false
		for frame := range source {
			if relaying {
				if err := t.append(bg, key, fieldData, string(frame)); err != nil {
					// 中继内容已经不完整，不能再让读者把它当成完整的流
					log.Warnw("relay append failed, withdrawing stream", "streamId", streamID, "error", err)
					relaying, broken = false, true
					t.discard(bg, key)
				}
			}
			if consumerGone {
				continue
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				consumerGone = true
				log.Infow("stream consumer gone, draining source", "streamId", streamID)
			}
		}
		if relaying {
			if err := t.append(bg, key, fieldEnd, ""); err != nil {
				log.Warnw("relay end failed, withdrawing stream", "streamId", streamID, "error", err)
				broken = true
			}
		}
		if broken {
			// 写失败时 Redis 可能也删不掉，结束时再删一次
			t.discard(bg, key)
		}
	}()
	return out
}

// discard 删除不完整的中继流，之后 Resume 返回 ErrStreamNotFound，正在跟随的读者在下一次轮询时退出。
func (t *transport) discard(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := t.rdb.Del(ctx, key).Err(); err != nil {
		log.Warnw("relay discard failed, key will expire", "key", key, "error", err)
	}
}

func (t *transport) append(ctx context.Context, key, field, value string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := t.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.XAdd(ctx, &redis.XAddArgs{Stream: key, Values: map[string]interface{}{field: value}})
		p.PExpire(ctx, key, t.retention)
		return nil
	})
	return err
}

func (t *transport) Resume(ctx context.Context, streamID string) (<-chan []byte, error) {
	if !t.relay {
		return nil, ErrStreamNotFound
	}
	key := relayKey(streamID)
	n, err := t.rdb.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check stream %s: %w", streamID, err)
	}
	if n == 0 {
		return nil, ErrStreamNotFound
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		t.follow(ctx, key, out)
	}()
	return out, nil
}

// follow 从头读取流并阻塞等待新条目，直到读到结束标记、键过期或 ctx 结束。
func (t *transport) follow(ctx context.Context, key string, out chan<- []byte) {
	lastID := "0-0"
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := t.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{key, lastID},
			Count:   100,
			Block:   t.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			n, err := t.rdb.Exists(ctx, key).Result()
			if err != nil || n == 0 {
				return
			}
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Warnw("relay read failed", "key", key, "error", err)
			}
			return
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				lastID = msg.ID
				if _, ok := msg.Values[fieldEnd]; ok {
					return
				}
				d, ok := msg.Values[fieldData].(string)
				if !ok {
					continue
				}
				select {
				case out <- []byte(d):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
