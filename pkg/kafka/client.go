// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ride-chat-go/internal/config"
	"ride-chat-go/pkg/log"
	"ride-chat-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是一条回合消息处理失败后的最大重试次数。
const maxAttempts = 3

// TurnProcessor 处理一条回合通知，例如把它写入搜索索引。
type TurnProcessor interface {
	Process(ctx context.Context, n tasks.TurnNotification) error
}

var producer *kafka.Writer

// ErrProducerNotInitialized 表示尚未调用 InitProducer。
var ErrProducerNotInitialized = errors.New("kafka producer not initialized")

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ProduceTurn 发送一条回合通知。以 chat_id 作为消息键，同一对话的回合落在同一分区。
func ProduceTurn(ctx context.Context, n tasks.TurnNotification) error {
	if producer == nil {
		return ErrProducerNotInitialized
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{Key: []byte(n.ChatID), Value: body})
}

// StartConsumer 启动一个 Kafka 消费者处理回合通知，直到 ctx 结束。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TurnProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}
		if handleMessage(ctx, rdb, processor, m.Value) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}

// handleMessage 处理一条消息并返回是否应提交 offset。
// 处理失败时用 Redis 计数，未达到阈值前不提交，让 Kafka 重新投递。
func handleMessage(ctx context.Context, rdb *redis.Client, processor TurnProcessor, value []byte) bool {
	var n tasks.TurnNotification
	if err := json.Unmarshal(value, &n); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", n.TurnID)
	if err := processor.Process(ctx, n); err != nil {
		log.Errorf("处理回合通知失败: turnId=%s, Error: %v", n.TurnID, err)
		attempts, incErr := rdb.Incr(ctx, attemptsKey).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset
			return false
		}
		_ = rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
		if attempts >= maxAttempts {
			log.Errorf("回合通知多次失败(>=%d)，提交 offset 终止重试: turnId=%s", maxAttempts, n.TurnID)
			return true
		}
		return false
	}

	_ = rdb.Del(ctx, attemptsKey).Err()
	return true
}
