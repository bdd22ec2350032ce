// Package notify 在回合完成后把结果投递给外部系统。投递失败只记录日志，不影响回合本身。
package notify

import (
	"context"
	"fmt"

	"ride-chat-go/internal/config"
	"ride-chat-go/pkg/kafka"
	"ride-chat-go/pkg/log"
	"ride-chat-go/pkg/tasks"
)

// Sink 是回合通知的投递目标。
type Sink interface {
	Deliver(ctx context.Context, n tasks.TurnNotification) error
	Close() error
}

// New 按配置的 driver 创建投递目标。
func New(cfg config.Config) (Sink, error) {
	switch cfg.Notify.Driver {
	case "", "none":
		return Nop{}, nil
	case "webhook":
		if cfg.Notify.WebhookURL == "" {
			return nil, fmt.Errorf("notify.webhook_url is required for webhook driver")
		}
		return NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout), nil
	case "kafka":
		kafka.InitProducer(cfg.Kafka)
		return kafkaSink{}, nil
	case "rabbitmq":
		return NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
	default:
		return nil, fmt.Errorf("unsupported notify driver: %s", cfg.Notify.Driver)
	}
}

// Nop 丢弃所有通知。
type Nop struct{}

func (Nop) Deliver(context.Context, tasks.TurnNotification) error { return nil }
func (Nop) Close() error                                          { return nil }

type kafkaSink struct{}

func (kafkaSink) Deliver(ctx context.Context, n tasks.TurnNotification) error {
	if err := kafka.ProduceTurn(ctx, n); err != nil {
		return fmt.Errorf("produce turn %s: %w", n.TurnID, err)
	}
	log.Debugw("turn notification produced", "turnId", n.TurnID, "chatId", n.ChatID)
	return nil
}

func (kafkaSink) Close() error {
	return kafka.CloseProducer()
}
