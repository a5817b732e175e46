// Package kafka 提供了与 Kafka 消息队列交互的功能，用于对外发布文档状态事件。
package kafka

import (
	"context"
	"encoding/json"
	"strings"

	"docweave-go/internal/config"
	"docweave-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// EventPublisher 发布按 key 分区的 JSON 事件。
type EventPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
	Close() error
}

type writerPublisher struct {
	writer *kafka.Writer
}

// NewPublisher 初始化 Kafka 生产者。未启用时返回空实现。
func NewPublisher(cfg config.KafkaConfig) EventPublisher {
	if !cfg.Enabled {
		return NoopPublisher()
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
		// 状态事件是旁路通知，不阻塞摄取流程
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("[Kafka] 发送状态事件失败, count: %d, error: %v", len(messages), err)
			}
		},
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.Topic)
	return &writerPublisher{writer: w}
}

func (p *writerPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

func (p *writerPublisher) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

// NoopPublisher 返回一个丢弃所有事件的发布器。
func NoopPublisher() EventPublisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (noopPublisher) Close() error                                       { return nil }
