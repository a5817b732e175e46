// Package notify 把房间事件（文档状态变更、新消息）推送给订阅者。
// 实时通道是 Redis Pub/Sub（WebSocket 端点订阅），可选地同时写入 Kafka 供下游消费。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"docweave-go/internal/model"
	"docweave-go/pkg/kafka"
	"docweave-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// Notifier 发布房间事件。发布失败不应影响业务流程，调用方只记录日志。
type Notifier interface {
	Publish(ctx context.Context, event model.RoomEvent) error
}

// Subscriber 订阅单个房间的事件流。
type Subscriber interface {
	Subscribe(ctx context.Context, roomID uint) (<-chan model.RoomEvent, func(), error)
}

// ChannelName 返回房间事件的 Redis 频道名。
func ChannelName(roomID uint) string {
	return fmt.Sprintf("room:%d:events", roomID)
}

// RedisNotifier 基于 Redis Pub/Sub 实现 Notifier 与 Subscriber。
type RedisNotifier struct {
	client *redis.Client
	events kafka.EventPublisher
}

// NewRedisNotifier 创建通知器。events 为 nil 时不写 Kafka。
func NewRedisNotifier(client *redis.Client, events kafka.EventPublisher) *RedisNotifier {
	if events == nil {
		events = kafka.NoopPublisher()
	}
	return &RedisNotifier{client: client, events: events}
}

func (n *RedisNotifier) Publish(ctx context.Context, event model.RoomEvent) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, ChannelName(event.RoomID), data).Err(); err != nil {
		return fmt.Errorf("发布房间事件失败: %w", err)
	}
	if event.Type == model.EventDocumentStatus {
		if err := n.events.Publish(ctx, strconv.FormatUint(uint64(event.DocumentID), 10), event); err != nil {
			log.Warnf("[Notifier] 写入 Kafka 状态事件失败, documentId: %d, error: %v", event.DocumentID, err)
		}
	}
	return nil
}

// Subscribe 返回房间事件通道与取消函数。ctx 结束或调用取消函数后通道关闭。
func (n *RedisNotifier) Subscribe(ctx context.Context, roomID uint) (<-chan model.RoomEvent, func(), error) {
	pubsub := n.client.Subscribe(ctx, ChannelName(roomID))
	// 等待订阅确认，避免丢失紧随其后的事件
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("订阅房间事件失败: %w", err)
	}

	out := make(chan model.RoomEvent, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev model.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warnf("[Notifier] 无法解析房间事件: %v", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }, nil
}

type noopNotifier struct{}

// Noop 返回一个丢弃所有事件的 Notifier。
func Noop() Notifier { return noopNotifier{} }

func (noopNotifier) Publish(context.Context, model.RoomEvent) error { return nil }
