package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"docweave-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// HistoryCache 在 Redis 中缓存每个房间最近的若干条消息，作为问答历史的读缓存。
// 数据库始终是事实来源；缓存缺失时由调用方回源后调用 Fill。
type HistoryCache interface {
	// Recent 返回最近 limit 条消息（时间正序）。ok 为 false 表示缓存未命中。
	Recent(ctx context.Context, roomID uint, limit int) (msgs []model.ChatMessage, ok bool, err error)
	// Append 仅在缓存已存在时追加消息。
	Append(ctx context.Context, msg model.ChatMessage) error
	Fill(ctx context.Context, roomID uint, msgs []model.ChatMessage) error
	Invalidate(ctx context.Context, roomID uint) error
}

const (
	historyCapacity = 20
	historyTTL      = 7 * 24 * time.Hour
)

type redisHistoryCache struct {
	redisClient *redis.Client
}

// NewHistoryCache 创建一个新的 HistoryCache 实例。
func NewHistoryCache(redisClient *redis.Client) HistoryCache {
	return &redisHistoryCache{redisClient: redisClient}
}

func historyKey(roomID uint) string {
	return fmt.Sprintf("room:%d:history", roomID)
}

func (c *redisHistoryCache) Recent(ctx context.Context, roomID uint, limit int) ([]model.ChatMessage, bool, error) {
	if limit > historyCapacity {
		return nil, false, nil
	}
	items, err := c.redisClient.LRange(ctx, historyKey(roomID), int64(-limit), -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read history cache: %w", err)
	}
	if len(items) == 0 {
		return nil, false, nil
	}
	msgs := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal cached message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, true, nil
}

func (c *redisHistoryCache) Append(ctx context.Context, msg model.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := historyKey(msg.RoomID)
	n, err := c.redisClient.RPushX(ctx, key, data).Result()
	if err != nil {
		return fmt.Errorf("failed to append history cache: %w", err)
	}
	if n > historyCapacity {
		return c.redisClient.LTrim(ctx, key, -historyCapacity, -1).Err()
	}
	return nil
}

func (c *redisHistoryCache) Fill(ctx context.Context, roomID uint, msgs []model.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	if len(msgs) > historyCapacity {
		msgs = msgs[len(msgs)-historyCapacity:]
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, data)
	}
	key := historyKey(roomID)
	pipe := c.redisClient.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, historyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisHistoryCache) Invalidate(ctx context.Context, roomID uint) error {
	return c.redisClient.Del(ctx, historyKey(roomID)).Err()
}
