// Package queue 提供基于 Redis List 的文档摄取任务队列。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"docweave-go/pkg/log"
	"docweave-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
)

// Delivery 是一次出队得到的任务。可靠模式下它仍留在 processing 列表中，直到被 Ack。
type Delivery struct {
	Task tasks.IngestionTask
	raw  string
}

// RedisQueue 使用 LPUSH 入队、BRPOP 出队，单消费者下保持 FIFO。
//
// 默认模式是至多一次投递：任务出队即从 Redis 中删除，处理中途进程崩溃会永久丢失该任务，
// 对应的文档会停留在 PROCESSING。Reliable 模式下出队使用 BRPOPLPUSH 把任务移入
// processing 列表，处理结束后 Ack 删除；进程重启时 Recover 把残留任务放回队列，
// 超过 maxAttempts 次的任务转入死信列表。
type RedisQueue struct {
	client      *redis.Client
	key         string
	reliable    bool
	maxAttempts int
}

// Options 配置 RedisQueue。
type Options struct {
	Key         string
	Reliable    bool
	MaxAttempts int
}

// NewRedisQueue 创建一个新的任务队列。
func NewRedisQueue(client *redis.Client, opts Options) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return nil, errors.New("queue key required")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RedisQueue{client: client, key: key, reliable: opts.Reliable, maxAttempts: maxAttempts}, nil
}

func (q *RedisQueue) processingKey() string { return q.key + ":processing" }

// DeadLetterKey 返回死信列表的键名。
func (q *RedisQueue) DeadLetterKey() string { return q.key + ":dead" }

// Reliable 报告队列是否运行在可靠模式。
func (q *RedisQueue) Reliable() bool { return q.reliable }

// Push 把任务追加到队尾。
func (q *RedisQueue) Push(ctx context.Context, task tasks.IngestionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化摄取任务失败: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("任务入队失败: %w", err)
	}
	log.Infof("[Queue] 摄取任务已入队, documentId: %d, roomId: %d", task.DocumentID, task.RoomID)
	return nil
}

// Pop 阻塞地从队头取出一个任务，超时返回 (nil, nil)。取出即删除，没有确认机制。
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*tasks.IngestionTask, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("任务出队失败: %w", err)
	}
	// BRPOP 返回 [key, value]
	task, err := decodeTask(res[1])
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// PopReliable 阻塞地取出一个任务并原子地移入 processing 列表，超时返回 (nil, nil)。
func (q *RedisQueue) PopReliable(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BRPopLPush(ctx, q.key, q.processingKey(), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("任务出队失败: %w", err)
	}
	task, err := decodeTask(raw)
	if err != nil {
		// 格式错误的消息无法重试，直接移除，避免阻塞恢复流程
		_ = q.client.LRem(ctx, q.processingKey(), 1, raw).Err()
		return nil, err
	}
	return &Delivery{Task: task, raw: raw}, nil
}

// Next 按队列模式取出下一个任务。
func (q *RedisQueue) Next(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	if q.reliable {
		return q.PopReliable(ctx, timeout)
	}
	task, err := q.Pop(ctx, timeout)
	if err != nil || task == nil {
		return nil, err
	}
	return &Delivery{Task: *task}, nil
}

// Ack 确认任务处理结束，从 processing 列表中删除。非可靠模式下为空操作。
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.raw == "" {
		return nil
	}
	return q.client.LRem(ctx, q.processingKey(), 1, d.raw).Err()
}

// Recover 把 processing 列表中残留的任务放回队列（attempts+1），
// 达到最大次数的任务转入死信列表。只应在所有消费者启动之前调用。
func (q *RedisQueue) Recover(ctx context.Context) (requeued, dead int, err error) {
	pending, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("读取 processing 列表失败: %w", err)
	}
	for _, raw := range pending {
		target := q.key
		payload := raw
		task, decodeErr := decodeTask(raw)
		if decodeErr != nil {
			target = q.DeadLetterKey()
		} else {
			task.Attempts++
			if task.Attempts >= q.maxAttempts {
				target = q.DeadLetterKey()
			}
			b, _ := json.Marshal(task)
			payload = string(b)
		}

		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		if target == q.key {
			// 放回队尾，排在已有任务之后
			pipe.LPush(ctx, target, payload)
			requeued++
		} else {
			pipe.LPush(ctx, target, payload)
			dead++
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return requeued, dead, fmt.Errorf("恢复任务失败: %w", err)
		}
	}
	if requeued > 0 || dead > 0 {
		log.Warnf("[Queue] 已恢复残留任务: 重新入队 %d 个, 转入死信 %d 个", requeued, dead)
	}
	return requeued, dead, nil
}

// Len 返回队列中等待处理的任务数。
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func decodeTask(raw string) (tasks.IngestionTask, error) {
	var task tasks.IngestionTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return task, fmt.Errorf("无法解析摄取任务: %w, value: %s", err, raw)
	}
	return task, nil
}
