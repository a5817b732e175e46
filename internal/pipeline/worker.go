package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"docweave-go/pkg/log"
	"docweave-go/pkg/queue"
	"docweave-go/pkg/tasks"
)

// TaskSource 是 worker 消费的任务来源。
type TaskSource interface {
	Next(ctx context.Context, timeout time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
}

// TaskProcessor 处理单个摄取任务。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

// WorkerOptions 控制轮询节奏与并发数。
type WorkerOptions struct {
	PollInterval time.Duration
	PopTimeout   time.Duration
	Concurrency  int
}

// Worker 以固定节奏轮询队列，每个周期至多取出并同步处理一个任务。
// 单个任务的失败或 panic 不会终止轮询循环。
type Worker struct {
	source    TaskSource
	processor TaskProcessor
	opts      WorkerOptions
}

// NewWorker 创建一个新的 Worker。
func NewWorker(source TaskSource, processor TaskProcessor, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 2 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Worker{source: source, processor: processor, opts: opts}
}

// Run 启动 Concurrency 个轮询协程并阻塞，直到 ctx 被取消且所有协程退出。
func (w *Worker) Run(ctx context.Context) {
	log.Infof("[Worker] 摄取 worker 启动, pollers: %d, interval: %s, popTimeout: %s",
		w.opts.Concurrency, w.opts.PollInterval, w.opts.PopTimeout)

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.poll(ctx)
		}()
	}
	wg.Wait()
	log.Info("[Worker] 摄取 worker 已停止")
}

func (w *Worker) poll(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一个轮询周期，返回是否取到了任务。
func (w *Worker) RunOnce(ctx context.Context) bool {
	d, err := w.source.Next(ctx, w.opts.PopTimeout)
	if err != nil {
		if ctx.Err() == nil {
			log.Errorf("[Worker] 获取任务失败: %v", err)
		}
		return false
	}
	if d == nil {
		return false
	}

	if err := w.safeProcess(ctx, d.Task); err != nil {
		log.Errorf("[Worker] 任务处理失败, documentId: %d, error: %v", d.Task.DocumentID, err)
	}
	if ctx.Err() != nil {
		// 停机中断的任务不确认，留在处理队列里等待 Recover 重投
		log.Warnf("[Worker] 停机中, 任务未确认, documentId: %d", d.Task.DocumentID)
		return true
	}
	// 失败的任务已落为 FAILED，不再重投
	if err := w.source.Ack(ctx, d); err != nil {
		log.Errorf("[Worker] 确认任务失败, documentId: %d, error: %v", d.Task.DocumentID, err)
	}
	return true
}

func (w *Worker) safeProcess(ctx context.Context, task tasks.IngestionTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Worker] 任务处理发生 panic, documentId: %d, panic: %v\n%s", task.DocumentID, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.Process(ctx, task)
}
