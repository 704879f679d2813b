// Package dispatcher fans independent tasks out to a bounded worker pool.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/metrics"
	"github.com/JakeFAU/listing-crawler/internal/queue/memory"
)

// Task is the unit of work run by the pool.
type Task[T, R any] func(ctx context.Context, item T) R

// Result pairs an item with its task output. Started is false for items the
// pool never handed to a worker because the context ended first.
type Result[T, R any] struct {
	Item    T
	Value   R
	Started bool
}

type job[T any] struct {
	index int
	item  T
}

// Pool runs a Task over a set of items with bounded concurrency.
type Pool[T, R any] struct {
	concurrency int
	task        Task[T, R]
	logger      *zap.Logger
}

// New creates a Pool. Non-positive concurrency is treated as 1.
func New[T, R any](concurrency int, task Task[T, R], logger *zap.Logger) *Pool[T, R] {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool[T, R]{concurrency: concurrency, task: task, logger: logger}
}

// Run executes the task once per item and blocks until every started task
// has returned. Results keep the order of items. A panicking task is
// recovered and leaves the zero value in its slot; siblings keep running.
func (p *Pool[T, R]) Run(ctx context.Context, items []T) ([]Result[T, R], error) {
	results := make([]Result[T, R], len(items))
	for i, item := range items {
		results[i].Item = item
	}
	if len(items) == 0 {
		return results, nil
	}

	queue := memory.NewQueue[job[T]](len(items))
	for i, item := range items {
		// capacity covers every item, so this never blocks
		if err := queue.Enqueue(context.Background(), job[T]{index: i, item: item}); err != nil {
			queue.Close()
			return results, fmt.Errorf("queue enqueue: %w", err)
		}
	}
	queue.Close()

	workers := p.concurrency
	if workers > len(items) {
		workers = len(items)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.work(ctx, worker, queue, results)
		}(w)
	}
	wg.Wait()
	return results, nil
}

func (p *Pool[T, R]) work(ctx context.Context, worker int, queue *memory.Queue[job[T]], results []Result[T, R]) {
	for {
		if ctx.Err() != nil {
			return
		}
		next, err := queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				p.logger.Debug("worker stopping", zap.Int("worker", worker), zap.Error(err))
			}
			return
		}
		results[next.index].Started = true
		results[next.index].Value = p.runTask(ctx, worker, next.item)
	}
}

func (p *Pool[T, R]) runTask(ctx context.Context, worker int, item T) (out R) {
	metrics.IncActiveTasks()
	defer metrics.DecActiveTasks()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Int("worker", worker), zap.Any("panic", r))
		}
	}()
	return p.task(ctx, item)
}
