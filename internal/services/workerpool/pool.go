// Package workerpool runs CPU-bound tasks (parsing, hashing, scoring) on a
// bounded set of workers with per-task timeouts and panic isolation.
package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

// Task is one unit of CPU-bound work.
type Task func(ctx context.Context) (interface{}, error)

// Future resolves to the task's result.
type Future struct {
	done   chan struct{}
	result interface{}
	err    error
}

// Await blocks until the task completes or ctx is cancelled.
func (f *Future) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, models.WrapError(models.KindTimeout, ctx.Err(), "cancelled awaiting task")
	case <-f.done:
		return f.result, f.err
	}
}

type submission struct {
	ctx    context.Context
	task   Task
	future *Future
}

// Pool is the bounded worker set. Submit blocks when the queue is full,
// providing back-pressure to producers.
type Pool struct {
	queue       chan submission
	taskTimeout time.Duration
	logger      arbor.ILogger

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New starts the pool with the configured worker count and queue size.
func New(config common.WorkersConfig, logger arbor.ILogger) *Pool {
	size := config.PoolSize
	if size < 1 {
		size = 4
	}
	queueSize := config.QueueSize
	if queueSize < 1 {
		queueSize = 64
	}
	timeout := time.Duration(config.TaskTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:       make(chan submission, queueSize),
		taskTimeout: timeout,
		logger:      logger,
		baseCtx:     ctx,
		cancel:      cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues a task; blocks when the queue is full. The returned
// future resolves once a worker finishes (or the task times out).
func (p *Pool) Submit(ctx context.Context, task Task) (*Future, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, models.NewError(models.KindInternal, "worker pool is closed")
	}
	p.mu.Unlock()

	future := &Future{done: make(chan struct{})}
	select {
	case <-ctx.Done():
		return nil, models.WrapError(models.KindTimeout, ctx.Err(), "cancelled submitting task")
	case p.queue <- submission{ctx: ctx, task: task, future: future}:
		return future, nil
	}
}

// Run submits and awaits in one call.
func (p *Pool) Run(ctx context.Context, task Task) (interface{}, error) {
	future, err := p.Submit(ctx, task)
	if err != nil {
		return nil, err
	}
	return future.Await(ctx)
}

func (p *Pool) worker(index int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.baseCtx.Done():
			return
		case sub, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(index, sub)
		}
	}
}

func (p *Pool) execute(index int, sub submission) {
	taskCtx, cancel := context.WithTimeout(sub.ctx, p.taskTimeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Int("worker", index).
					Str("panic", fmt.Sprint(r)).
					Str("stack", string(debug.Stack())).
					Msg("Task panicked")
				ch <- outcome{err: models.NewError(models.KindWorkerCrashed, "task panicked")}
			}
		}()
		result, err := sub.task(taskCtx)
		ch <- outcome{result: result, err: err}
	}()

	select {
	case out := <-ch:
		sub.future.result = out.result
		sub.future.err = out.err
	case <-taskCtx.Done():
		// The goroutine is abandoned; it observes taskCtx and unwinds.
		sub.future.err = models.WrapError(models.KindTimeout, taskCtx.Err(), "task timed out")
	}
	close(sub.future.done)
}

// Close stops accepting work and waits for in-flight tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
