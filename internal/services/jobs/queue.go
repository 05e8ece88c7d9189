package jobs

import (
	"context"

	"github.com/ternarybob/venator/internal/models"
)

// queue dispatches job IDs across three priority levels. Pop always drains
// high before normal before low; within a level, FIFO order holds.
type queue struct {
	high   chan string
	normal chan string
	low    chan string
}

func newQueue(capacity int) *queue {
	if capacity < 1 {
		capacity = 64
	}
	return &queue{
		high:   make(chan string, capacity),
		normal: make(chan string, capacity),
		low:    make(chan string, capacity),
	}
}

func (q *queue) channel(priority models.JobPriority) chan string {
	switch priority {
	case models.PriorityHigh:
		return q.high
	case models.PriorityLow:
		return q.low
	default:
		return q.normal
	}
}

// Push enqueues without blocking. A full level is an overflow, not a wait:
// the job record is already persisted and the caller reports the rejection.
func (q *queue) Push(jobID string, priority models.JobPriority) error {
	select {
	case q.channel(priority) <- jobID:
		return nil
	default:
		return models.NewError(models.KindQueueOverflow, "job queue is full")
	}
}

// Pop blocks until a job is available or ctx is done.
func (q *queue) Pop(ctx context.Context) (string, error) {
	// Fast paths keep higher levels strictly ahead when work is waiting.
	select {
	case id := <-q.high:
		return id, nil
	default:
	}
	select {
	case id := <-q.high:
		return id, nil
	case id := <-q.normal:
		return id, nil
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.high:
		return id, nil
	case id := <-q.normal:
		return id, nil
	case id := <-q.low:
		return id, nil
	}
}

// Depth returns the total number of queued IDs across levels.
func (q *queue) Depth() int {
	return len(q.high) + len(q.normal) + len(q.low)
}
