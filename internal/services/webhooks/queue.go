package webhooks

import (
	"sync"

	"github.com/ternarybob/venator/internal/models"
)

// eventQueue is the bounded priority queue feeding the delivery loop. Pop
// always drains high before normal before low; within a level, FIFO order
// holds. At capacity the lowest-priority, oldest event is evicted so a new
// enqueue always succeeds.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	levels [3][]*models.WebhookEvent // index 0 = high
	size   int
	limit  int
	closed bool
}

func newEventQueue(limit int) *eventQueue {
	if limit < 1 {
		limit = 1024
	}
	q := &eventQueue{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func levelIndex(p models.JobPriority) int {
	switch p {
	case models.PriorityHigh:
		return 0
	case models.PriorityLow:
		return 2
	default:
		return 1
	}
}

// Push enqueues the event. When the queue is full, the lowest-priority
// oldest event is evicted and returned so the caller can record the drop.
func (q *eventQueue) Push(ev *models.WebhookEvent) (evicted *models.WebhookEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}

	if q.size >= q.limit {
		for i := len(q.levels) - 1; i >= 0; i-- {
			if len(q.levels[i]) > 0 {
				evicted = q.levels[i][0]
				q.levels[i] = q.levels[i][1:]
				q.size--
				break
			}
		}
	}

	i := levelIndex(ev.Priority)
	q.levels[i] = append(q.levels[i], ev)
	q.size++
	q.cond.Signal()
	return evicted
}

// Pop blocks until an event is available or the queue is closed.
func (q *eventQueue) Pop() (*models.WebhookEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for i := range q.levels {
			if len(q.levels[i]) > 0 {
				ev := q.levels[i][0]
				q.levels[i] = q.levels[i][1:]
				q.size--
				return ev, true
			}
		}
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
}

// Depth returns the number of queued events across levels.
func (q *eventQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close rejects further pushes and unblocks waiting Pops.
func (q *eventQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
