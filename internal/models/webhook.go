package models

import "time"

// WebhookEvent is one delivery unit in the dispatcher's bounded queue.
type WebhookEvent struct {
	EventID       string          `json:"event_id" badgerhold:"key"`
	Kind          string          `json:"kind"`
	Payload       []byte          `json:"payload"`
	TargetURL     string          `json:"target_url"`
	Priority      JobPriority     `json:"priority"`
	Attempt       int             `json:"attempt"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	Seq           uint64          `json:"seq"` // per-target ordering
	Delivery      []WebhookResult `json:"delivery,omitempty"`
}

// WebhookResult records the outcome of a single delivery attempt.
type WebhookResult struct {
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// DeadLetter is an event that exhausted its delivery budget, appended to
// the JSONL dead-letter log.
type DeadLetter struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	TargetURL string    `json:"target_url"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// DroppedEvent is persisted to the recovery log when the bounded queue
// overflows and an event is evicted.
type DroppedEvent struct {
	EventID   string    `json:"event_id" badgerhold:"key"`
	Kind      string    `json:"kind"`
	TargetURL string    `json:"target_url"`
	DroppedAt time.Time `json:"dropped_at"`
}
