package models

import "time"

// JobStatus is the persistent lifecycle state of an async job. Transitions
// are monotonic: queued -> running -> terminal.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusExpired   JobStatus = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusExpired:
		return true
	}
	return false
}

// rank orders statuses along the monotonic chain.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusRunning:
		return 1
	default:
		return 2
	}
}

// CanTransition reports whether moving from s to next preserves monotonicity.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank() || (s == JobStatusQueued && next == JobStatusExpired)
}

// JobPriority selects the dispatch queue level.
type JobPriority int

const (
	PriorityLow    JobPriority = 0
	PriorityNormal JobPriority = 1
	PriorityHigh   JobPriority = 2
)

// Job is a persisted unit of async work. The ID is an unguessable 128-bit
// token; params and result references survive restarts.
type Job struct {
	ID        string                 `json:"id" badgerhold:"key"`
	Kind      string                 `json:"kind"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Status    JobStatus              `json:"status"`
	Priority  JobPriority            `json:"priority"`
	Progress  float64                `json:"progress"` // [0,1]
	ResultRef string                 `json:"result_ref,omitempty"`
	Error     *Error                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Expired reports whether the job is past its retention boundary.
func (j *Job) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}
