package interfaces

import (
	"context"

	"github.com/ternarybob/venator/internal/models"
)

// JobStorage persists job records. Implementations must make writes durable
// before returning; the job manager persists before accepting work.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// ChangeStorage persists snapshot index entries, change records, and alert
// rules for the change tracker.
type ChangeStorage interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	ListSnapshots(ctx context.Context, url string) ([]*models.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	SaveChange(ctx context.Context, rec *models.ChangeRecord) error
	ListChanges(ctx context.Context, url string, limit int) ([]*models.ChangeRecord, error)
	SaveAlertRule(ctx context.Context, rule *models.AlertRule) error
	ListAlertRules(ctx context.Context, url string) ([]*models.AlertRule, error)
}

// WebhookStorage persists the overflow recovery log.
type WebhookStorage interface {
	SaveDropped(ctx context.Context, ev *models.DroppedEvent) error
	ListDropped(ctx context.Context, limit int) ([]*models.DroppedEvent, error)
}

// StorageManager aggregates the typed stores over one database handle.
type StorageManager interface {
	JobStorage() JobStorage
	ChangeStorage() ChangeStorage
	WebhookStorage() WebhookStorage
	Close() error
}
