// -----
// Job Manager - persisted async jobs with priority dispatch and retention
// -----

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
)

// ProgressFunc reports handler progress in [0,1]. Persisted at most once
// per second so busy handlers cannot flood the store.
type ProgressFunc func(fraction float64)

// HandlerFunc executes one job kind. Context cancellation means the job was
// cancelled or the service is shutting down.
type HandlerFunc func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error)

const progressInterval = time.Second

// Manager owns the async job lifecycle: persist-before-accept submission,
// priority dispatch, cancellation, result blobs, and retention reaping.
type Manager struct {
	storage    interfaces.JobStorage
	queue      *queue
	resultsDir string
	retention  time.Duration
	logger     arbor.ILogger
	metrics    *metrics.Metrics

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	runningMu sync.Mutex
	running   map[string]context.CancelFunc

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cron    *cron.Cron
}

// NewManager creates the job manager and starts its workers and reaper.
func NewManager(config *common.Config, storage interfaces.JobStorage, m *metrics.Metrics, logger arbor.ILogger) (*Manager, error) {
	resultsDir := filepath.Join(config.Storage.Root, "jobs")
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job results directory: %w", err)
	}

	workers := config.Jobs.Workers
	if workers < 1 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	mgr := &Manager{
		storage:    storage,
		queue:      newQueue(workers * 64),
		resultsDir: resultsDir,
		retention:  config.JobRetention(),
		logger:     logger,
		metrics:    m,
		handlers:   make(map[string]HandlerFunc),
		running:    make(map[string]context.CancelFunc),
		baseCtx:    ctx,
		cancel:     cancel,
		cron:       cron.New(),
	}

	for i := 0; i < workers; i++ {
		mgr.wg.Add(1)
		go mgr.worker(i)
	}

	if _, err := mgr.cron.AddFunc("@every 1m", mgr.reap); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule job reaper: %w", err)
	}
	mgr.cron.Start()

	logger.Info().Int("workers", workers).Msg("Job manager started")
	return mgr, nil
}

// RegisterHandler binds a job kind to its executor. Must be called before
// any Submit for that kind.
func (m *Manager) RegisterHandler(kind string, fn HandlerFunc) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[kind] = fn
}

func (m *Manager) handler(kind string) (HandlerFunc, bool) {
	m.handlersMu.RLock()
	defer m.handlersMu.RUnlock()
	fn, ok := m.handlers[kind]
	return fn, ok
}

// Submit persists a new job, then enqueues it. The job record is durable
// before the caller sees the ID, so a crash never loses an accepted job.
func (m *Manager) Submit(ctx context.Context, kind string, params map[string]interface{}, priority models.JobPriority) (*models.Job, error) {
	if _, ok := m.handler(kind); !ok {
		return nil, models.NewError(models.KindInvalidArgument, "unknown job kind %q", kind)
	}

	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		Kind:      kind,
		Params:    params,
		Status:    models.JobStatusQueued,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.retention),
	}

	if err := m.storage.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	if err := m.queue.Push(job.ID, priority); err != nil {
		job.Status = models.JobStatusFailed
		job.Error = models.AsError(err)
		job.UpdatedAt = time.Now()
		if saveErr := m.storage.SaveJob(ctx, job); saveErr != nil {
			m.logger.Warn().Err(saveErr).Str("job_id", job.ID).Msg("Failed to record queue overflow")
		}
		m.metrics.RecordOverflow()
		return nil, err
	}

	m.metrics.SetQueueDepth("jobs", float64(m.queue.Depth()))
	m.logger.Info().
		Str("job_id", job.ID).
		Str("kind", kind).
		Int("priority", int(priority)).
		Msg("Job accepted")
	return job, nil
}

// Status returns the current job record.
func (m *Manager) Status(ctx context.Context, jobID string) (*models.Job, error) {
	return m.storage.GetJob(ctx, jobID)
}

// List returns jobs filtered by status, newest first.
func (m *Manager) List(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	return m.storage.ListJobs(ctx, status, limit)
}

// Result returns the completed job's result blob alongside the record.
// Non-terminal jobs return the record with a nil blob so callers can poll.
func (m *Manager) Result(ctx context.Context, jobID string) (json.RawMessage, *models.Job, error) {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Expired(time.Now()) {
		return nil, job, models.NewError(models.KindJobExpired, "job result has expired")
	}
	if job.Status != models.JobStatusCompleted {
		return nil, job, nil
	}

	data, err := os.ReadFile(m.resultPath(jobID))
	if err != nil {
		return nil, job, models.WrapError(models.KindCorruptArtifact, err, "job result blob is unreadable")
	}
	if !json.Valid(data) {
		return nil, job, models.NewError(models.KindCorruptArtifact, "job result blob is not valid JSON")
	}
	return data, job, nil
}

// Cancel requests cancellation. Queued jobs transition immediately; running
// jobs get their context cancelled and the worker records the transition.
// Cancelling a terminal job is a no-op that returns the current record.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	m.runningMu.Lock()
	cancelRun, isRunning := m.running[jobID]
	m.runningMu.Unlock()

	if isRunning {
		cancelRun()
		return job, nil
	}

	// Still queued. The worker revalidates status after popping, so marking
	// the record is enough to prevent execution.
	job.Status = models.JobStatusCancelled
	job.UpdatedAt = time.Now()
	if err := m.storage.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Info().Str("job_id", jobID).Msg("Queued job cancelled")
	return job, nil
}

func (m *Manager) worker(index int) {
	defer m.wg.Done()
	for {
		jobID, err := m.queue.Pop(m.baseCtx)
		if err != nil {
			return
		}
		m.metrics.SetQueueDepth("jobs", float64(m.queue.Depth()))
		m.execute(index, jobID)
	}
}

func (m *Manager) execute(index int, jobID string) {
	job, err := m.storage.GetJob(m.baseCtx, jobID)
	if err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Dequeued job not loadable")
		return
	}
	if job.Status != models.JobStatusQueued {
		// Cancelled or expired while waiting.
		return
	}

	fn, ok := m.handler(job.Kind)
	if !ok {
		m.fail(job, models.NewError(models.KindInternal, "no handler for job kind %q", job.Kind))
		return
	}

	job.Status = models.JobStatusRunning
	job.UpdatedAt = time.Now()
	if err := m.storage.SaveJob(m.baseCtx, job); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to mark job running")
		return
	}

	runCtx, cancelRun := context.WithCancel(m.baseCtx)
	m.runningMu.Lock()
	m.running[jobID] = cancelRun
	m.runningMu.Unlock()
	defer func() {
		cancelRun()
		m.runningMu.Lock()
		delete(m.running, jobID)
		m.runningMu.Unlock()
	}()

	m.logger.Info().
		Int("worker", index).
		Str("job_id", jobID).
		Str("kind", job.Kind).
		Msg("Job started")

	start := time.Now()
	result, err := fn(runCtx, job, m.progressReporter(job))

	switch {
	case err == nil:
		m.complete(job, result, time.Since(start))
	case errors.Is(err, context.Canceled) || models.IsKind(err, models.KindJobCancelled):
		job.Status = models.JobStatusCancelled
		job.UpdatedAt = time.Now()
		if saveErr := m.storage.SaveJob(m.baseCtx, job); saveErr != nil {
			m.logger.Warn().Err(saveErr).Str("job_id", jobID).Msg("Failed to record cancellation")
		}
		m.logger.Info().Str("job_id", jobID).Dur("elapsed", time.Since(start)).Msg("Job cancelled")
	default:
		m.fail(job, err)
	}
}

func (m *Manager) complete(job *models.Job, result interface{}, elapsed time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		m.fail(job, models.WrapError(models.KindInternal, err, "failed to encode job result"))
		return
	}
	if err := m.writeResult(job.ID, data); err != nil {
		m.fail(job, err)
		return
	}

	job.Status = models.JobStatusCompleted
	job.Progress = 1
	job.ResultRef = job.ID + ".result"
	job.Error = nil
	job.UpdatedAt = time.Now()
	if err := m.storage.SaveJob(m.baseCtx, job); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record completion")
	}
	m.metrics.RecordJob(true)
	m.logger.Info().
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Dur("elapsed", elapsed).
		Int("result_bytes", len(data)).
		Msg("Job completed")
}

func (m *Manager) fail(job *models.Job, err error) {
	job.Status = models.JobStatusFailed
	job.Error = models.AsError(err)
	job.UpdatedAt = time.Now()
	if saveErr := m.storage.SaveJob(m.baseCtx, job); saveErr != nil {
		m.logger.Warn().Err(saveErr).Str("job_id", job.ID).Msg("Failed to record failure")
	}
	m.metrics.RecordJob(false)
	m.metrics.RecordError(string(models.KindOf(err)))
	m.logger.Warn().
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Err(err).
		Msg("Job failed")
}

// progressReporter persists progress updates, throttled to one write per
// second. The final value is always carried by the terminal transition.
func (m *Manager) progressReporter(job *models.Job) ProgressFunc {
	var mu sync.Mutex
	var lastWrite time.Time
	return func(fraction float64) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}

		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if now.Sub(lastWrite) < progressInterval {
			return
		}
		lastWrite = now

		job.Progress = fraction
		job.UpdatedAt = now
		if err := m.storage.SaveJob(m.baseCtx, job); err != nil {
			m.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Progress write failed")
		}
	}
}

func (m *Manager) resultPath(jobID string) string {
	return filepath.Join(m.resultsDir, jobID+".result")
}

func (m *Manager) writeResult(jobID string, data []byte) error {
	tmp, err := os.CreateTemp(m.resultsDir, jobID+".*")
	if err != nil {
		return models.WrapError(models.KindInternal, err, "failed to stage job result")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return models.WrapError(models.KindInternal, err, "failed to write job result")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return models.WrapError(models.KindInternal, err, "failed to flush job result")
	}
	if err := os.Rename(tmp.Name(), m.resultPath(jobID)); err != nil {
		os.Remove(tmp.Name())
		return models.WrapError(models.KindInternal, err, "failed to publish job result")
	}
	return nil
}

// Recover re-enqueues jobs persisted as queued before a restart. Call after
// every handler is registered, or recovered jobs fail on dispatch.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	queued, err := m.storage.ListJobs(ctx, models.JobStatusQueued, 0)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	requeued := 0
	// ListJobs is newest first; recover in submission order.
	for i := len(queued) - 1; i >= 0; i-- {
		job := queued[i]
		if job.Expired(now) {
			continue
		}
		if err := m.queue.Push(job.ID, job.Priority); err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Job recovery enqueue failed")
			continue
		}
		requeued++
	}

	if requeued > 0 {
		m.metrics.SetQueueDepth("jobs", float64(m.queue.Depth()))
		m.logger.Info().Int("requeued", requeued).Msg("Recovered queued jobs")
	}
	return requeued, nil
}

// reap expires stale queued and orphaned running jobs, cancels live runs
// past retention, and removes terminal jobs together with their result
// blobs.
func (m *Manager) reap() {
	now := time.Now()
	all, err := m.storage.ListJobs(m.baseCtx, "", 0)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Job reaper list failed")
		return
	}

	expired, removed := 0, 0
	for _, job := range all {
		if !job.Expired(now) {
			continue
		}
		switch {
		case job.Status == models.JobStatusQueued:
			job.Status = models.JobStatusExpired
			job.UpdatedAt = now
			if err := m.storage.SaveJob(m.baseCtx, job); err == nil {
				expired++
			}
		case job.Status == models.JobStatusRunning:
			m.runningMu.Lock()
			cancelRun, active := m.running[job.ID]
			m.runningMu.Unlock()
			if active {
				// The worker records the terminal transition; the next
				// pass deletes it.
				cancelRun()
				continue
			}
			// Orphaned by a crash or restart.
			job.Status = models.JobStatusExpired
			job.UpdatedAt = now
			if err := m.storage.SaveJob(m.baseCtx, job); err == nil {
				expired++
			}
		case job.Status.Terminal():
			if err := m.storage.DeleteJob(m.baseCtx, job.ID); err != nil {
				continue
			}
			if err := os.Remove(m.resultPath(job.ID)); err != nil && !os.IsNotExist(err) {
				m.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Result blob removal failed")
			}
			removed++
		}
	}
	if expired > 0 || removed > 0 {
		m.logger.Info().Int("expired", expired).Int("removed", removed).Msg("Job reaper pass")
	}
}

// Close stops the reaper and workers, waiting for in-flight jobs to observe
// cancellation.
func (m *Manager) Close() {
	m.cron.Stop()
	m.cancel()
	m.wg.Wait()
}
