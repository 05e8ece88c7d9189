package jobs

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
)

// memJobStorage is an in-memory JobStorage. Records are copied on the way in
// and out so the manager's mutations never race with assertions.
type memJobStorage struct {
	mu   sync.Mutex
	jobs map[string]models.Job
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{jobs: make(map[string]models.Job)}
}

func (s *memJobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, models.NewError(models.KindJobNotFound, "job %q not found", jobID)
	}
	copied := job
	return &copied, nil
}

func (s *memJobStorage) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		copied := job
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memJobStorage) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func newTestManager(t *testing.T, workers int) (*Manager, *memJobStorage) {
	t.Helper()
	config := common.DefaultConfig()
	config.Storage.Root = t.TempDir()
	config.Jobs.Workers = workers

	storage := newMemJobStorage()
	mgr, err := NewManager(config, storage, metrics.New(), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(mgr.Close)
	return mgr, storage
}

func waitStatus(t *testing.T, mgr *Manager, jobID string, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := mgr.Status(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestSubmitUnknownKind(t *testing.T) {
	mgr, _ := newTestManager(t, 1)
	_, err := mgr.Submit(context.Background(), "no-such-kind", nil, models.PriorityNormal)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidArgument))
}

func TestJobCompletes(t *testing.T) {
	mgr, _ := newTestManager(t, 2)
	mgr.RegisterHandler("echo", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		return map[string]interface{}{"echoed": job.Params["input"]}, nil
	})

	job, err := mgr.Submit(context.Background(), "echo", map[string]interface{}{"input": "hello"}, models.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.NotEmpty(t, job.ID)

	done := waitStatus(t, mgr, job.ID, models.JobStatusCompleted)
	assert.Equal(t, float64(1), done.Progress)
	assert.NotEmpty(t, done.ResultRef)

	blob, rec, err := mgr.Result(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)

	var result map[string]string
	require.NoError(t, json.Unmarshal(blob, &result))
	assert.Equal(t, "hello", result["echoed"])
}

func TestJobFailureRecordsError(t *testing.T) {
	mgr, _ := newTestManager(t, 1)
	mgr.RegisterHandler("doomed", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		return nil, models.NewError(models.KindHTTPStatus, "upstream returned 500")
	})

	job, err := mgr.Submit(context.Background(), "doomed", nil, models.PriorityNormal)
	require.NoError(t, err)

	failed := waitStatus(t, mgr, job.ID, models.JobStatusFailed)
	require.NotNil(t, failed.Error)
	assert.Equal(t, models.KindHTTPStatus, failed.Error.Kind)
}

func TestJobProgressPersisted(t *testing.T) {
	release := make(chan struct{})
	mgr, _ := newTestManager(t, 1)
	mgr.RegisterHandler("slow", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		report(0.5)
		<-release
		return "done", nil
	})

	job, err := mgr.Submit(context.Background(), "slow", nil, models.PriorityNormal)
	require.NoError(t, err)

	// The first progress report is persisted immediately.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := mgr.Status(context.Background(), job.ID)
		require.NoError(t, err)
		if rec.Progress == 0.5 {
			assert.Equal(t, models.JobStatusRunning, rec.Status)
			break
		}
		require.True(t, time.Now().Before(deadline), "progress never persisted")
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	waitStatus(t, mgr, job.ID, models.JobStatusCompleted)
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	mgr, _ := newTestManager(t, 1)
	mgr.RegisterHandler("blocker", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, err := mgr.Submit(context.Background(), "blocker", nil, models.PriorityNormal)
	require.NoError(t, err)
	<-started

	_, err = mgr.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	waitStatus(t, mgr, job.ID, models.JobStatusCancelled)
}

func TestCancelQueuedJobNeverRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var ran sync.Map

	mgr, _ := newTestManager(t, 1)
	mgr.RegisterHandler("gated", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		ran.Store(job.ID, true)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return "ok", nil
	})

	// The single worker picks up the first job and blocks; the second waits
	// in the queue.
	first, err := mgr.Submit(context.Background(), "gated", nil, models.PriorityNormal)
	require.NoError(t, err)
	<-started
	queued, err := mgr.Submit(context.Background(), "gated", nil, models.PriorityNormal)
	require.NoError(t, err)

	cancelled, err := mgr.Cancel(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)

	close(release)
	waitStatus(t, mgr, first.ID, models.JobStatusCompleted)

	_, executed := ran.Load(queued.ID)
	assert.False(t, executed, "cancelled job must not execute after dequeue")
}

func TestCancelTerminalJobIsNoOp(t *testing.T) {
	mgr, _ := newTestManager(t, 1)
	mgr.RegisterHandler("quick", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		return "ok", nil
	})

	job, err := mgr.Submit(context.Background(), "quick", nil, models.PriorityNormal)
	require.NoError(t, err)
	waitStatus(t, mgr, job.ID, models.JobStatusCompleted)

	rec, err := mgr.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
}

func TestResultBeforeCompletion(t *testing.T) {
	release := make(chan struct{})
	mgr, _ := newTestManager(t, 1)
	mgr.RegisterHandler("pending", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		<-release
		return "ok", nil
	})
	defer close(release)

	job, err := mgr.Submit(context.Background(), "pending", nil, models.PriorityNormal)
	require.NoError(t, err)

	blob, rec, err := mgr.Result(context.Background(), job.ID)
	require.NoError(t, err, "polling a live job is not an error")
	assert.Nil(t, blob)
	assert.NotEqual(t, models.JobStatusCompleted, rec.Status)
}

func TestResultExpired(t *testing.T) {
	mgr, storage := newTestManager(t, 1)

	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		Kind:      "old",
		Status:    models.JobStatusCompleted,
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, storage.SaveJob(context.Background(), job))

	_, _, err := mgr.Result(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindJobExpired))
}

func TestResultCorruptBlob(t *testing.T) {
	mgr, storage := newTestManager(t, 1)

	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		Kind:      "mangled",
		Status:    models.JobStatusCompleted,
		ResultRef: "mangled.result",
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, storage.SaveJob(context.Background(), job))
	require.NoError(t, os.WriteFile(mgr.resultPath(job.ID), []byte("{truncated"), 0644))

	_, _, err := mgr.Result(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCorruptArtifact))

	// A missing blob is also corruption from the caller's point of view.
	require.NoError(t, os.Remove(mgr.resultPath(job.ID)))
	_, _, err = mgr.Result(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCorruptArtifact))
}

func TestRecoverRequeuesPersistedJobs(t *testing.T) {
	mgr, storage := newTestManager(t, 1)

	// A job persisted as queued with nothing in the in-memory queue is what
	// a restart leaves behind.
	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		Kind:      "echo",
		Params:    map[string]interface{}{"input": "survivor"},
		Status:    models.JobStatusQueued,
		Priority:  models.PriorityNormal,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, storage.SaveJob(context.Background(), job))

	mgr.RegisterHandler("echo", func(ctx context.Context, job *models.Job, report ProgressFunc) (interface{}, error) {
		return job.Params["input"], nil
	})

	requeued, err := mgr.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	waitStatus(t, mgr, job.ID, models.JobStatusCompleted)
}

func TestRecoverSkipsExpiredJobs(t *testing.T) {
	mgr, storage := newTestManager(t, 1)

	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		Kind:      "echo",
		Status:    models.JobStatusQueued,
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, storage.SaveJob(context.Background(), job))

	requeued, err := mgr.Recover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, requeued, "jobs past retention are left to the reaper")
}

func TestReapExpiresOrphanedRunningJob(t *testing.T) {
	mgr, storage := newTestManager(t, 1)

	// A running record with no live executor is an orphan from a crash.
	now := time.Now()
	job := &models.Job{
		ID:        common.NewJobID(),
		Kind:      "orphan",
		Status:    models.JobStatusRunning,
		CreatedAt: now.Add(-2 * time.Hour),
		UpdatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, storage.SaveJob(context.Background(), job))

	mgr.reap()
	rec, err := mgr.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusExpired, rec.Status)

	// The next pass removes the now-terminal record.
	mgr.reap()
	_, err = mgr.Status(context.Background(), job.ID)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindJobNotFound))
}

func TestStatusUnknownJob(t *testing.T) {
	mgr, _ := newTestManager(t, 1)
	_, err := mgr.Status(context.Background(), "job_missing")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindJobNotFound))
}
