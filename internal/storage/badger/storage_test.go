package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	config := common.DefaultConfig().Storage.Badger
	config.Path = filepath.Join(t.TempDir(), "db")

	mgr, err := NewManager(arbor.NewLogger(), &config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func testJob(id string, status models.JobStatus, createdAt time.Time) *models.Job {
	return &models.Job{
		ID:        id,
		Kind:      "crawl",
		Params:    map[string]interface{}{"url": "https://example.com/"},
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		ExpiresAt: createdAt.Add(time.Hour),
	}
}

func TestJobStorageRoundtrip(t *testing.T) {
	store := newTestManager(t).JobStorage()
	ctx := context.Background()

	job := testJob("job_1", models.JobStatusQueued, time.Now())
	require.NoError(t, store.SaveJob(ctx, job))

	got, err := store.GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "crawl", got.Kind)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Equal(t, "https://example.com/", got.Params["url"])

	// Upsert replaces in place.
	job.Status = models.JobStatusRunning
	require.NoError(t, store.SaveJob(ctx, job))
	got, err = store.GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
}

func TestJobStorageMissingJob(t *testing.T) {
	store := newTestManager(t).JobStorage()
	_, err := store.GetJob(context.Background(), "job_missing")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindJobNotFound))
}

func TestJobStorageRequiresID(t *testing.T) {
	store := newTestManager(t).JobStorage()
	assert.Error(t, store.SaveJob(context.Background(), &models.Job{}))
}

func TestJobStorageListFiltersAndSorts(t *testing.T) {
	store := newTestManager(t).JobStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.SaveJob(ctx, testJob("job_a", models.JobStatusCompleted, base)))
	require.NoError(t, store.SaveJob(ctx, testJob("job_b", models.JobStatusQueued, base.Add(time.Minute))))
	require.NoError(t, store.SaveJob(ctx, testJob("job_c", models.JobStatusCompleted, base.Add(2*time.Minute))))

	all, err := store.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job_c", all[0].ID, "newest first")
	assert.Equal(t, "job_a", all[2].ID)

	completed, err := store.ListJobs(ctx, models.JobStatusCompleted, 0)
	require.NoError(t, err)
	require.Len(t, completed, 2)
	for _, j := range completed {
		assert.Equal(t, models.JobStatusCompleted, j.Status)
	}

	limited, err := store.ListJobs(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestJobStorageDelete(t *testing.T) {
	store := newTestManager(t).JobStorage()
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, testJob("job_del", models.JobStatusCompleted, time.Now())))
	require.NoError(t, store.DeleteJob(ctx, "job_del"))
	_, err := store.GetJob(ctx, "job_del")
	assert.True(t, models.IsKind(err, models.KindJobNotFound))

	// Deleting a missing job is not an error.
	assert.NoError(t, store.DeleteJob(ctx, "job_del"))
}

func TestChangeStorageSnapshots(t *testing.T) {
	store := newTestManager(t).ChangeStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"snap_1", "snap_2"} {
		require.NoError(t, store.SaveSnapshot(ctx, &models.Snapshot{
			ID:          id,
			URL:         "https://example.com/page",
			TakenAt:     base.Add(time.Duration(i) * time.Minute),
			TextHash:    "th",
			ContentSize: 100,
		}))
	}
	require.NoError(t, store.SaveSnapshot(ctx, &models.Snapshot{
		ID:      "snap_other",
		URL:     "https://example.com/other",
		TakenAt: base,
	}))

	snaps, err := store.ListSnapshots(ctx, "https://example.com/page")
	require.NoError(t, err)
	require.Len(t, snaps, 2, "listing is scoped to the URL")
	assert.Equal(t, "snap_1", snaps[0].ID, "oldest first")

	got, err := store.GetSnapshot(ctx, "snap_2")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", got.URL)

	_, err = store.GetSnapshot(ctx, "snap_missing")
	assert.True(t, models.IsKind(err, models.KindSnapshotNotFound))

	require.NoError(t, store.DeleteSnapshot(ctx, "snap_2"))
	_, err = store.GetSnapshot(ctx, "snap_2")
	assert.True(t, models.IsKind(err, models.KindSnapshotNotFound))
	assert.NoError(t, store.DeleteSnapshot(ctx, "snap_2"), "delete is idempotent")
}

func TestChangeStorageChangeHistory(t *testing.T) {
	store := newTestManager(t).ChangeStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	scores := []float64{0.1, 0.5, 0.9}
	for i, score := range scores {
		require.NoError(t, store.SaveChange(ctx, &models.ChangeRecord{
			URL:          "https://example.com/page",
			FromSnapshot: "snap_a",
			ToSnapshot:   "snap_b",
			Score:        score,
			Significance: models.SignificanceMinor,
			ComputedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	history, err := store.ListChanges(ctx, "https://example.com/page", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 0.9, history[0].Score, "newest first")
	assert.Equal(t, 0.1, history[2].Score)

	limited, err := store.ListChanges(ctx, "https://example.com/page", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := store.ListChanges(ctx, "https://example.com/unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChangeStorageAlertRules(t *testing.T) {
	store := newTestManager(t).ChangeStorage()
	ctx := context.Background()

	rule := &models.AlertRule{
		ID:          "rule_1",
		URL:         "https://example.com/page",
		MinSeverity: models.SignificanceModerate,
		TargetURL:   "https://hooks.example.com/notify",
	}
	require.NoError(t, store.SaveAlertRule(ctx, rule))
	require.NoError(t, store.SaveAlertRule(ctx, &models.AlertRule{
		ID:          "rule_2",
		URL:         "https://example.com/other",
		MinSeverity: models.SignificanceMajor,
		TargetURL:   "https://hooks.example.com/notify",
	}))

	scoped, err := store.ListAlertRules(ctx, "https://example.com/page")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "rule_1", scoped[0].ID)
	assert.False(t, scoped[0].CreatedAt.IsZero(), "CreatedAt is stamped on save")

	all, err := store.ListAlertRules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Error(t, store.SaveAlertRule(ctx, &models.AlertRule{}), "rules need an ID")
}

func TestWebhookStorageDroppedEvents(t *testing.T) {
	store := newTestManager(t).WebhookStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"evt_1", "evt_2", "evt_3"} {
		require.NoError(t, store.SaveDropped(ctx, &models.DroppedEvent{
			EventID:   id,
			Kind:      "change_detected",
			TargetURL: "https://hooks.example.com/notify",
			DroppedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	dropped, err := store.ListDropped(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dropped, 3)
	assert.Equal(t, "evt_3", dropped[0].EventID, "newest first")

	limited, err := store.ListDropped(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "evt_3", limited[0].EventID)

	assert.Error(t, store.SaveDropped(ctx, &models.DroppedEvent{}), "events need an ID")
}

func TestManagerResetOnStartup(t *testing.T) {
	dir := t.TempDir()
	config := common.DefaultConfig().Storage.Badger
	config.Path = filepath.Join(dir, "db")

	mgr, err := NewManager(arbor.NewLogger(), &config)
	require.NoError(t, err)
	require.NoError(t, mgr.JobStorage().SaveJob(context.Background(),
		testJob("job_persist", models.JobStatusCompleted, time.Now())))
	require.NoError(t, mgr.Close())

	// Reopen without reset: the record survives.
	mgr, err = NewManager(arbor.NewLogger(), &config)
	require.NoError(t, err)
	_, err = mgr.JobStorage().GetJob(context.Background(), "job_persist")
	assert.NoError(t, err)
	require.NoError(t, mgr.Close())

	// Reopen with reset: the database starts empty.
	config.ResetOnStartup = true
	mgr, err = NewManager(arbor.NewLogger(), &config)
	require.NoError(t, err)
	defer mgr.Close()
	_, err = mgr.JobStorage().GetJob(context.Background(), "job_persist")
	assert.True(t, models.IsKind(err, models.KindJobNotFound))
}
