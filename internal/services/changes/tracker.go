// -----
// Change Tracker - snapshot baselines, weighted change scoring, alert
// routing, and trend reporting
// -----

package changes

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/fetcher"
	"github.com/ternarybob/venator/internal/services/metrics"
	"github.com/ternarybob/venator/internal/services/snapshots"
	"github.com/ternarybob/venator/internal/services/webhooks"
)

// EventChangeDetected is the webhook event kind emitted for significant
// changes.
const EventChangeDetected = "change.detected"

// Tracker owns the track-changes lifecycle: baselines, comparisons, alert
// rules, and monitors.
type Tracker struct {
	fetcher    *fetcher.Service
	store      *snapshots.Store
	storage    interfaces.ChangeStorage
	dispatcher *webhooks.Dispatcher
	cfg        common.ChangesConfig
	logger     arbor.ILogger
	metrics    *metrics.Metrics
	monitors   *monitorSet
}

// NewTracker builds the tracker over the shared fetch layer and stores.
func NewTracker(cfg common.ChangesConfig, f *fetcher.Service, store *snapshots.Store, storage interfaces.ChangeStorage, d *webhooks.Dispatcher, m *metrics.Metrics, logger arbor.ILogger) *Tracker {
	t := &Tracker{
		fetcher:    f,
		store:      store,
		storage:    storage,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}
	t.monitors = newMonitorSet(t, logger)
	return t
}

// Baseline fetches the URL and stores it as the new comparison baseline.
func (t *Tracker) Baseline(ctx context.Context, url string, opts models.TrackingOptions) (*models.Snapshot, error) {
	resp, err := t.fetcher.Fetch(ctx, url, fetcher.DefaultPolicy())
	if err != nil {
		return nil, err
	}
	return t.snapshot(ctx, resp, opts)
}

func (t *Tracker) snapshot(ctx context.Context, resp *models.Response, opts models.TrackingOptions) (*models.Snapshot, error) {
	f, err := extractFeatures(resp.Body, opts)
	if err != nil {
		return nil, err
	}

	snap := &models.Snapshot{
		ID:             common.NewSnapshotID(),
		URL:            resp.URL,
		TakenAt:        time.Now(),
		StructuralHash: f.StructuralHash(),
		TextHash:       f.TextHash(),
		ContentSize:    len(resp.Body),
	}

	if _, err := t.store.Write(snap.ID, resp.Body); err != nil {
		return nil, err
	}
	if err := t.storage.SaveSnapshot(ctx, snap); err != nil {
		// Index write failed; don't leave an orphaned blob behind.
		_ = t.store.Delete(snap.ID)
		return nil, err
	}

	t.logger.Info().
		Str("snapshot_id", snap.ID).
		Str("url", snap.URL).
		Int("bytes", snap.ContentSize).
		Msg("Snapshot taken")
	return snap, nil
}

// Compare fetches the URL, scores it against the latest snapshot, records
// the change, stores the new snapshot, and routes alerts. A URL with no
// baseline gets one implicitly and reports no change.
func (t *Tracker) Compare(ctx context.Context, url string, opts models.TrackingOptions) (*models.ChangeRecord, *models.Snapshot, error) {
	resp, err := t.fetcher.Fetch(ctx, url, fetcher.DefaultPolicy())
	if err != nil {
		return nil, nil, err
	}

	prior, err := t.latestSnapshot(ctx, resp.URL, url)
	if err != nil {
		return nil, nil, err
	}
	if prior == nil {
		snap, err := t.snapshot(ctx, resp, opts)
		if err != nil {
			return nil, nil, err
		}
		rec := &models.ChangeRecord{
			URL:          snap.URL,
			ToSnapshot:   snap.ID,
			Similarity:   1,
			Significance: models.SignificanceNone,
			ComputedAt:   time.Now(),
		}
		return rec, snap, nil
	}

	priorBody, err := t.store.Read(prior.ID)
	if err != nil {
		return nil, nil, err
	}
	priorFeatures, err := extractFeatures(priorBody, opts)
	if err != nil {
		return nil, nil, err
	}
	currFeatures, err := extractFeatures(resp.Body, opts)
	if err != nil {
		return nil, nil, err
	}

	rec := compare(priorFeatures, currFeatures, t.cfg)
	rec.URL = prior.URL
	rec.FromSnapshot = prior.ID
	rec.ComputedAt = time.Now()

	snap, err := t.snapshot(ctx, resp, opts)
	if err != nil {
		return nil, nil, err
	}
	rec.ToSnapshot = snap.ID

	if err := t.storage.SaveChange(ctx, rec); err != nil {
		return nil, nil, err
	}

	t.logger.Info().
		Str("url", rec.URL).
		Float64("score", rec.Score).
		Str("significance", string(rec.Significance)).
		Msg("Change computed")

	t.notify(ctx, rec, opts)
	return rec, snap, nil
}

// latestSnapshot looks up the newest index entry, trying both the final
// fetch URL and the caller's URL form.
func (t *Tracker) latestSnapshot(ctx context.Context, urls ...string) (*models.Snapshot, error) {
	var latest *models.Snapshot
	for _, u := range urls {
		snaps, err := t.storage.ListSnapshots(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, s := range snaps {
			if latest == nil || s.TakenAt.After(latest.TakenAt) {
				latest = s
			}
		}
	}
	return latest, nil
}

// notify routes the change through the configured alert rules, plus the
// inline notification threshold when the options carry one.
func (t *Tracker) notify(ctx context.Context, rec *models.ChangeRecord, opts models.TrackingOptions) {
	floor := t.cfg.NotifySignificant
	if opts.NotifyThreshold != "" {
		floor = string(opts.NotifyThreshold)
	}
	if severityRank(rec.Significance) < severityRank(models.ChangeSignificance(floor)) {
		return
	}

	rules, err := t.storage.ListAlertRules(ctx, rec.URL)
	if err != nil {
		t.logger.Warn().Err(err).Str("url", rec.URL).Msg("Alert rule lookup failed")
		return
	}

	minInterval := time.Duration(t.cfg.MinNotifyMs) * time.Millisecond
	if opts.MinNotifyInterval > 0 {
		minInterval = opts.MinNotifyInterval
	}

	now := time.Now()
	for _, rule := range rules {
		if severityRank(rec.Significance) < severityRank(rule.MinSeverity) {
			continue
		}
		if !rule.LastNotified.IsZero() && now.Sub(rule.LastNotified) < minInterval {
			continue
		}
		if _, err := t.dispatcher.Enqueue(EventChangeDetected, rec, rule.TargetURL, models.PriorityHigh); err != nil {
			t.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Alert delivery rejected")
			continue
		}
		rule.LastNotified = now
		if err := t.storage.SaveAlertRule(ctx, rule); err != nil {
			t.logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("Alert rule update failed")
		}
	}
}

// History returns recorded changes for a URL, newest first.
func (t *Tracker) History(ctx context.Context, url string, limit int) ([]*models.ChangeRecord, error) {
	return t.storage.ListChanges(ctx, url, limit)
}

// Snapshots lists the stored snapshot index entries for a URL.
func (t *Tracker) Snapshots(ctx context.Context, url string) ([]*models.Snapshot, error) {
	return t.storage.ListSnapshots(ctx, url)
}

// SnapshotContent returns a stored snapshot's decompressed body.
func (t *Tracker) SnapshotContent(ctx context.Context, id string) (*models.Snapshot, []byte, error) {
	snap, err := t.storage.GetSnapshot(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := t.store.Read(id)
	if err != nil {
		return snap, nil, err
	}
	return snap, body, nil
}

// DeleteSnapshot removes both the index entry and the content blob.
func (t *Tracker) DeleteSnapshot(ctx context.Context, id string) error {
	if err := t.storage.DeleteSnapshot(ctx, id); err != nil {
		return err
	}
	return t.store.Delete(id)
}

// AddAlertRule registers a webhook target for significant changes to a URL.
func (t *Tracker) AddAlertRule(ctx context.Context, url string, minSeverity models.ChangeSignificance, targetURL string) (*models.AlertRule, error) {
	if severityRank(minSeverity) == 0 && minSeverity != models.SignificanceNone {
		return nil, models.NewError(models.KindInvalidArgument, "unknown severity %q", minSeverity)
	}
	rule := &models.AlertRule{
		ID:          "rule_" + common.NewSnapshotID()[:16],
		URL:         url,
		MinSeverity: minSeverity,
		TargetURL:   targetURL,
		CreatedAt:   time.Now(),
	}
	if err := t.storage.SaveAlertRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// AlertRules lists rules, optionally filtered by URL.
func (t *Tracker) AlertRules(ctx context.Context, url string) ([]*models.AlertRule, error) {
	return t.storage.ListAlertRules(ctx, url)
}

// TrendReport aggregates the change history of a URL over a window.
type TrendReport struct {
	URL           string         `json:"url"`
	Window        time.Duration  `json:"window"`
	Changes       int            `json:"changes"`
	BySeverity    map[string]int `json:"by_severity"`
	AverageScore  float64        `json:"average_score"`
	MaxScore      float64        `json:"max_score"`
	FirstChange   time.Time      `json:"first_change,omitempty"`
	LastChange    time.Time      `json:"last_change,omitempty"`
	ChangesPerDay float64        `json:"changes_per_day"`
}

// Trend computes the report; a zero window covers all history.
func (t *Tracker) Trend(ctx context.Context, url string, window time.Duration) (*TrendReport, error) {
	records, err := t.storage.ListChanges(ctx, url, 0)
	if err != nil {
		return nil, err
	}

	report := &TrendReport{
		URL:        url,
		Window:     window,
		BySeverity: make(map[string]int),
	}

	cutoff := time.Time{}
	if window > 0 {
		cutoff = time.Now().Add(-window)
	}

	var total float64
	for _, rec := range records {
		if rec.ComputedAt.Before(cutoff) {
			continue
		}
		report.Changes++
		report.BySeverity[string(rec.Significance)]++
		total += rec.Score
		if rec.Score > report.MaxScore {
			report.MaxScore = rec.Score
		}
		if report.FirstChange.IsZero() || rec.ComputedAt.Before(report.FirstChange) {
			report.FirstChange = rec.ComputedAt
		}
		if rec.ComputedAt.After(report.LastChange) {
			report.LastChange = rec.ComputedAt
		}
	}

	if report.Changes > 0 {
		report.AverageScore = total / float64(report.Changes)
		span := report.LastChange.Sub(report.FirstChange)
		if span > 0 {
			report.ChangesPerDay = float64(report.Changes) / (span.Hours() / 24)
		}
	}
	return report, nil
}

// DashboardEntry summarizes one monitored URL.
type DashboardEntry struct {
	URL          string                    `json:"url"`
	Interval     time.Duration             `json:"interval"`
	LastChecked  time.Time                 `json:"last_checked,omitempty"`
	LastChange   *models.ChangeRecord      `json:"last_change,omitempty"`
	Significance models.ChangeSignificance `json:"significance,omitempty"`
}

// Dashboard summarizes all active monitors with their latest change.
func (t *Tracker) Dashboard(ctx context.Context) ([]DashboardEntry, error) {
	entries := t.monitors.list()
	out := make([]DashboardEntry, 0, len(entries))
	for _, m := range entries {
		entry := DashboardEntry{URL: m.URL, Interval: m.Interval, LastChecked: m.LastRun}
		recs, err := t.storage.ListChanges(ctx, m.URL, 1)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			entry.LastChange = recs[0]
			entry.Significance = recs[0].Significance
		}
		out = append(out, entry)
	}
	return out, nil
}

// StartMonitor schedules periodic comparison of a URL.
func (t *Tracker) StartMonitor(url string, interval time.Duration, opts models.TrackingOptions) (string, error) {
	return t.monitors.start(url, interval, opts)
}

// StopMonitor cancels a monitor by id.
func (t *Tracker) StopMonitor(id string) error {
	return t.monitors.stop(id)
}

// Monitors lists the active monitors.
func (t *Tracker) Monitors() []MonitorInfo {
	return t.monitors.list()
}

// Close stops all monitors.
func (t *Tracker) Close() {
	t.monitors.close()
}
