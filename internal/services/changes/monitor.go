package changes

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
)

// minMonitorInterval keeps monitors from hammering a site.
const minMonitorInterval = time.Minute

// MonitorInfo describes one scheduled monitor.
type MonitorInfo struct {
	ID       string                 `json:"id"`
	URL      string                 `json:"url"`
	Interval time.Duration          `json:"interval"`
	Options  models.TrackingOptions `json:"options"`
	LastRun  time.Time              `json:"last_run,omitempty"`
	Runs     int                    `json:"runs"`
}

type monitor struct {
	info    MonitorInfo
	entryID cron.EntryID
}

// monitorSet schedules periodic Compare calls on the shared cron runner.
type monitorSet struct {
	tracker *Tracker
	cron    *cron.Cron
	logger  arbor.ILogger

	mu       sync.Mutex
	monitors map[string]*monitor
}

func newMonitorSet(t *Tracker, logger arbor.ILogger) *monitorSet {
	set := &monitorSet{
		tracker:  t,
		cron:     cron.New(),
		logger:   logger,
		monitors: make(map[string]*monitor),
	}
	set.cron.Start()
	return set
}

func (s *monitorSet) start(url string, interval time.Duration, opts models.TrackingOptions) (string, error) {
	if interval < minMonitorInterval {
		return "", models.NewError(models.KindOutOfRange, "monitor interval below %s", minMonitorInterval)
	}

	id := "mon_" + common.NewSnapshotID()[:16]
	m := &monitor{
		info: MonitorInfo{ID: id, URL: url, Interval: interval, Options: opts},
	}

	m.entryID = s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.run(id)
	}))

	s.mu.Lock()
	s.monitors[id] = m
	s.mu.Unlock()

	s.logger.Info().
		Str("monitor_id", id).
		Str("url", url).
		Dur("interval", interval).
		Msg("Monitor started")
	return id, nil
}

func (s *monitorSet) run(id string) {
	s.mu.Lock()
	m, ok := s.monitors[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	m.info.LastRun = time.Now()
	m.info.Runs++
	url, opts := m.info.URL, m.info.Options
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, _, err := s.tracker.Compare(ctx, url, opts); err != nil {
		s.logger.Warn().Err(err).Str("monitor_id", id).Str("url", url).Msg("Monitor check failed")
	}
}

func (s *monitorSet) stop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[id]
	if !ok {
		return models.NewError(models.KindInvalidArgument, "unknown monitor %q", id)
	}
	s.cron.Remove(m.entryID)
	delete(s.monitors, id)
	s.logger.Info().Str("monitor_id", id).Msg("Monitor stopped")
	return nil
}

func (s *monitorSet) list() []MonitorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MonitorInfo, 0, len(s.monitors))
	for _, m := range s.monitors {
		out = append(out, m.info)
	}
	return out
}

func (s *monitorSet) close() {
	s.mu.Lock()
	for id, m := range s.monitors {
		s.cron.Remove(m.entryID)
		delete(s.monitors, id)
	}
	s.mu.Unlock()
	s.cron.Stop()
}
