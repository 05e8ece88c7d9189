package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

// ChangeStorage persists snapshot index entries, change records, and alert
// rules for the change tracker.
type ChangeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// changeRow wraps ChangeRecord with a synthetic key, since change records
// have no natural one.
type changeRow struct {
	Key    string `badgerhold:"key"`
	Record models.ChangeRecord
}

// NewChangeStorage creates a new ChangeStorage instance.
func NewChangeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ChangeStorage {
	return &ChangeStorage{db: db, logger: logger}
}

func (s *ChangeStorage) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot ID is required")
	}
	if err := s.db.Store().Upsert(snap.ID, snap); err != nil {
		return fmt.Errorf("failed to save snapshot index entry: %w", err)
	}
	return nil
}

func (s *ChangeStorage) ListSnapshots(ctx context.Context, url string) ([]*models.Snapshot, error) {
	var snaps []models.Snapshot
	if err := s.db.Store().Find(&snaps, badgerhold.Where("URL").Eq(url).SortBy("TakenAt")); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	result := make([]*models.Snapshot, len(snaps))
	for i := range snaps {
		result[i] = &snaps[i]
	}
	return result, nil
}

func (s *ChangeStorage) GetSnapshot(ctx context.Context, id string) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := s.db.Store().Get(id, &snap); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewError(models.KindSnapshotNotFound, "snapshot not found")
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snap, nil
}

func (s *ChangeStorage) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Snapshot{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (s *ChangeStorage) SaveChange(ctx context.Context, rec *models.ChangeRecord) error {
	row := changeRow{
		Key:    fmt.Sprintf("%s|%d", rec.URL, rec.ComputedAt.UnixNano()),
		Record: *rec,
	}
	if err := s.db.Store().Upsert(row.Key, &row); err != nil {
		return fmt.Errorf("failed to save change record: %w", err)
	}
	return nil
}

func (s *ChangeStorage) ListChanges(ctx context.Context, url string, limit int) ([]*models.ChangeRecord, error) {
	query := badgerhold.Where("Record.URL").Eq(url).SortBy("Record.ComputedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []changeRow
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}
	result := make([]*models.ChangeRecord, len(rows))
	for i := range rows {
		result[i] = &rows[i].Record
	}
	return result, nil
}

func (s *ChangeStorage) SaveAlertRule(ctx context.Context, rule *models.AlertRule) error {
	if rule.ID == "" {
		return fmt.Errorf("alert rule ID is required")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	if err := s.db.Store().Upsert(rule.ID, rule); err != nil {
		return fmt.Errorf("failed to save alert rule: %w", err)
	}
	return nil
}

func (s *ChangeStorage) ListAlertRules(ctx context.Context, url string) ([]*models.AlertRule, error) {
	query := badgerhold.Where("ID").Ne("")
	if url != "" {
		query = badgerhold.Where("URL").Eq(url)
	}
	var rules []models.AlertRule
	if err := s.db.Store().Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	result := make([]*models.AlertRule, len(rules))
	for i := range rules {
		result[i] = &rules[i]
	}
	return result, nil
}
