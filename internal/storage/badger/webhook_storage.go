package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/models"
)

// WebhookStorage persists the queue-overflow recovery log.
type WebhookStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWebhookStorage creates a new WebhookStorage instance.
func NewWebhookStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WebhookStorage {
	return &WebhookStorage{db: db, logger: logger}
}

func (s *WebhookStorage) SaveDropped(ctx context.Context, ev *models.DroppedEvent) error {
	if ev.EventID == "" {
		return fmt.Errorf("event ID is required")
	}
	if err := s.db.Store().Upsert(ev.EventID, ev); err != nil {
		return fmt.Errorf("failed to save dropped event: %w", err)
	}
	return nil
}

func (s *WebhookStorage) ListDropped(ctx context.Context, limit int) ([]*models.DroppedEvent, error) {
	query := badgerhold.Where("EventID").Ne("").SortBy("DroppedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var events []models.DroppedEvent
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to list dropped events: %w", err)
	}
	result := make([]*models.DroppedEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}
