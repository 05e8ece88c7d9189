package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger.
type Manager struct {
	db      *BadgerDB
	job     interfaces.JobStorage
	change  interfaces.ChangeStorage
	webhook interfaces.WebhookStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		job:     NewJobStorage(db, logger),
		change:  NewChangeStorage(db, logger),
		webhook: NewWebhookStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")
	return manager, nil
}

// JobStorage returns the Job storage interface.
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ChangeStorage returns the change-tracking storage interface.
func (m *Manager) ChangeStorage() interfaces.ChangeStorage {
	return m.change
}

// WebhookStorage returns the webhook recovery-log storage interface.
func (m *Manager) WebhookStorage() interfaces.WebhookStorage {
	return m.webhook
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
