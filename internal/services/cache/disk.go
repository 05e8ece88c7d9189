package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/models"
)

// diskStore is the L2 tier: one JSON envelope per fingerprint under
// {root}/{xx}/{yy}/{fingerprint}.cache. Writes are temp-then-rename so a
// crash never leaves a partially written entry visible; corrupt entries
// read as misses and are deleted.
type diskStore struct {
	root   string
	logger arbor.ILogger
}

func newDiskStore(root string, logger arbor.ILogger) *diskStore {
	return &diskStore{root: root, logger: logger}
}

func (d *diskStore) path(key models.Fingerprint) string {
	a, b := key.Shard()
	return filepath.Join(d.root, a, b, string(key)+".cache")
}

func (d *diskStore) read(ctx context.Context, key models.Fingerprint) (*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		d.logger.Warn().Str("key", string(key)).Msg("Corrupt L2 cache entry, removing")
		d.remove(key)
		return nil, nil
	}
	if entry.Key != key {
		d.remove(key)
		return nil, nil
	}
	return &entry, nil
}

func (d *diskStore) write(entry *models.CacheEntry) error {
	path := d.path(entry.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (d *diskStore) remove(key models.Fingerprint) {
	_ = os.Remove(d.path(key))
}
