// -----
// Snapshot Store - zstd-compressed content blobs under a sharded tree
// -----

package snapshots

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/models"
)

// Store persists snapshot content as zstd blobs. The index entries live in
// the database; this store only owns bytes. Paths shard on the first four
// id characters so no directory grows unbounded.
type Store struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  arbor.ILogger
}

// NewStore creates the snapshot store rooted at {storageRoot}/snapshots.
func NewStore(storageRoot string, logger arbor.ILogger) (*Store, error) {
	root, err := filepath.Abs(filepath.Join(storageRoot, "snapshots"))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve snapshot root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("cannot create snapshot root: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("cannot create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create zstd decoder: %w", err)
	}

	return &Store{root: root, encoder: encoder, decoder: decoder, logger: logger}, nil
}

// path maps an id to its sharded location and refuses anything that would
// escape the root.
func (s *Store) path(id string) (string, error) {
	if len(id) < 4 || strings.ContainsAny(id, "/\\.") {
		return "", models.NewError(models.KindInvalidArgument, "malformed snapshot id")
	}
	p := filepath.Join(s.root, id[0:2], id[2:4], id+".zst")
	if !strings.HasPrefix(filepath.Clean(p), s.root+string(filepath.Separator)) {
		return "", models.NewError(models.KindInvalidArgument, "snapshot path escapes store root")
	}
	return p, nil
}

// Write compresses and stores content under the id. The blob lands via
// temp-file-then-rename so readers never observe a partial write.
func (s *Store) Write(id string, content []byte) (int, error) {
	p, err := s.path(id)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, models.WrapError(models.KindInternal, err, "cannot create snapshot shard")
	}

	compressed := s.encoder.EncodeAll(content, nil)

	tmp, err := os.CreateTemp(filepath.Dir(p), id+".*")
	if err != nil {
		return 0, models.WrapError(models.KindInternal, err, "cannot stage snapshot")
	}
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, models.WrapError(models.KindInternal, err, "cannot write snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, models.WrapError(models.KindInternal, err, "cannot flush snapshot")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return 0, models.WrapError(models.KindInternal, err, "cannot publish snapshot")
	}

	s.logger.Debug().
		Str("snapshot_id", id).
		Int("raw_bytes", len(content)).
		Int("stored_bytes", len(compressed)).
		Msg("Snapshot written")
	return len(compressed), nil
}

// Read returns the decompressed content. A blob that fails to decompress is
// quarantined so the next read does not trip over it again.
func (s *Store) Read(id string) ([]byte, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}

	compressed, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.NewError(models.KindSnapshotNotFound, "snapshot content not found")
		}
		return nil, models.WrapError(models.KindInternal, err, "cannot read snapshot")
	}

	content, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		s.quarantine(p, id)
		return nil, models.WrapError(models.KindCorruptArtifact, err, "snapshot content is corrupt")
	}
	return content, nil
}

// Delete removes the blob; a missing blob is not an error.
func (s *Store) Delete(id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return models.WrapError(models.KindInternal, err, "cannot delete snapshot")
	}
	return nil
}

func (s *Store) quarantine(p, id string) {
	dst := p + ".quarantine"
	if err := os.Rename(p, dst); err != nil {
		s.logger.Warn().Err(err).Str("snapshot_id", id).Msg("Quarantine failed")
		return
	}
	s.logger.Warn().Str("snapshot_id", id).Msg("Corrupt snapshot quarantined")
}

// Close releases the compressor resources.
func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}
