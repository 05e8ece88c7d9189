// Package cache implements the two-tier response cache: an in-memory
// ristretto L1 in front of a directory-sharded disk L2. Lookups probe L1
// then L2, warming L1 on a disk hit; writes go to both tiers with the L2
// write running async.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
)

// Service is the shared cache. Safe for concurrent use.
type Service struct {
	l1      *ristretto.Cache[string, *models.CacheEntry]
	l2      *diskStore
	ttl     time.Duration
	logger  arbor.ILogger
	metrics *metrics.Metrics
}

// NewService creates both tiers. The L2 directory is created on demand.
func NewService(config common.CacheConfig, l2Path string, m *metrics.Metrics, logger arbor.ILogger) (*Service, error) {
	items := config.L1Items
	if items <= 0 {
		items = 1000
	}
	maxBytes := config.L1Bytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}

	l1, err := ristretto.NewCache(&ristretto.Config[string, *models.CacheEntry]{
		NumCounters: items * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(config.TTLMs) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Service{
		l1:      l1,
		l2:      newDiskStore(l2Path, logger),
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}, nil
}

// DefaultTTL returns the configured entry TTL.
func (s *Service) DefaultTTL() time.Duration { return s.ttl }

// Get returns the entry for key if present and unexpired. An L2 hit warms
// L1. Expired and corrupt entries are treated as misses and removed.
func (s *Service) Get(ctx context.Context, key models.Fingerprint) (*models.CacheEntry, bool) {
	now := time.Now()

	if entry, ok := s.l1.Get(string(key)); ok {
		if !entry.Expired(now) {
			s.metrics.RecordCache(true)
			return entry, true
		}
		s.l1.Del(string(key))
	}

	entry, err := s.l2.read(ctx, key)
	if err != nil || entry == nil {
		s.metrics.RecordCache(false)
		return nil, false
	}
	if entry.Expired(now) {
		s.l2.remove(key)
		s.metrics.RecordCache(false)
		return nil, false
	}

	s.l1.SetWithTTL(string(key), entry, entryCost(entry), time.Until(entry.ExpiresAt))
	s.metrics.RecordCache(true)
	return entry, true
}

// Put stores the entry in both tiers under the default TTL.
func (s *Service) Put(ctx context.Context, key models.Fingerprint, resp *models.Response) *models.CacheEntry {
	return s.PutWithTTL(ctx, key, resp, s.ttl)
}

// PutWithTTL stores the entry with an explicit TTL. The disk write is
// asynchronous; a crash loses at most the L2 copy. The L1 admission buffer
// is drained before returning so an immediate Get sees the entry.
func (s *Service) PutWithTTL(ctx context.Context, key models.Fingerprint, resp *models.Response, ttl time.Duration) *models.CacheEntry {
	now := time.Now()
	entry := &models.CacheEntry{
		Key:       key,
		Response:  resp,
		Artifacts: make(map[models.ArtifactKind][]byte),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	s.l1.SetWithTTL(string(key), entry, entryCost(entry), ttl)
	s.l1.Wait()
	go func() {
		if err := s.l2.write(entry); err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("L2 cache write failed")
		}
	}()
	return entry
}

// PutArtifact attaches a derived artifact to an existing entry and
// re-persists it. Missing entries are ignored.
func (s *Service) PutArtifact(ctx context.Context, key models.Fingerprint, kind models.ArtifactKind, data []byte) {
	entry, ok := s.Get(ctx, key)
	if !ok {
		return
	}
	if entry.Artifacts == nil {
		entry.Artifacts = make(map[models.ArtifactKind][]byte)
	}
	entry.Artifacts[kind] = data
	s.l1.SetWithTTL(string(key), entry, entryCost(entry), time.Until(entry.ExpiresAt))
	s.l1.Wait()
	go func() {
		if err := s.l2.write(entry); err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("L2 artifact write failed")
		}
	}()
}

// Invalidate removes the key from both tiers.
func (s *Service) Invalidate(key models.Fingerprint) {
	s.l1.Del(string(key))
	s.l2.remove(key)
}

// Close releases the L1 cache resources.
func (s *Service) Close() {
	s.l1.Close()
}

func entryCost(e *models.CacheEntry) int64 {
	cost := int64(256) // struct overhead
	if e.Response != nil {
		cost += int64(len(e.Response.Body))
	}
	for _, a := range e.Artifacts {
		cost += int64(len(a))
	}
	return cost
}
