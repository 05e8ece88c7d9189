package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
)

func newTestCache(t *testing.T, mutate func(*common.CacheConfig)) *Service {
	t.Helper()
	config := common.DefaultConfig().Cache
	if mutate != nil {
		mutate(&config)
	}
	s, err := NewService(config, t.TempDir(), metrics.New(), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testKey(path string) models.Fingerprint {
	return models.NewFingerprint("GET", models.CanonicalURL{
		Scheme: "https",
		Host:   "example.com",
		Path:   path,
	}, nil, nil)
}

func testResponse(body string) *models.Response {
	return &models.Response{
		URL:        "https://example.com/",
		StatusCode: 200,
		Body:       []byte(body),
		FetchedAt:  time.Now(),
	}
}

// waitFor polls until cond is true or the deadline passes. Ristretto admits
// asynchronously and L2 writes run on a goroutine, so tests poll instead of
// assuming immediate visibility.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newTestCache(t, nil)
	key := testKey("/roundtrip")

	s.Put(context.Background(), key, testResponse("cached body"))

	entry, ok := s.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, key, entry.Key)
	assert.Equal(t, "cached body", string(entry.Response.Body))
	assert.False(t, entry.Expired(time.Now()))
}

func TestPutIsImmediatelyVisible(t *testing.T) {
	s := newTestCache(t, nil)

	// Fast successive put-then-get is the normal fetch-through pattern; the
	// write must not race the read.
	for i := 0; i < 50; i++ {
		key := testKey(fmt.Sprintf("/burst/%d", i))
		s.Put(context.Background(), key, testResponse("body"))
		_, ok := s.Get(context.Background(), key)
		require.True(t, ok, "iteration %d: entry invisible right after Put", i)
	}
}

func TestGetMiss(t *testing.T) {
	s := newTestCache(t, nil)
	_, ok := s.Get(context.Background(), testKey("/never-stored"))
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	s := newTestCache(t, nil)
	key := testKey("/expiring")

	s.PutWithTTL(context.Background(), key, testResponse("stale"), 20*time.Millisecond)
	s.l1.Wait()

	_, ok := s.Get(context.Background(), key)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = s.Get(context.Background(), key)
	assert.False(t, ok, "expired entries read as misses")
}

func TestL2HitWarmsL1(t *testing.T) {
	s := newTestCache(t, nil)
	key := testKey("/disk-only")

	now := time.Now()
	entry := &models.CacheEntry{
		Key:       key,
		Response:  testResponse("from disk"),
		StoredAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.l2.write(entry))

	got, ok := s.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "from disk", string(got.Response.Body))

	s.l1.Wait()
	_, ok = s.l1.Get(string(key))
	assert.True(t, ok, "disk hit promoted to L1")
}

func TestCorruptL2EntryIsAMiss(t *testing.T) {
	s := newTestCache(t, nil)
	key := testKey("/corrupt")

	path := s.l2.path(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	_, ok := s.Get(context.Background(), key)
	assert.False(t, ok)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "corrupt entry deleted on read")
}

func TestInvalidate(t *testing.T) {
	s := newTestCache(t, nil)
	key := testKey("/invalidate")

	s.Put(context.Background(), key, testResponse("doomed"))
	s.l1.Wait()
	waitFor(t, 2*time.Second, func() bool {
		_, err := os.Stat(s.l2.path(key))
		return err == nil
	})

	s.Invalidate(key)

	_, ok := s.Get(context.Background(), key)
	assert.False(t, ok)
	_, err := os.Stat(s.l2.path(key))
	assert.True(t, os.IsNotExist(err))
}

func TestPutArtifact(t *testing.T) {
	s := newTestCache(t, nil)
	key := testKey("/artifacts")

	s.Put(context.Background(), key, testResponse("<html>page</html>"))
	s.l1.Wait()

	s.PutArtifact(context.Background(), key, models.ArtifactText, []byte("page"))
	s.l1.Wait()

	entry, ok := s.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, []byte("page"), entry.Artifacts[models.ArtifactText])
}

func TestPutArtifactMissingEntryIgnored(t *testing.T) {
	s := newTestCache(t, nil)
	s.PutArtifact(context.Background(), testKey("/absent"), models.ArtifactText, []byte("x"))

	_, ok := s.Get(context.Background(), testKey("/absent"))
	assert.False(t, ok)
}

func TestDiskStoreKeyMismatch(t *testing.T) {
	s := newTestCache(t, nil)
	key := testKey("/real")
	other := testKey("/other")

	now := time.Now()
	entry := &models.CacheEntry{Key: other, Response: testResponse("misplaced"), StoredAt: now, ExpiresAt: now.Add(time.Hour)}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	path := s.l2.path(key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))

	got, err := s.l2.read(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, got, "entry stored under the wrong fingerprint is discarded")
}

func TestDefaultTTL(t *testing.T) {
	s := newTestCache(t, func(c *common.CacheConfig) { c.TTLMs = 0 })
	assert.Equal(t, time.Hour, s.DefaultTTL(), "zero TTL falls back to an hour")
}
