package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/venator/internal/common"
)

func newTestLimiter(mutate func(*common.RateLimitConfig)) *Limiter {
	config := common.DefaultConfig().RateLimit
	config.RPS = 1000
	config.Burst = 1000
	if mutate != nil {
		mutate(&config)
	}
	return New(config, arbor.NewLogger())
}

func TestAcquireRelease(t *testing.T) {
	l := newTestLimiter(nil)

	release, err := l.Acquire(context.Background(), "example.com")
	require.NoError(t, err)
	require.NotNil(t, release)

	// Releasing twice must not double-free the global slot.
	release()
	release()

	release, err = l.Acquire(context.Background(), "example.com")
	require.NoError(t, err)
	release()
}

func TestGlobalInflightCap(t *testing.T) {
	l := newTestLimiter(func(c *common.RateLimitConfig) { c.GlobalInflight = 1 })

	release, err := l.Acquire(context.Background(), "a.example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "b.example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second fetch waits on the global cap")

	release()
	release2, err := l.Acquire(context.Background(), "b.example.com")
	require.NoError(t, err)
	release2()
}

func TestHostBucketThrottles(t *testing.T) {
	l := newTestLimiter(func(c *common.RateLimitConfig) {
		c.RPS = 1
		c.Burst = 1
	})

	release, err := l.Acquire(context.Background(), "slow.example.com")
	require.NoError(t, err)
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "slow.example.com")
	assert.Error(t, err, "bucket is empty until the next refill")
}

func TestHostsAreIndependent(t *testing.T) {
	l := newTestLimiter(func(c *common.RateLimitConfig) {
		c.RPS = 1
		c.Burst = 1
	})

	release, err := l.Acquire(context.Background(), "busy.example.com")
	require.NoError(t, err)
	release()

	// A different host has its own full bucket.
	release, err = l.Acquire(context.Background(), "idle.example.com")
	require.NoError(t, err)
	release()
}

func TestSetCrawlDelay(t *testing.T) {
	l := newTestLimiter(nil)

	l.SetCrawlDelay("polite.example.com", 2*time.Second)

	b := l.bucket("polite.example.com")
	assert.Equal(t, 2*time.Second, b.override)
	assert.Equal(t, rate.Every(2*time.Second), b.limiter.Limit())
	assert.Equal(t, 1, b.limiter.Burst())

	// Zero and negative delays are ignored.
	l.SetCrawlDelay("polite.example.com", 0)
	assert.Equal(t, 2*time.Second, l.bucket("polite.example.com").override)
}

func TestPruneIdle(t *testing.T) {
	l := newTestLimiter(nil)

	release, err := l.Acquire(context.Background(), "one.example.com")
	require.NoError(t, err)
	release()
	release, err = l.Acquire(context.Background(), "two.example.com")
	require.NoError(t, err)
	release()

	assert.Zero(t, l.PruneIdle(time.Hour), "recently used buckets survive")

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, l.PruneIdle(time.Millisecond))
	assert.Zero(t, l.PruneIdle(time.Millisecond), "pruning is idempotent")
}
