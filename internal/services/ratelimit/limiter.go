// -----------------------------------------------------------------------
// Rate Limiter - per-host token buckets plus a global in-flight cap
// -----------------------------------------------------------------------

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ternarybob/venator/internal/common"
)

// Limiter combines per-host token buckets with a global semaphore capping
// in-flight fetches. Hosts cannot starve each other beyond their own bucket.
type Limiter struct {
	rps      rate.Limit
	burst    int
	inflight *semaphore.Weighted
	logger   arbor.ILogger

	mu      sync.Mutex
	buckets map[string]*hostBucket
}

type hostBucket struct {
	limiter  *rate.Limiter
	override time.Duration // robots crawl-delay, zero when unset
	lastUsed time.Time
}

// New creates a Limiter from configuration.
func New(config common.RateLimitConfig, logger arbor.ILogger) *Limiter {
	rps := config.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := config.Burst
	if burst < 1 {
		burst = int(rps) * 2
	}
	inflight := config.GlobalInflight
	if inflight < 1 {
		inflight = 100
	}
	return &Limiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		inflight: semaphore.NewWeighted(inflight),
		logger:   logger,
		buckets:  make(map[string]*hostBucket),
	}
}

// Acquire blocks until both a global slot and a host token are available or
// the context is cancelled. The returned release func must be called once
// the fetch completes.
func (l *Limiter) Acquire(ctx context.Context, host string) (func(), error) {
	if err := l.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	bucket := l.bucket(host)
	if err := bucket.limiter.Wait(ctx); err != nil {
		l.inflight.Release(1)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.inflight.Release(1) })
	}, nil
}

// SetCrawlDelay applies a robots.txt crawl-delay override for a host. The
// host's refill rate becomes 1/delay while the override is in force.
func (l *Limiter) SetCrawlDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	b := l.bucket(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	if b.override == delay {
		return
	}
	b.override = delay
	b.limiter.SetLimit(rate.Every(delay))
	b.limiter.SetBurst(1)
	l.logger.Debug().
		Str("host", host).
		Dur("crawl_delay", delay).
		Msg("Applied crawl-delay override")
}

func (l *Limiter) bucket(host string) *hostBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		b = &hostBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[host] = b
	}
	b.lastUsed = time.Now()
	return b
}

// PruneIdle drops buckets unused for longer than maxIdle and returns how
// many were removed. Called periodically by the owning service.
func (l *Limiter) PruneIdle(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	cutoff := time.Now().Add(-maxIdle)
	for host, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, host)
			removed++
		}
	}
	return removed
}
