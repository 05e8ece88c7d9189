package fetcher

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/models"
)

// RetryPolicy defines retry behavior with exponential backoff and jitter.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFraction    float64
}

// NewRetryPolicy creates the default policy: 3 attempts, base 1s, factor 2,
// ±20% jitter, 30s cap.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// retryableStatus covers transient upstream conditions. 429 additionally
// honors Retry-After.
func retryableStatus(code int) bool {
	switch code {
	case 429, 502, 503, 504:
		return true
	}
	return false
}

// ShouldRetry decides whether another attempt is warranted.
func (p *RetryPolicy) ShouldRetry(attempt int, statusCode int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	if err != nil {
		switch models.KindOf(err) {
		case models.KindTimeout, models.KindConnectError, models.KindDNSError:
			return true
		case models.KindHTTPStatus:
			return retryableStatus(statusCode)
		default:
			return false
		}
	}
	return retryableStatus(statusCode)
}

// Backoff calculates the wait before the given zero-based attempt, honoring
// a Retry-After header value when one was supplied.
func (p *RetryPolicy) Backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			d := time.Duration(secs) * time.Second
			if d > p.MaxBackoff {
				return p.MaxBackoff
			}
			return d
		}
		if at, err := time.Parse(time.RFC1123, retryAfter); err == nil {
			if d := time.Until(at); d > 0 {
				if d > p.MaxBackoff {
					return p.MaxBackoff
				}
				return d
			}
		}
	}

	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	jitter := backoff * p.JitterFraction * (rand.Float64()*2 - 1)
	backoff += jitter
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	return time.Duration(backoff)
}

// Execute runs fn with the retry loop. fn returns the HTTP status (0 when
// transport failed), the Retry-After header, and an error. The final error
// is annotated with the attempt count.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, fn func() (int, string, error)) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		statusCode, retryAfter, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !p.ShouldRetry(attempt+1, statusCode, err) {
			logger.Debug().
				Int("attempt", attempt+1).
				Int("status_code", statusCode).
				Err(err).
				Msg("Non-retryable error, failing immediately")
			return models.AsError(err).WithAttempts(attempt + 1)
		}

		backoff := p.Backoff(attempt, retryAfter)
		logger.Debug().
			Int("attempt", attempt+1).
			Int("status_code", statusCode).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return models.WrapError(models.KindTimeout, ctx.Err(), "cancelled during retry backoff").
				WithAttempts(attempt + 1)
		case <-time.After(backoff):
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")
	return models.AsError(lastErr).WithAttempts(p.MaxAttempts)
}
