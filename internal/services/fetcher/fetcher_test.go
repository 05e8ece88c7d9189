package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
	"github.com/ternarybob/venator/internal/services/ratelimit"
	"github.com/ternarybob/venator/internal/services/urlguard"
)

func newTestFetcher(t *testing.T, mutate func(*common.Config)) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	config := common.DefaultConfig()
	config.SSRF.BlockPrivate = false // httptest listens on loopback
	config.RateLimit.RPS = 1000
	config.RateLimit.Burst = 1000
	config.Fetch.BreakerTrips = 1000 // keep the breaker out of retry tests
	if mutate != nil {
		mutate(config)
	}

	guard := urlguard.New(config.SSRF, logger)
	limiter := ratelimit.New(config.RateLimit, logger)
	f := NewService(config.Fetch, guard, limiter, metrics.New(), logger)
	// Short backoffs keep the retry tests fast.
	f.retry.InitialBackoff = 10 * time.Millisecond
	f.retry.MaxBackoff = 50 * time.Millisecond
	return f
}

func shortPolicy() Policy {
	policy := DefaultPolicy()
	policy.Timeout = 5 * time.Second
	policy.TotalTimeout = 20 * time.Second
	return policy
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>hello</body></html>")
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	resp, err := f.Fetch(context.Background(), srv.URL, shortPolicy())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "hello")
	assert.Equal(t, "text/html", resp.Headers["Content-Type"])
	assert.Zero(t, resp.RedirectHops)
	assert.False(t, resp.FromCache)
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "recovered")
	}))
	defer srv.Close()

	f := newTestFetcher(t, func(c *common.Config) { c.Fetch.MaxAttempts = 3 })
	resp, err := f.Fetch(context.Background(), srv.URL, shortPolicy())
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(resp.Body))
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	_, err := f.Fetch(context.Background(), srv.URL, shortPolicy())
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindHTTPStatus))
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "4xx is terminal")

	e := models.AsError(err)
	assert.Equal(t, http.StatusNotFound, e.StatusCode)
}

func TestFetchSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 4096))
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	policy := shortPolicy()
	policy.MaxBytes = 1024

	_, err := f.Fetch(context.Background(), srv.URL, policy)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindResponseTooLarge))

	policy.MaxBytes = 4096
	resp, err := f.Fetch(context.Background(), srv.URL, policy)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 4096, "exactly the cap is allowed")
}

func TestFetchRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusFound)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "landed")
	})

	f := newTestFetcher(t, nil)
	policy := shortPolicy()

	resp, err := f.Fetch(context.Background(), srv.URL+"/a", policy)
	require.NoError(t, err)
	assert.Equal(t, "landed", string(resp.Body))
	assert.Equal(t, 2, resp.RedirectHops)
	assert.True(t, strings.HasSuffix(resp.URL, "/c"), "final URL reported")

	policy.MaxRedirects = 1
	_, err = f.Fetch(context.Background(), srv.URL+"/a", policy)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidRedirect))
}

func TestFetchBlockedBeforeConnect(t *testing.T) {
	f := newTestFetcher(t, func(c *common.Config) {
		c.SSRF.ExtraBlockedHosts = []string{"blocked.example.com"}
	})

	_, err := f.Fetch(context.Background(), "https://blocked.example.com/", shortPolicy())
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindBlockedByGuard))
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	f := newTestFetcher(t, func(c *common.Config) { c.Fetch.MaxAttempts = 1 })
	policy := shortPolicy()
	policy.Timeout = 100 * time.Millisecond
	policy.TotalTimeout = time.Second

	_, err := f.Fetch(context.Background(), srv.URL, policy)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindTimeout))
}

func TestCircuitBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, func(c *common.Config) {
		c.Fetch.MaxAttempts = 1
		c.Fetch.BreakerTrips = 2
	})

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL, shortPolicy())
		require.Error(t, err)
	}

	assert.Equal(t, 1, f.OpenBreakers())
	_, err := f.Fetch(context.Background(), srv.URL, shortPolicy())
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCircuitOpen))
}

func TestFetchRawIgnoresStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, nil)
	resp, err := f.FetchRaw(context.Background(), srv.URL+"/robots.txt", 1<<20, 5*time.Second)
	require.NoError(t, err, "robots callers want the status, not an error")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPolicyValidate(t *testing.T) {
	policy := DefaultPolicy()
	assert.NoError(t, policy.Validate())

	policy.Method = "DELETE"
	assert.Error(t, policy.Validate())

	policy = DefaultPolicy()
	policy.MaxBytes = 0
	assert.Error(t, policy.Validate())
}
