// -----------------------------------------------------------------------
// Fetcher - pooled HTTP(S) transport with guard re-validation, size/time
// caps, retries, and per-host circuit breaking
// -----------------------------------------------------------------------

package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
	"github.com/ternarybob/venator/internal/services/ratelimit"
	"github.com/ternarybob/venator/internal/services/urlguard"
)

// Service is the shared fetch layer. Safe for concurrent use; the transport
// keeps per-origin connection pools alive across requests.
type Service struct {
	transport *http.Transport
	guard     *urlguard.Guard
	limiter   *ratelimit.Limiter
	retry     *RetryPolicy
	breakers  *breakerSet
	config    common.FetchConfig
	logger    arbor.ILogger
	metrics   *metrics.Metrics
}

// NewService builds the fetch layer on a pooled transport.
func NewService(config common.FetchConfig, guard *urlguard.Guard, limiter *ratelimit.Limiter, m *metrics.Metrics, logger arbor.ILogger) *Service {
	transport := &http.Transport{
		MaxIdleConns:          config.GlobalIdle,
		MaxIdleConnsPerHost:   config.PerHostIdle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		// Accept-Encoding is managed explicitly so the byte counter sees
		// decompressed sizes consistently.
		DisableCompression: true,
	}

	s := &Service{
		transport: transport,
		guard:     guard,
		limiter:   limiter,
		retry:     NewRetryPolicy(),
		config:    config,
		logger:    logger,
		metrics:   m,
	}
	if config.MaxAttempts > 0 {
		s.retry.MaxAttempts = config.MaxAttempts
	}
	s.breakers = newBreakerSet(config, logger, func(_ string, _ bool) {
		m.SetOpenBreakers(float64(s.breakers.openCount()))
	})
	return s
}

// OpenBreakers reports the number of open per-host breakers.
func (s *Service) OpenBreakers() int {
	return s.breakers.openCount()
}

// Fetch retrieves a URL under the given policy: guard validation, rate
// limiting, retries, circuit breaking, redirect re-validation, and the
// response size cap all apply.
func (s *Service) Fetch(ctx context.Context, rawURL string, policy Policy) (*models.Response, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	u, err := s.guard.Admit(ctx, rawURL)
	if err != nil {
		s.metrics.RecordError(string(models.KindOf(err)))
		return nil, err
	}

	if policy.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.TotalTimeout)
		defer cancel()
	}

	release, err := s.limiter.Acquire(ctx, u.Host)
	if err != nil {
		return nil, models.WrapError(models.KindTimeout, err, "cancelled waiting for rate limit")
	}
	s.metrics.SetInflight(1)
	defer func() {
		release()
		s.metrics.SetInflight(-1)
	}()

	breaker := s.breakers.forHost(u.Host)

	var resp *models.Response
	execErr := s.retry.Execute(ctx, s.logger, func() (int, string, error) {
		result, err := breaker.Execute(func() (interface{}, error) {
			return s.fetchOnce(ctx, u, policy)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return 0, "", models.WrapError(models.KindCircuitOpen, err, "circuit open for %s", u.Host)
			}
			status := 0
			retryAfter := ""
			var fe *models.Error
			if errors.As(err, &fe) {
				status = fe.StatusCode
			}
			var he *httpStatusError
			if errors.As(err, &he) {
				status = he.code
				retryAfter = he.retryAfter
				return status, retryAfter, models.NewError(models.KindHTTPStatus, "upstream returned %d", he.code).WithStatus(he.code)
			}
			return status, retryAfter, err
		}
		resp = result.(*models.Response)
		return resp.StatusCode, "", nil
	})

	if execErr != nil {
		s.metrics.RecordError(string(models.KindOf(execErr)))
		return nil, execErr
	}
	return resp, nil
}

// FetchRaw is the minimal entry used by the robots cache: guard-validated,
// rate-limited, no retries, no robots consultation.
func (s *Service) FetchRaw(ctx context.Context, rawURL string, maxBytes int64, timeout time.Duration) (*models.Response, error) {
	u, err := s.guard.Admit(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	release, err := s.limiter.Acquire(ctx, u.Host)
	if err != nil {
		return nil, models.WrapError(models.KindTimeout, err, "cancelled waiting for rate limit")
	}
	defer release()

	policy := DefaultPolicy()
	policy.MaxBytes = maxBytes
	policy.Timeout = timeout
	resp, err := s.fetchOnce(ctx, u, policy)
	if err != nil {
		var he *httpStatusError
		if errors.As(err, &he) {
			// robots callers care about the status, not an error
			return &models.Response{URL: u.String(), StatusCode: he.code, FetchedAt: time.Now()}, nil
		}
		return nil, err
	}
	return resp, nil
}

// httpStatusError carries a non-2xx status through the breaker so retry
// classification can see it.
type httpStatusError struct {
	code       int
	retryAfter string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.code)
}

func (s *Service) fetchOnce(ctx context.Context, u models.CanonicalURL, policy Policy) (*models.Response, error) {
	start := time.Now()

	attemptCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	method := strings.ToUpper(policy.Method)
	if method == "" {
		method = "GET"
	}

	var body io.Reader
	if len(policy.Body) > 0 {
		body = bytes.NewReader(policy.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, u.String(), body)
	if err != nil {
		return nil, models.WrapError(models.KindInvalidArgument, err, "cannot build request")
	}

	req.Header.Set("User-Agent", s.config.UserAgent)
	if policy.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", policy.AcceptEncoding)
	}
	for name, value := range policy.Headers {
		req.Header.Set(name, value)
	}

	hops := 0
	client := &http.Client{
		Transport: s.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			hops = len(via)
			if hops > policy.MaxRedirects {
				return models.NewError(models.KindInvalidRedirect, "redirect budget exhausted after %d hops", hops)
			}
			// Every redirect target goes back through the guard.
			target, err := s.guard.Canonicalize(req.URL.String())
			if err != nil {
				return models.WrapError(models.KindInvalidRedirect, err, "unparseable redirect target")
			}
			if err := s.guard.Validate(req.Context(), target); err != nil {
				return err
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused, then surface.
		_, _ = io.CopyN(io.Discard, resp.Body, 8192)
		return nil, &httpStatusError{code: resp.StatusCode, retryAfter: resp.Header.Get("Retry-After")}
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, models.WrapError(models.KindCorruptArtifact, err, "cannot decode response body")
	}

	// Read with a running byte counter; one byte over the cap fails.
	data, err := readCapped(reader, policy.MaxBytes)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}

	duration := time.Since(start)
	s.metrics.RecordFetch(duration.Seconds())

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	s.logger.Debug().
		Str("url", finalURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Int("hops", hops).
		Dur("duration", duration).
		Msg("Fetch completed")

	return &models.Response{
		URL:           finalURL,
		StatusCode:    resp.StatusCode,
		Headers:       headers,
		Body:          data,
		FetchedAt:     start,
		FetchDuration: duration,
		RedirectHops:  hops,
	}, nil
}

// readCapped reads at most max bytes; max+1 available bytes is an error.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	limited := io.LimitReader(r, max+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(data)) > max {
		return nil, models.NewError(models.KindResponseTooLarge, "response exceeds %d bytes", max)
	}
	return data, nil
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// classifyTransportError maps stdlib transport failures onto the error
// taxonomy. Guard errors pass through untouched.
func classifyTransportError(err error) error {
	var me *models.Error
	if errors.As(err, &me) {
		return me
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.WrapError(models.KindTimeout, err, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return models.WrapError(models.KindTimeout, err, "request cancelled")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.WrapError(models.KindDNSError, err, "DNS lookup failed for %s", dnsErr.Name)
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return models.WrapError(models.KindTLSError, err, "TLS verification failed")
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return models.WrapError(models.KindTLSError, err, "TLS handshake failed")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.WrapError(models.KindTimeout, err, "network timeout")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.WrapError(models.KindConnectError, err, "connection failed")
	}

	return models.WrapError(models.KindConnectError, err, "transport error")
}
