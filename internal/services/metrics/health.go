package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
)

// ReadinessCheck reports whether one component is in a usable state.
type ReadinessCheck func() (name string, ok bool)

// HealthServer serves /metrics, /healthz (liveness), and /readyz
// (readiness) on a side listener so the MCP stdio transport stays clean.
type HealthServer struct {
	metrics *Metrics
	logger  arbor.ILogger
	server  *http.Server

	mu     sync.RWMutex
	checks []ReadinessCheck
}

// NewHealthServer builds the listener; Start is a no-op when disabled.
func NewHealthServer(config common.MetricsConfig, m *Metrics, logger arbor.ILogger) *HealthServer {
	h := &HealthServer{metrics: m, logger: logger}
	if !config.Enabled {
		return h
	}

	mux := http.NewServeMux()
	if m != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", h.handleReady)

	h.server = &http.Server{
		Addr:              config.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// AddCheck registers a readiness check.
func (h *HealthServer) AddCheck(check ReadinessCheck) {
	h.mu.Lock()
	h.checks = append(h.checks, check)
	h.mu.Unlock()
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := h.checks
	h.mu.RUnlock()

	status := map[string]bool{}
	ready := true
	for _, check := range checks {
		name, ok := check()
		status[name] = ok
		if !ok {
			ready = false
		}
	}

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Start begins serving in the background.
func (h *HealthServer) Start() {
	if h.server == nil {
		return
	}
	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Warn().Err(err).Msg("Metrics listener stopped")
		}
	}()
	h.logger.Info().Str("listen", h.server.Addr).Msg("Metrics listener started")
}

// Stop shuts the listener down.
func (h *HealthServer) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
