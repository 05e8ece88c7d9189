package fetcher

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
)

// breakerSet holds one circuit breaker per host. A host's breaker opens
// after N consecutive failures and admits a bounded number of half-open
// probes after the reset timeout.
type breakerSet struct {
	trips   uint32
	probes  uint32
	reset   time.Duration
	logger  arbor.ILogger
	onState func(host string, open bool)

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerSet(config common.FetchConfig, logger arbor.ILogger, onState func(string, bool)) *breakerSet {
	trips := uint32(config.BreakerTrips)
	if trips == 0 {
		trips = 5
	}
	probes := uint32(config.BreakerProbes)
	if probes == 0 {
		probes = 3
	}
	reset := time.Duration(config.BreakerResetMs) * time.Millisecond
	if reset <= 0 {
		reset = 60 * time.Second
	}
	return &breakerSet{
		trips:    trips,
		probes:   probes,
		reset:    reset,
		logger:   logger,
		onState:  onState,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (s *breakerSet) forHost(host string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: s.probes,
			Timeout:     s.reset,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.trips
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.logger.Info().
					Str("host", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state change")
				if s.onState != nil {
					s.onState(name, to == gobreaker.StateOpen)
				}
			},
		})
		s.breakers[host] = cb
	}
	return cb
}

// openCount reports how many breakers are currently open. Feeds the
// readiness probe and the open_breakers gauge.
func (s *breakerSet) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, cb := range s.breakers {
		if cb.State() == gobreaker.StateOpen {
			n++
		}
	}
	return n
}
