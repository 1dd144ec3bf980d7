// Package resilience provides the per-upstream circuit breaker and the retry
// loop used by the provider orchestrator.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets every call through and counts failures.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen admits a bounded number of probe calls.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrCircuitOpen is returned when a call is rejected without reaching the upstream.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before probing.
	// Default: 30s.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls caps the probe calls admitted while half-open. The
	// same number of successes closes the circuit. Default: 3.
	HalfOpenMaxCalls int

	// ShouldTrip decides whether an error counts as an upstream failure.
	// If nil, every non-nil error counts.
	ShouldTrip func(err error) bool

	// OnStateChange is called with the breaker name on every transition.
	OnStateChange func(name string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the defaults used for provider calls.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// BreakerSnapshot is an observable copy of a breaker's counters.
type BreakerSnapshot struct {
	Name           string       `json:"name"`
	State          CircuitState `json:"state"`
	FailureCount   int          `json:"failure_count"`
	LastFailureAt  *time.Time   `json:"last_failure_at,omitempty"`
	HalfOpenProbes int          `json:"half_open_probe_count"`
}

// CircuitBreaker tracks failures for one upstream. All fields are guarded by mu.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig

	mu                sync.Mutex
	state             CircuitState
	failureCount      int
	lastFailureAt     time.Time
	halfOpenCalls     int
	halfOpenSuccesses int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCircuitBreaker creates a closed breaker for the named upstream.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 3
	}
	return &CircuitBreaker{
		name:    name,
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Name returns the upstream this breaker guards.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker admits the call and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.acquire(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	cb.record(err)
	return val, err
}

// CanExecute reports whether a call would be admitted right now. It does not
// consume a half-open probe slot.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refresh() {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		return cb.halfOpenCalls < cb.cfg.HalfOpenMaxCalls
	default:
		return false
	}
}

// State returns the current state, applying the open to half-open
// transition if the recovery timeout has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refresh()
}

// Snapshot returns the breaker's counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := BreakerSnapshot{
		Name:           cb.name,
		State:          cb.refresh(),
		FailureCount:   cb.failureCount,
		HalfOpenProbes: cb.halfOpenCalls,
	}
	if !cb.lastFailureAt.IsZero() {
		t := cb.lastFailureAt
		snap.LastFailureAt = &t
	}
	return snap
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount = 0
	cb.lastFailureAt = time.Time{}
	cb.transition(CircuitClosed)
}

// refresh moves an open breaker to half-open once the recovery timeout has
// elapsed and returns the resulting state. Caller holds mu.
func (cb *CircuitBreaker) refresh() CircuitState {
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.lastFailureAt) >= cb.cfg.RecoveryTimeout {
		cb.transition(CircuitHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refresh() {
	case CircuitClosed:
		return nil
	case CircuitHalfOpen:
		if cb.halfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return eris.Wrapf(ErrCircuitOpen, "%s: half-open probe limit reached", cb.name)
		}
		cb.halfOpenCalls++
		return nil
	default:
		return eris.Wrapf(ErrCircuitOpen, "%s", cb.name)
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	trips := err != nil
	if trips && cb.cfg.ShouldTrip != nil {
		trips = cb.cfg.ShouldTrip(err)
	}

	if !trips {
		if err != nil {
			// Ignored errors neither count nor consume a probe slot.
			if cb.state == CircuitHalfOpen && cb.halfOpenCalls > 0 {
				cb.halfOpenCalls--
			}
			return
		}
		switch cb.state {
		case CircuitHalfOpen:
			cb.halfOpenSuccesses++
			if cb.halfOpenSuccesses >= cb.cfg.HalfOpenMaxCalls {
				cb.failureCount = 0
				cb.transition(CircuitClosed)
			}
		case CircuitClosed:
			cb.failureCount = 0
		}
		return
	}

	cb.failureCount++
	cb.lastFailureAt = cb.nowFunc()

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	}
}

// transition switches state and resets the half-open counters. Caller holds mu.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
	if from == to {
		return
	}

	log := zap.L().With(zap.String("upstream", cb.name))
	switch to {
	case CircuitOpen:
		log.Warn("resilience: circuit opened", zap.Int("failures", cb.failureCount))
	case CircuitClosed:
		log.Info("resilience: circuit closed")
	default:
		log.Info("resilience: circuit half-open")
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// ServiceBreakers holds one breaker per upstream name.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewServiceBreakers creates an empty breaker set sharing cfg.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for upstream, creating it on first use.
func (sb *ServiceBreakers) Get(upstream string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[upstream]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if cb, ok = sb.breakers[upstream]; ok {
		return cb
	}
	cb = NewCircuitBreaker(upstream, sb.cfg)
	sb.breakers[upstream] = cb
	return cb
}

// Snapshots returns the counters of every known breaker.
func (sb *ServiceBreakers) Snapshots() map[string]BreakerSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	out := make(map[string]BreakerSnapshot, len(sb.breakers))
	for name, cb := range sb.breakers {
		out[name] = cb.Snapshot()
	}
	return out
}

// Open returns the names of breakers currently rejecting calls.
func (sb *ServiceBreakers) Open() []string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	var names []string
	for name, cb := range sb.breakers {
		if cb.State() == CircuitOpen {
			names = append(names, name)
		}
	}
	return names
}
