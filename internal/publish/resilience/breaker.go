package resilience

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// CircuitOpenError is returned when a call is rejected without being
// attempted.
type CircuitOpenError struct {
	Service     string
	NextRetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, next retry at %s", e.Service, e.NextRetryAt.Format(time.RFC3339))
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // failures in window before opening
	MinimumRequests  int           // minimum requests in window before tripping
	Window           time.Duration // sliding monitoring window
	ResetTimeout     time.Duration // cooldown before half-open probing
	SuccessThreshold int           // consecutive half-open successes to close
}

// DefaultBreakerConfig returns the defaults used for social platforms.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		MinimumRequests:  5,
		Window:           60 * time.Second,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

// PaymentBreakerConfig trips faster; payment failures are costlier to retry
// blindly.
func PaymentBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 2,
		MinimumRequests:  2,
		Window:           60 * time.Second,
		ResetTimeout:     10 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is a sliding-window circuit breaker for one external service.
// Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	service string
	cfg     BreakerConfig
	now     func() time.Time

	state           BreakerState
	failures        []time.Time
	successes       []time.Time
	halfOpenOK      int
	halfOpenProbing bool
	lastFailure     time.Time
}

// NewBreaker creates a closed breaker for the named service.
func NewBreaker(service string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		service: service,
		cfg:     cfg,
		now:     time.Now,
		state:   StateClosed,
	}
}

// withClock overrides the clock, for tests.
func (b *Breaker) withClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow reports whether a call may proceed. When the breaker is open and the
// cooldown has not elapsed, it returns a CircuitOpenError. In half-open
// state only one probe is admitted at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.halfOpenOK = 0
			b.halfOpenProbing = true
			return nil
		}
		return &CircuitOpenError{
			Service:     b.service,
			NextRetryAt: b.lastFailure.Add(b.cfg.ResetTimeout),
		}
	case StateHalfOpen:
		if b.halfOpenProbing {
			return &CircuitOpenError{
				Service:     b.service,
				NextRetryAt: now,
			}
		}
		b.halfOpenProbing = true
		return nil
	}
	return nil
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		b.successes = append(b.successes, now)
		b.prune(now)
	case StateHalfOpen:
		b.halfOpenProbing = false
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = nil
			b.successes = nil
		}
	}
}

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		b.failures = append(b.failures, now)
		b.prune(now)
		total := len(b.failures) + len(b.successes)
		if total >= b.cfg.MinimumRequests && len(b.failures) >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.halfOpenProbing = false
		b.state = StateOpen
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// prune drops window-expired outcomes. Caller holds the lock.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	b.failures = pruneBefore(b.failures, cutoff)
	b.successes = pruneBefore(b.successes, cutoff)
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Call runs op through the breaker, recording the outcome.
func (b *Breaker) Call(op func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := op()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// BreakerRegistry holds one breaker per external service name. It is an
// explicitly constructed dependency, not ambient global state, so tests can
// swap in a fresh registry.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	configs  map[string]BreakerConfig
	fallback BreakerConfig
}

// NewBreakerRegistry creates a registry. Per-service overrides come from
// configs; unnamed services get the fallback config.
func NewBreakerRegistry(configs map[string]BreakerConfig, fallback BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		configs:  configs,
		fallback: fallback,
	}
}

// Get returns the breaker for a service, lazily creating it.
func (r *BreakerRegistry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[service]; ok {
		return b
	}
	cfg, ok := r.configs[service]
	if !ok {
		cfg = r.fallback
	}
	b := NewBreaker(service, cfg)
	r.breakers[service] = b
	return b
}

// States returns a snapshot of all breaker states, for health reporting.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]BreakerState, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
