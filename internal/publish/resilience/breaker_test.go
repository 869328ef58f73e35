package resilience

import (
	"errors"
	"testing"
	"time"
)

func testBreaker(cfg BreakerConfig) (*Breaker, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("facebook", cfg).withClock(func() time.Time { return now })
	return b, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 3,
		MinimumRequests:  3,
		Window:           time.Minute,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 1,
	}
	b, _ := testBreaker(cfg)

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d rejected while closed: %v", i, err)
		}
		b.RecordFailure()
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	err := b.Allow()
	var coe *CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if coe.NextRetryAt.IsZero() {
		t.Errorf("CircuitOpenError missing next retry time")
	}
}

func TestBreakerRespectsMinimumRequests(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 2,
		MinimumRequests:  10,
		Window:           time.Minute,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 1,
	}
	b, _ := testBreaker(cfg)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Errorf("tripped below minimum request count")
	}
}

func TestBreakerSlidingWindowPrunes(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 3,
		MinimumRequests:  3,
		Window:           time.Minute,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 1,
	}
	b, now := testBreaker(cfg)

	b.RecordFailure()
	b.RecordFailure()

	// Old failures fall out of the window before the third lands.
	*now = now.Add(2 * time.Minute)
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after window pruning", b.State())
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 2,
		MinimumRequests:  2,
		Window:           time.Minute,
		ResetTimeout:     10 * time.Second,
		SuccessThreshold: 2,
	}
	b, now := testBreaker(cfg)

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	*now = now.Add(11 * time.Second)

	// Exactly one probe is admitted.
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if err := b.Allow(); err == nil {
		t.Fatalf("second call admitted during half-open probe")
	}

	// Probe succeeds twice -> closed.
	b.RecordSuccess()
	if err := b.Allow(); err != nil {
		t.Fatalf("second probe rejected: %v", err)
	}
	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after success threshold", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := BreakerConfig{
		FailureThreshold: 2,
		MinimumRequests:  2,
		Window:           time.Minute,
		ResetTimeout:     10 * time.Second,
		SuccessThreshold: 2,
	}
	b, now := testBreaker(cfg)

	b.RecordFailure()
	b.RecordFailure()
	*now = now.Add(11 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Errorf("state = %v, want open after half-open failure", b.State())
	}
}

func TestBreakerRegistryPerService(t *testing.T) {
	reg := NewBreakerRegistry(map[string]BreakerConfig{
		"payment": PaymentBreakerConfig(),
	}, DefaultBreakerConfig())

	fb := reg.Get("facebook")
	if reg.Get("facebook") != fb {
		t.Errorf("registry created a second breaker for the same service")
	}
	if reg.Get("instagram") == fb {
		t.Errorf("distinct services share a breaker")
	}

	pay := reg.Get("payment")
	pay.RecordFailure()
	pay.RecordFailure()
	if pay.State() != StateOpen {
		t.Errorf("payment breaker did not trip at its lower threshold")
	}
	if fb.State() != StateClosed {
		t.Errorf("facebook breaker affected by payment failures")
	}
}
