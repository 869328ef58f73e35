package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool

	// Rand supplies jitter randomness. Injected so retry timing is
	// deterministic under test. Nil disables jitter regardless of the
	// Jitter flag.
	Rand *rand.Rand

	// Retryable overrides the default classification when set.
	Retryable func(err error) bool
}

// SocialRetryConfig is the preset for social platform publishes.
var SocialRetryConfig = RetryConfig{
	MaxAttempts:   4,
	InitialDelay:  2 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// AIRetryConfig is the preset for AI-bound calls.
var AIRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  1 * time.Second,
	MaxDelay:      20 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// PaymentRetryConfig is the preset for payment calls.
var PaymentRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  1 * time.Second,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// RetryExhaustedError wraps the last failure after the final attempt.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// HTTPStatuser is implemented by errors carrying an HTTP status code.
type HTTPStatuser interface {
	HTTPStatus() int
}

// DefaultRetryable classifies whether an error is worth retrying.
// Priority: network errors -> yes; 429/503/504 -> yes; other 5xx -> yes;
// other 4xx -> no; otherwise default retryable, since most uncategorized
// failures from these providers are transient.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "timed out") {
		return true
	}

	var hs HTTPStatuser
	if errors.As(err, &hs) {
		switch status := hs.HTTPStatus(); {
		case status == 429 || status == 503 || status == 504:
			return true
		case status >= 500:
			return true
		case status >= 400:
			return false
		}
	}

	if strings.Contains(s, "is_transient") || strings.Contains(s, "unknown error") {
		return true
	}

	return true
}

// RetryDelay computes the sleep before the next attempt. attempt is 1-based
// (the attempt that just failed). Pure given the rand source.
func RetryDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter && cfg.Rand != nil {
		// +/-50% jitter
		delay = delay * (0.5 + cfg.Rand.Float64())
	}
	return time.Duration(delay)
}

// Retry executes op with exponential backoff. Non-retryable errors propagate
// immediately; exhausting the attempt budget returns a RetryExhaustedError
// wrapping the last failure.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(RetryDelay(cfg, attempt)):
		}
	}

	return &RetryExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}
