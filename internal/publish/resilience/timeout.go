package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError indicates an operation did not settle within its deadline.
type TimeoutError struct {
	Service string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s call timed out after %s", e.Service, e.Timeout)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// WithTimeout runs op under a hard deadline. The derived context is cancelled
// on expiry so the underlying call is told to stop; a deadline hit is
// converted into a TimeoutError. No retries happen here.
func WithTimeout(ctx context.Context, service string, timeout time.Duration, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := op(opCtx)
	if err == nil {
		return nil
	}

	// Distinguish our deadline from a caller cancellation.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{Service: service, Timeout: timeout}
	}
	return err
}
