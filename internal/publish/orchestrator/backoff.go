package orchestrator

import (
	"time"
)

const (
	// maxRetryBackoff caps the growth of the between-attempt delay.
	maxRetryBackoff = 60 * time.Minute

	// unknownBackoff is the fixed delay for unclassifiable failures.
	// Conservative: most unknown errors here are transient provider
	// hiccups, and the attempt cap still bounds recurrence.
	unknownBackoff = 5 * time.Minute
)

// RetryBackoff returns the delay before the next automatic attempt for a
// transient failure: 2^attempts minutes, capped.
func RetryBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		return maxRetryBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Minute
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}
