package storage

import (
	"context"
	"errors"
	"time"

	"github.com/venuepost/publisher/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyPublishing is returned when the is_publishing flag is
	// already held by another caller
	ErrAlreadyPublishing = errors.New("post is already publishing")

	// ErrNotResettable is returned when a manual retry targets an item
	// that is not in a resettable state
	ErrNotResettable = errors.New("queue item is not in a resettable state")
)

// QueueRepository handles publish queue storage operations
type QueueRepository interface {
	// Enqueue inserts a new pending queue item
	Enqueue(ctx context.Context, item *domain.QueueItem) error

	// ClaimDue atomically claims up to batchSize due pending items,
	// flipping them to processing and incrementing attempts. Claimed
	// items are owned by the caller until they reach a new state.
	ClaimDue(ctx context.Context, batchSize int, now time.Time) ([]*domain.QueueItem, error)

	// ReapStale resets processing items whose last_attempt_at is older
	// than cutoff back to pending. Returns the number reclaimed.
	ReapStale(ctx context.Context, cutoff time.Time) (int, error)

	// Update applies a state transition to a claimed item
	Update(ctx context.Context, id string, upd domain.QueueItemUpdate) error

	// Get retrieves a queue item by id
	Get(ctx context.Context, id string) (*domain.QueueItem, error)

	// ResetForRetry is the manual failed->pending reset
	ResetForRetry(ctx context.Context, id string, now time.Time) error

	// Cancel marks a non-terminal item cancelled
	Cancel(ctx context.Context, id string) error

	// CountByStatus returns queue depth per status
	CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error)
}

// ConnectionRepository handles social connection reads plus token renewal
type ConnectionRepository interface {
	// Get retrieves a connection by id
	Get(ctx context.Context, id string) (*domain.Connection, error)

	// UpdateToken persists a renewed (already encrypted) access token
	UpdateToken(ctx context.Context, id string, encryptedToken string, expiry time.Time) error

	// UpdateIGAccountID caches the resolved Instagram business account id
	UpdateIGAccountID(ctx context.Context, id string, igAccountID string) error
}

// PostRepository handles post reads and the is_publishing exclusion flag
type PostRepository interface {
	// Get retrieves a post by id
	Get(ctx context.Context, id string) (*domain.Post, error)

	// MediaURLs resolves the post's attached asset URLs in display order
	MediaURLs(ctx context.Context, postID string) ([]string, error)

	// TryLockPublishing flips is_publishing false->true; returns
	// ErrAlreadyPublishing if the flag is already held
	TryLockPublishing(ctx context.Context, postID string) error

	// UnlockPublishing clears is_publishing unconditionally
	UnlockPublishing(ctx context.Context, postID string) error
}

// HistoryRepository appends publish attempt results
type HistoryRepository interface {
	// Insert appends one immutable history record
	Insert(ctx context.Context, rec *domain.HistoryRecord) error
}

// AuditRepository appends audit-log entries
type AuditRepository interface {
	// Insert appends one audit entry
	Insert(ctx context.Context, entry *domain.AuditEntry) error
}

// NotificationRepository inserts in-app notifications
type NotificationRepository interface {
	// Insert appends one notification
	Insert(ctx context.Context, n *domain.Notification) error
}
