package domain

import (
	"time"
)

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"
)

const (
	// MaxAttempts caps automatic retries per queue item. An item that
	// reaches the cap stays failed until a manual retry resets it.
	MaxAttempts = 5

	// StaleProcessingAge is how long an item may sit in processing before
	// the reaper reclaims it (crashed or timed-out worker).
	StaleProcessingAge = 5 * time.Minute
)

// QueueItem is one scheduled attempt to publish one post to one connection.
type QueueItem struct {
	ID            string      `db:"id" json:"id"`
	PostID        string      `db:"post_id" json:"post_id"`
	ConnectionID  string      `db:"connection_id" json:"connection_id"`
	Status        QueueStatus `db:"status" json:"status"`
	Attempts      int         `db:"attempts" json:"attempts"`
	ScheduledFor  time.Time   `db:"scheduled_for" json:"scheduled_for"`
	NextAttemptAt *time.Time  `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	LastAttemptAt *time.Time  `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LastError     *string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the item can never transition again without a
// manual reset.
func (q *QueueItem) Terminal() bool {
	switch q.Status {
	case QueueStatusCompleted, QueueStatusCancelled:
		return true
	case QueueStatusFailed:
		return q.Attempts >= MaxAttempts
	}
	return false
}

// QueueItemUpdate carries the fields the orchestrator may write back after an
// attempt. Nil pointers leave the column untouched; ClearNextAttempt and
// ClearLastError force NULL.
type QueueItemUpdate struct {
	Status           QueueStatus
	LastError        *string
	NextAttemptAt    *time.Time
	ScheduledFor     *time.Time
	ClearNextAttempt bool
	ClearLastError   bool
}
