package domain

import (
	"time"
)

// HistoryStatus is the terminal result of a single publish attempt.
type HistoryStatus string

const (
	HistoryStatusPublished HistoryStatus = "published"
	HistoryStatusFailed    HistoryStatus = "failed"
)

// HistoryRecord is the append-only audit of one attempt's terminal result.
// Immutable once written.
type HistoryRecord struct {
	ID           string        `db:"id" json:"id"`
	TenantID     string        `db:"tenant_id" json:"tenant_id"`
	PostID       string        `db:"post_id" json:"post_id"`
	ConnectionID string        `db:"connection_id" json:"connection_id"`
	Platform     Platform      `db:"platform" json:"platform"`
	Status       HistoryStatus `db:"status" json:"status"`
	ExternalID   *string       `db:"external_id" json:"external_id,omitempty"`
	Permalink    *string       `db:"permalink" json:"permalink,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// AuditEntry is one append-only audit-log row.
type AuditEntry struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Action    string    `db:"action" json:"action"` // e.g. post_published, publish_failed
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationKind distinguishes in-app notification types.
type NotificationKind string

const (
	NotificationPublished     NotificationKind = "post_published"
	NotificationPublishFailed NotificationKind = "publish_failed"
)

// Notification is one in-app notification row.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	TenantID  string           `db:"tenant_id" json:"tenant_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Subject   string           `db:"subject" json:"subject"`
	Body      string           `db:"body" json:"body"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
