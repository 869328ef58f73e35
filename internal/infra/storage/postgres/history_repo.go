package postgres

import (
	"context"
	"fmt"

	"github.com/venuepost/publisher/internal/core/domain"
)

// HistoryRepo appends publish history records. Rows are immutable once
// written; there are deliberately no update or delete operations.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

func (r *HistoryRepo) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	query := `
		INSERT INTO publish_history
			(id, tenant_id, post_id, connection_id, platform, status,
			 external_id, permalink, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.PostID, rec.ConnectionID, rec.Platform,
		rec.Status, rec.ExternalID, rec.Permalink, rec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// AuditRepo appends audit-log entries.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates an audit repository.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, tenant_id, action, subject_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.TenantID, entry.Action, entry.SubjectID, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// NotificationRepo inserts in-app notifications.
type NotificationRepo struct {
	db *DB
}

// NewNotificationRepo creates a notification repository.
func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, tenant_id, kind, subject, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.ExecContext(ctx, query, n.ID, n.TenantID, n.Kind, n.Subject, n.Body)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
