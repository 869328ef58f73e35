// Package notify handles the best-effort side effects of a publish outcome:
// in-app notifications and operator email. Failures here are logged and
// structurally cannot reach the caller; the publish outcome always wins.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/storage"
)

// Mailer sends one mail. Nil-able; the notifier works without email
// configured.
type Mailer interface {
	Send(subject, htmlBody string) error
}

// Notifier fans a publish outcome out to notifications and email.
type Notifier struct {
	notifications storage.NotificationRepository
	mailer        Mailer
	log           *slog.Logger
}

// NewNotifier creates a notifier. mailer may be nil.
func NewNotifier(notifications storage.NotificationRepository, mailer Mailer) *Notifier {
	return &Notifier{
		notifications: notifications,
		mailer:        mailer,
		log:           slog.Default().With("component", "notifier"),
	}
}

// PublishSucceeded records a "published" notification. Never returns an
// error.
func (n *Notifier) PublishSucceeded(ctx context.Context, tenantID string, platform domain.Platform, externalID string) {
	subject := fmt.Sprintf("Post published to %s", platform)
	body := fmt.Sprintf("Your post was published to %s (id %s).", platform, externalID)
	n.emit(ctx, &domain.Notification{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Kind:     domain.NotificationPublished,
		Subject:  subject,
		Body:     body,
	})
}

// PublishFailed records a failure notification with the user-safe message.
// Never returns an error.
func (n *Notifier) PublishFailed(ctx context.Context, tenantID string, platform domain.Platform, userMessage string) {
	subject := fmt.Sprintf("Publishing to %s failed", platform)
	n.emit(ctx, &domain.Notification{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Kind:     domain.NotificationPublishFailed,
		Subject:  subject,
		Body:     userMessage,
	})
}

func (n *Notifier) emit(ctx context.Context, note *domain.Notification) {
	if err := n.notifications.Insert(ctx, note); err != nil {
		n.log.Warn("Failed to insert notification", "tenant_id", note.TenantID, "kind", note.Kind, "error", err)
	}
	if n.mailer != nil {
		if err := n.mailer.Send(note.Subject, "<p>"+note.Body+"</p>"); err != nil {
			n.log.Warn("Failed to send notification email", "tenant_id", note.TenantID, "error", err)
		}
	}
}
