package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/storage"
)

// QueueRepo is the postgres-backed publish queue.
type QueueRepo struct {
	db *DB
}

// NewQueueRepo creates a queue repository.
func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db}
}

func (r *QueueRepo) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	query := `
		INSERT INTO publish_queue
			(id, post_id, connection_id, status, attempts, scheduled_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.PostID, item.ConnectionID, item.Status, item.Attempts, item.ScheduledFor)
	return err
}

// ClaimDue selects due pending items and flips them to processing in one
// atomic statement. Attempts increment at claim time so a crash mid-attempt
// still counts toward the cap. FOR UPDATE SKIP LOCKED keeps concurrent
// claimers from double-owning a row.
func (r *QueueRepo) ClaimDue(ctx context.Context, batchSize int, now time.Time) ([]*domain.QueueItem, error) {
	query := `
		UPDATE publish_queue
		SET status = 'processing',
		    attempts = attempts + 1,
		    last_attempt_at = $2,
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM publish_queue
			WHERE status = 'pending'
			  AND (scheduled_for <= $2 OR next_attempt_at <= $2)
			  AND attempts < $3
			ORDER BY scheduled_for ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, post_id, connection_id, status, attempts, scheduled_for,
		          next_attempt_at, last_attempt_at, last_error, created_at, updated_at
	`

	var items []*domain.QueueItem
	rows, err := r.db.QueryxContext(ctx, query, batchSize, now, domain.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.QueueItem
		if err := rows.StructScan(&item); err != nil {
			return nil, fmt.Errorf("scan claimed item: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// ReapStale resets processing items abandoned by crashed or timed-out
// workers back to pending.
func (r *QueueRepo) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE publish_queue
		SET status = 'pending', next_attempt_at = NULL, updated_at = NOW()
		WHERE status = 'processing' AND last_attempt_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale items: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *QueueRepo) Update(ctx context.Context, id string, upd domain.QueueItemUpdate) error {
	query := `
		UPDATE publish_queue
		SET status = $2,
		    last_error = CASE WHEN $3 THEN NULL ELSE COALESCE($4, last_error) END,
		    next_attempt_at = CASE WHEN $5 THEN NULL ELSE COALESCE($6, next_attempt_at) END,
		    scheduled_for = COALESCE($7, scheduled_for),
		    updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, upd.Status,
		upd.ClearLastError, upd.LastError,
		upd.ClearNextAttempt, upd.NextAttemptAt,
		upd.ScheduledFor)
	if err != nil {
		return fmt.Errorf("update queue item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *QueueRepo) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	query := `
		SELECT id, post_id, connection_id, status, attempts, scheduled_for,
		       next_attempt_at, last_attempt_at, last_error, created_at, updated_at
		FROM publish_queue WHERE id = $1
	`
	var item domain.QueueItem
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ResetForRetry is the manual "retry now" action: failed -> pending,
// attempts back to zero, eligible immediately.
func (r *QueueRepo) ResetForRetry(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE publish_queue
		SET status = 'pending', attempts = 0, last_error = NULL,
		    next_attempt_at = NULL, scheduled_for = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
	`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("reset queue item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotResettable
	}
	return nil
}

func (r *QueueRepo) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE publish_queue
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("cancel queue item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotResettable
	}
	return nil
}

func (r *QueueRepo) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM publish_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.QueueStatus]int)
	for rows.Next() {
		var status domain.QueueStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
