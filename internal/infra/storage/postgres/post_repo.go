package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/storage"
)

// PostRepo reads posts and owns the durable is_publishing exclusion flag.
type PostRepo struct {
	db *DB
}

// NewPostRepo creates a post repository.
func NewPostRepo(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

func (r *PostRepo) Get(ctx context.Context, id string) (*domain.Post, error) {
	query := `
		SELECT id, tenant_id, body, media_url, is_publishing,
		       approvals_required, approvals_given,
		       google_topic_type, google_cta_type, google_cta_url,
		       google_event_title, google_event_start, google_event_end,
		       google_offer_terms, created_at, updated_at
		FROM posts WHERE id = $1
	`
	var post domain.Post
	err := r.db.GetContext(ctx, &post, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepo) MediaURLs(ctx context.Context, postID string) ([]string, error) {
	query := `
		SELECT a.url
		FROM post_media pm
		JOIN media_assets a ON a.id = pm.asset_id
		WHERE pm.post_id = $1
		ORDER BY pm.display_order ASC
	`
	var urls []string
	if err := r.db.SelectContext(ctx, &urls, query, postID); err != nil {
		return nil, fmt.Errorf("resolve media urls for post %s: %w", postID, err)
	}
	return urls, nil
}

// TryLockPublishing is a conditional flip of the is_publishing flag. The
// WHERE clause is the whole exclusion mechanism: workers may run in separate
// processes, so an in-process lock would not help.
func (r *PostRepo) TryLockPublishing(ctx context.Context, postID string) error {
	query := `
		UPDATE posts SET is_publishing = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_publishing = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, postID)
	if err != nil {
		return fmt.Errorf("lock post %s for publishing: %w", postID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the post doesn't exist or the flag is already held.
		if _, getErr := r.Get(ctx, postID); getErr != nil {
			return getErr
		}
		return storage.ErrAlreadyPublishing
	}
	return nil
}

func (r *PostRepo) UnlockPublishing(ctx context.Context, postID string) error {
	query := `UPDATE posts SET is_publishing = FALSE, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, postID)
	return err
}
