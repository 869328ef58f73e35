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

// ConnectionRepo reads social connections and writes back renewed tokens.
type ConnectionRepo struct {
	db *DB
}

// NewConnectionRepo creates a connection repository.
func NewConnectionRepo(db *DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

func (r *ConnectionRepo) Get(ctx context.Context, id string) (*domain.Connection, error) {
	query := `
		SELECT id, tenant_id, platform, account_name, access_token, refresh_token,
		       token_expiry, page_id, ig_account_id, google_account_id,
		       google_location_id, created_at, updated_at
		FROM connections WHERE id = $1
	`
	var conn domain.Connection
	err := r.db.GetContext(ctx, &conn, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *ConnectionRepo) UpdateToken(ctx context.Context, id string, encryptedToken string, expiry time.Time) error {
	query := `
		UPDATE connections
		SET access_token = $2, token_expiry = $3, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, encryptedToken, expiry)
	if err != nil {
		return fmt.Errorf("update connection token %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *ConnectionRepo) UpdateIGAccountID(ctx context.Context, id string, igAccountID string) error {
	query := `UPDATE connections SET ig_account_id = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, igAccountID)
	return err
}
