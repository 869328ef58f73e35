package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict is returned when a key is replayed with a different
// request body.
var ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")

// IdempotencyTTL is how long a cached immediate-publish result stays
// replayable.
const IdempotencyTTL = 24 * time.Hour

// CachedResult is the stored outcome of an immediate publish, returned on
// replay instead of re-publishing.
type CachedResult struct {
	BodyHash   string `json:"body_hash"`
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Permalink  string `json:"permalink,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	ErrorMsg   string `json:"error_msg,omitempty"`
}

// IdempotencyStore caches immediate-publish results keyed by the
// client-supplied idempotency key plus a hash of the request body.
type IdempotencyStore struct {
	rdb *redis.Client
}

// NewIdempotencyStore creates an idempotency store on the shared client.
func NewIdempotencyStore(c *Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: c.rdb}
}

func idempotencyKey(tenantID, key string) string {
	return fmt.Sprintf("publish:idem:%s:%s", tenantID, key)
}

// HashBody returns the canonical hash of a request body.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached result for a key, or nil when the key is unseen.
// A key seen with a different body hash returns ErrIdempotencyConflict.
func (s *IdempotencyStore) Lookup(ctx context.Context, tenantID, key, bodyHash string) (*CachedResult, error) {
	raw, err := s.rdb.Get(ctx, idempotencyKey(tenantID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	var cached CachedResult
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	if cached.BodyHash != bodyHash {
		return nil, ErrIdempotencyConflict
	}
	return &cached, nil
}

// Store caches a result for the idempotency window.
func (s *IdempotencyStore) Store(ctx context.Context, tenantID, key string, result *CachedResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("idempotency encode: %w", err)
	}
	if err := s.rdb.Set(ctx, idempotencyKey(tenantID, key), raw, IdempotencyTTL).Err(); err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	return nil
}
