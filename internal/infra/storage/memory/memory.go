// Package memory provides in-memory repository implementations. They back
// unit tests and the no-database fallback mode. The claim path here is the
// documented best-effort select-then-flip variant: unlike the postgres
// claim it is not a single atomic statement, which is acceptable because a
// single process owns the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/storage"
)

// Store holds all in-memory state.
type Store struct {
	mu            sync.RWMutex
	queue         map[string]*domain.QueueItem
	connections   map[string]*domain.Connection
	posts         map[string]*domain.Post
	postMedia     map[string][]string
	history       []*domain.HistoryRecord
	audit         []*domain.AuditEntry
	notifications []*domain.Notification
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		queue:       make(map[string]*domain.QueueItem),
		connections: make(map[string]*domain.Connection),
		posts:       make(map[string]*domain.Post),
		postMedia:   make(map[string][]string),
	}
}

// AddConnection seeds a connection.
func (s *Store) AddConnection(conn *domain.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = conn
}

// AddPost seeds a post with optional media URLs.
func (s *Store) AddPost(post *domain.Post, mediaURLs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = post
	s.postMedia[post.ID] = mediaURLs
}

// History returns a snapshot of the history records.
func (s *Store) History() []*domain.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.HistoryRecord, len(s.history))
	copy(out, s.history)
	return out
}

// AuditEntries returns a snapshot of the audit log.
func (s *Store) AuditEntries() []*domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// Notifications returns a snapshot of the notifications.
func (s *Store) Notifications() []*domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// -----------------------------------------------------------------------------
// Queue Repository
// -----------------------------------------------------------------------------

// QueueRepo implements storage.QueueRepository over the store.
type QueueRepo struct {
	store *Store
}

// NewQueueRepo creates a queue repository.
func NewQueueRepo(store *Store) *QueueRepo { return &QueueRepo{store: store} }

func (r *QueueRepo) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *item
	r.store.queue[item.ID] = &cp
	return nil
}

func (r *QueueRepo) ClaimDue(ctx context.Context, batchSize int, now time.Time) ([]*domain.QueueItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var due []*domain.QueueItem
	for _, item := range r.store.queue {
		if item.Status != domain.QueueStatusPending || item.Attempts >= domain.MaxAttempts {
			continue
		}
		eligible := !item.ScheduledFor.After(now) ||
			(item.NextAttemptAt != nil && !item.NextAttemptAt.After(now))
		if eligible {
			due = append(due, item)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})
	if len(due) > batchSize {
		due = due[:batchSize]
	}

	claimed := make([]*domain.QueueItem, 0, len(due))
	for _, item := range due {
		// Conditional flip per item; the lock makes it safe here, the
		// postgres path needs the atomic statement instead.
		if item.Status != domain.QueueStatusPending {
			continue
		}
		item.Status = domain.QueueStatusProcessing
		item.Attempts++
		t := now
		item.LastAttemptAt = &t
		item.UpdatedAt = now
		cp := *item
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *QueueRepo) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	n := 0
	for _, item := range r.store.queue {
		if item.Status == domain.QueueStatusProcessing &&
			item.LastAttemptAt != nil && item.LastAttemptAt.Before(cutoff) {
			item.Status = domain.QueueStatusPending
			item.NextAttemptAt = nil
			n++
		}
	}
	return n, nil
}

func (r *QueueRepo) Update(ctx context.Context, id string, upd domain.QueueItemUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, ok := r.store.queue[id]
	if !ok {
		return storage.ErrNotFound
	}
	item.Status = upd.Status
	if upd.ClearLastError {
		item.LastError = nil
	} else if upd.LastError != nil {
		item.LastError = upd.LastError
	}
	if upd.ClearNextAttempt {
		item.NextAttemptAt = nil
	} else if upd.NextAttemptAt != nil {
		item.NextAttemptAt = upd.NextAttemptAt
	}
	if upd.ScheduledFor != nil {
		item.ScheduledFor = *upd.ScheduledFor
	}
	item.UpdatedAt = time.Now()
	return nil
}

func (r *QueueRepo) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	item, ok := r.store.queue[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *QueueRepo) ResetForRetry(ctx context.Context, id string, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, ok := r.store.queue[id]
	if !ok {
		return storage.ErrNotFound
	}
	if item.Status != domain.QueueStatusFailed {
		return storage.ErrNotResettable
	}
	item.Status = domain.QueueStatusPending
	item.Attempts = 0
	item.LastError = nil
	item.NextAttemptAt = nil
	item.ScheduledFor = now
	return nil
}

func (r *QueueRepo) Cancel(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, ok := r.store.queue[id]
	if !ok {
		return storage.ErrNotFound
	}
	if item.Status != domain.QueueStatusPending && item.Status != domain.QueueStatusFailed {
		return storage.ErrNotResettable
	}
	item.Status = domain.QueueStatusCancelled
	return nil
}

func (r *QueueRepo) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[domain.QueueStatus]int)
	for _, item := range r.store.queue {
		counts[item.Status]++
	}
	return counts, nil
}

// -----------------------------------------------------------------------------
// Connection Repository
// -----------------------------------------------------------------------------

// ConnectionRepo implements storage.ConnectionRepository.
type ConnectionRepo struct {
	store *Store
}

// NewConnectionRepo creates a connection repository.
func NewConnectionRepo(store *Store) *ConnectionRepo { return &ConnectionRepo{store: store} }

func (r *ConnectionRepo) Get(ctx context.Context, id string) (*domain.Connection, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	conn, ok := r.store.connections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

func (r *ConnectionRepo) UpdateToken(ctx context.Context, id string, encryptedToken string, expiry time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	conn, ok := r.store.connections[id]
	if !ok {
		return storage.ErrNotFound
	}
	conn.AccessToken = encryptedToken
	exp := expiry
	conn.TokenExpiry = &exp
	return nil
}

func (r *ConnectionRepo) UpdateIGAccountID(ctx context.Context, id string, igAccountID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	conn, ok := r.store.connections[id]
	if !ok {
		return storage.ErrNotFound
	}
	conn.IGAccountID = &igAccountID
	return nil
}

// -----------------------------------------------------------------------------
// Post Repository
// -----------------------------------------------------------------------------

// PostRepo implements storage.PostRepository.
type PostRepo struct {
	store *Store
}

// NewPostRepo creates a post repository.
func NewPostRepo(store *Store) *PostRepo { return &PostRepo{store: store} }

func (r *PostRepo) Get(ctx context.Context, id string) (*domain.Post, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	post, ok := r.store.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *post
	return &cp, nil
}

func (r *PostRepo) MediaURLs(ctx context.Context, postID string) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]string(nil), r.store.postMedia[postID]...), nil
}

func (r *PostRepo) TryLockPublishing(ctx context.Context, postID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	post, ok := r.store.posts[postID]
	if !ok {
		return storage.ErrNotFound
	}
	if post.IsPublishing {
		return storage.ErrAlreadyPublishing
	}
	post.IsPublishing = true
	return nil
}

func (r *PostRepo) UnlockPublishing(ctx context.Context, postID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	post, ok := r.store.posts[postID]
	if !ok {
		return storage.ErrNotFound
	}
	post.IsPublishing = false
	return nil
}

// -----------------------------------------------------------------------------
// History / Audit / Notification Repositories
// -----------------------------------------------------------------------------

// HistoryRepo implements storage.HistoryRepository.
type HistoryRepo struct {
	store *Store
}

// NewHistoryRepo creates a history repository.
func NewHistoryRepo(store *Store) *HistoryRepo { return &HistoryRepo{store: store} }

func (r *HistoryRepo) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *rec
	r.store.history = append(r.store.history, &cp)
	return nil
}

// AuditRepo implements storage.AuditRepository.
type AuditRepo struct {
	store *Store
}

// NewAuditRepo creates an audit repository.
func NewAuditRepo(store *Store) *AuditRepo { return &AuditRepo{store: store} }

func (r *AuditRepo) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *entry
	r.store.audit = append(r.store.audit, &cp)
	return nil
}

// NotificationRepo implements storage.NotificationRepository.
type NotificationRepo struct {
	store *Store
}

// NewNotificationRepo creates a notification repository.
func NewNotificationRepo(store *Store) *NotificationRepo { return &NotificationRepo{store: store} }

func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *n
	r.store.notifications = append(r.store.notifications, &cp)
	return nil
}
