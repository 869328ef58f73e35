// Package orchestrator drives the publish queue: it claims due items, fans
// them out to a bounded worker pool, dispatches each to its platform
// publisher through the resilience stack, and writes the resulting state
// transition plus history, audit and notification side effects.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/platform"
	"github.com/venuepost/publisher/internal/infra/storage"
	"github.com/venuepost/publisher/internal/publish/classify"
	"github.com/venuepost/publisher/internal/publish/metrics"
	"github.com/venuepost/publisher/internal/publish/notify"
	"github.com/venuepost/publisher/internal/publish/resilience"
)

// TokenDecryptor resolves stored tokens to plaintext.
type TokenDecryptor interface {
	Decrypt(stored string) (string, error)
}

// Config holds orchestrator tuning.
type Config struct {
	BatchSize   int
	Workers     int
	CallTimeout time.Duration
	Retry       resilience.RetryConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   25,
		Workers:     3,
		CallTimeout: 30 * time.Second,
		Retry:       resilience.SocialRetryConfig,
	}
}

// Orchestrator processes the publish queue.
type Orchestrator struct {
	cfg         Config
	queue       storage.QueueRepository
	connections storage.ConnectionRepository
	posts       storage.PostRepository
	history     storage.HistoryRepository
	audit       storage.AuditRepository
	notifier    *notify.Notifier
	publishers  *platform.Registry
	breakers    *resilience.BreakerRegistry
	decryptor   TokenDecryptor
	now         func() time.Time
	log         *slog.Logger
}

// New creates an orchestrator.
func New(
	cfg Config,
	queue storage.QueueRepository,
	connections storage.ConnectionRepository,
	posts storage.PostRepository,
	history storage.HistoryRepository,
	audit storage.AuditRepository,
	notifier *notify.Notifier,
	publishers *platform.Registry,
	breakers *resilience.BreakerRegistry,
	decryptor TokenDecryptor,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Retry.Jitter && cfg.Retry.Rand == nil {
		cfg.Retry.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Orchestrator{
		cfg:         cfg,
		queue:       queue,
		connections: connections,
		posts:       posts,
		history:     history,
		audit:       audit,
		notifier:    notifier,
		publishers:  publishers,
		breakers:    breakers,
		decryptor:   decryptor,
		now:         time.Now,
		log:         slog.Default().With("component", "orchestrator"),
	}
}

// WithClock overrides the clock, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// ItemResult is one queue item's outcome in a run report.
type ItemResult struct {
	QueueID   string `json:"queueId"`
	Success   bool   `json:"success"`
	PostID    string `json:"postId,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// RunReport summarizes one orchestrator invocation.
type RunReport struct {
	Processed int          `json:"processed"`
	Reaped    int          `json:"reaped"`
	Results   []ItemResult `json:"results"`
}

// ProcessDue runs one cycle: reap stale items, claim a batch, process it on
// the worker pool. Provider failures never escape as errors; they become
// queue state transitions. The returned error covers storage-level failures
// only.
func (o *Orchestrator) ProcessDue(ctx context.Context) (*RunReport, error) {
	now := o.now()

	reaped, err := o.queue.ReapStale(ctx, now.Add(-domain.StaleProcessingAge))
	if err != nil {
		return nil, fmt.Errorf("reap stale items: %w", err)
	}
	if reaped > 0 {
		metrics.ItemsReaped.Add(float64(reaped))
		o.log.Info("Reclaimed stale processing items", "count", reaped)
	}

	items, err := o.queue.ClaimDue(ctx, o.cfg.BatchSize, now)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}

	report := &RunReport{Processed: len(items), Reaped: reaped}
	if len(items) == 0 {
		return report, nil
	}
	o.log.Info("Claimed publish batch", "count", len(items))

	// Bounded fan-out. Workers run independently so a slow platform call
	// does not block unrelated items.
	work := make(chan *domain.QueueItem)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				res := o.processItem(ctx, item)
				mu.Lock()
				report.Results = append(report.Results, res)
				mu.Unlock()
			}
		}()
	}
	for _, item := range items {
		work <- item
	}
	close(work)
	wg.Wait()

	o.updateQueueDepth(ctx)
	return report, nil
}

// processItem runs the full state machine for one claimed item.
func (o *Orchestrator) processItem(ctx context.Context, item *domain.QueueItem) ItemResult {
	log := o.log.With("queue_id", item.ID, "post_id", item.PostID, "attempt", item.Attempts)

	conn, err := o.connections.Get(ctx, item.ConnectionID)
	if err != nil {
		return o.handleFailure(ctx, item, nil,
			classify.Classify(fmt.Errorf("load connection: %w", err), ""), log)
	}

	req, err := o.buildRequest(ctx, item.PostID, conn)
	if err != nil {
		return o.handleFailure(ctx, item, conn, classify.Classify(err, conn.Platform), log)
	}

	start := o.now()
	result, err := o.dispatch(ctx, conn.Platform, req)
	metrics.PublishLatency.WithLabelValues(string(conn.Platform)).Observe(time.Since(start).Seconds())

	if err != nil {
		return o.handleFailure(ctx, item, conn, classify.Classify(err, conn.Platform), log)
	}
	return o.handleSuccess(ctx, item, conn, result, log)
}

// buildRequest resolves media URLs and the decrypted access token for a
// post/connection pair.
func (o *Orchestrator) buildRequest(ctx context.Context, postID string, conn *domain.Connection) (*domain.PublishRequest, error) {
	post, err := o.posts.Get(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}

	mediaURLs, err := o.posts.MediaURLs(ctx, postID)
	if err != nil {
		return nil, err
	}
	// Fall back to the legacy single media_url column.
	if len(mediaURLs) == 0 && post.MediaURL != nil && *post.MediaURL != "" {
		mediaURLs = []string{*post.MediaURL}
	}

	token, err := o.decryptor.Decrypt(conn.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}

	return &domain.PublishRequest{
		Connection:  conn,
		Post:        post,
		Message:     post.Body,
		MediaURLs:   mediaURLs,
		AccessToken: token,
	}, nil
}

// dispatch calls the platform publisher wrapped in retry, circuit breaker
// and timeout guard.
func (o *Orchestrator) dispatch(ctx context.Context, p domain.Platform, req *domain.PublishRequest) (*domain.PublishResult, error) {
	pub, err := o.publishers.Get(p)
	if err != nil {
		return nil, err
	}

	service := p.ServiceName()
	breaker := o.breakers.Get(service)

	retryCfg := o.cfg.Retry
	retryCfg.Retryable = func(err error) bool {
		// A tripped breaker or a permanent provider error will not heal
		// within this dispatch; hand control back to the queue backoff.
		var coe *resilience.CircuitOpenError
		if errors.As(err, &coe) {
			return false
		}
		var pe *classify.ProviderError
		if errors.As(err, &pe) && pe.Permanent() {
			return false
		}
		if errors.Is(err, platform.ErrPlatformDisabled) {
			return false
		}
		return resilience.DefaultRetryable(err)
	}

	var result *domain.PublishResult
	err = resilience.Retry(ctx, retryCfg, func(ctx context.Context) error {
		if err := breaker.Allow(); err != nil {
			return err
		}
		metrics.ProviderCallsTotal.WithLabelValues(string(p)).Inc()

		callErr := resilience.WithTimeout(ctx, service, o.cfg.CallTimeout, func(ctx context.Context) error {
			r, perr := pub.Publish(ctx, req)
			if perr != nil {
				return perr
			}
			result = r
			return nil
		})
		if callErr != nil {
			breaker.RecordFailure()
			o.recordBreakerState(service, breaker)
			return callErr
		}
		breaker.RecordSuccess()
		o.recordBreakerState(service, breaker)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) handleSuccess(ctx context.Context, item *domain.QueueItem, conn *domain.Connection, result *domain.PublishResult, log *slog.Logger) ItemResult {
	err := o.queue.Update(ctx, item.ID, domain.QueueItemUpdate{
		Status:           domain.QueueStatusCompleted,
		ClearLastError:   true,
		ClearNextAttempt: true,
	})
	if err != nil {
		log.Error("Failed to mark item completed", "error", err)
	}

	o.writeHistory(ctx, item, conn, domain.HistoryStatusPublished, &result.ExternalID, &result.Permalink, nil, log)
	o.writeAudit(ctx, conn.TenantID, "post_published", item.PostID,
		fmt.Sprintf("published to %s as %s", conn.Platform, result.ExternalID), log)
	o.notifier.PublishSucceeded(ctx, conn.TenantID, conn.Platform, result.ExternalID)

	metrics.PublishesTotal.WithLabelValues(string(conn.Platform), "completed").Inc()
	log.Info("Publish succeeded", "platform", conn.Platform, "external_id", result.ExternalID)

	return ItemResult{QueueID: item.ID, Success: true, PostID: result.ExternalID}
}

// handleFailure interprets a classified failure: permanent errors and
// exhausted attempt budgets fail the item; transient errors reschedule with
// exponential backoff; unknown errors reschedule with a fixed short delay.
func (o *Orchestrator) handleFailure(ctx context.Context, item *domain.QueueItem, conn *domain.Connection, pe *classify.ProviderError, log *slog.Logger) ItemResult {
	now := o.now()
	userMsg := pe.UserMessage

	tenantID := ""
	p := pe.Platform
	if conn != nil {
		tenantID = conn.TenantID
		p = conn.Platform
	}

	metrics.ProviderErrorsTotal.WithLabelValues(string(p), string(pe.Code)).Inc()
	log.Warn("Publish attempt failed", "platform", p, "code", pe.Code, "raw", pe.Raw())

	permanent := pe.Permanent() || item.Attempts >= domain.MaxAttempts
	if permanent {
		if err := o.queue.Update(ctx, item.ID, domain.QueueItemUpdate{
			Status:           domain.QueueStatusFailed,
			LastError:        &userMsg,
			ClearNextAttempt: true,
		}); err != nil {
			log.Error("Failed to mark item failed", "error", err)
		}

		o.writeHistory(ctx, item, conn, domain.HistoryStatusFailed, nil, nil, &userMsg, log)
		o.writeAudit(ctx, tenantID, "publish_failed", item.PostID, userMsg, log)
		o.notifier.PublishFailed(ctx, tenantID, p, userMsg)

		metrics.PublishesTotal.WithLabelValues(string(p), "failed").Inc()
		return ItemResult{QueueID: item.ID, Success: false, Error: userMsg, ErrorCode: string(pe.Code)}
	}

	delay := unknownBackoff
	if pe.Transient() {
		delay = RetryBackoff(item.Attempts)
	}
	nextAt := now.Add(delay)

	if err := o.queue.Update(ctx, item.ID, domain.QueueItemUpdate{
		Status:        domain.QueueStatusPending,
		LastError:     &userMsg,
		NextAttemptAt: &nextAt,
		ScheduledFor:  &nextAt,
	}); err != nil {
		log.Error("Failed to reschedule item", "error", err)
	}

	metrics.PublishesTotal.WithLabelValues(string(p), "retry_scheduled").Inc()
	log.Info("Publish rescheduled", "platform", p, "next_attempt_at", nextAt, "delay", delay)
	return ItemResult{QueueID: item.ID, Success: false, Error: userMsg, ErrorCode: string(pe.Code)}
}

func (o *Orchestrator) writeHistory(ctx context.Context, item *domain.QueueItem, conn *domain.Connection, status domain.HistoryStatus, externalID, permalink, errMsg *string, log *slog.Logger) {
	rec := &domain.HistoryRecord{
		ID:           uuid.NewString(),
		PostID:       item.PostID,
		ConnectionID: item.ConnectionID,
		Status:       status,
		ExternalID:   externalID,
		Permalink:    permalink,
		ErrorMessage: errMsg,
	}
	if conn != nil {
		rec.TenantID = conn.TenantID
		rec.Platform = conn.Platform
	}
	if err := o.history.Insert(ctx, rec); err != nil {
		log.Error("Failed to insert history record", "error", err)
	}
}

func (o *Orchestrator) writeAudit(ctx context.Context, tenantID, action, subjectID, detail string, log *slog.Logger) {
	entry := &domain.AuditEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Action:    action,
		SubjectID: subjectID,
		Detail:    detail,
	}
	if err := o.audit.Insert(ctx, entry); err != nil {
		log.Warn("Failed to insert audit entry", "action", action, "error", err)
	}
}

func (o *Orchestrator) recordBreakerState(service string, b *resilience.Breaker) {
	metrics.BreakerState.WithLabelValues(service).Set(float64(b.State()))
}

func (o *Orchestrator) updateQueueDepth(ctx context.Context) {
	counts, err := o.queue.CountByStatus(ctx)
	if err != nil {
		return
	}
	for status, n := range counts {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}
