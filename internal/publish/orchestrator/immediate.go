package orchestrator

import (
	"context"
	"errors"
	"fmt"

	redisclient "github.com/venuepost/publisher/internal/infra/redis"
	"github.com/venuepost/publisher/internal/publish/classify"
	"github.com/venuepost/publisher/internal/publish/metrics"

	"github.com/venuepost/publisher/internal/core/domain"
)

var (
	// ErrPermissionDenied is the policy failure for callers without
	// publish rights.
	ErrPermissionDenied = errors.New("caller does not have publish permission")

	// ErrApprovalRequired is the policy failure for posts that have not
	// met their approval quota.
	ErrApprovalRequired = errors.New("post has not met its approval quota")
)

// IdempotencyCache stores immediate-publish results for safe replay. The
// redis implementation lives in infra/redis; tests use an in-memory one.
type IdempotencyCache interface {
	Lookup(ctx context.Context, tenantID, key, bodyHash string) (*redisclient.CachedResult, error)
	Store(ctx context.Context, tenantID, key string, result *redisclient.CachedResult) error
}

// PublishNowRequest is one "publish now" call.
type PublishNowRequest struct {
	TenantID     string `json:"tenant_id"`
	PostID       string `json:"post_id"`
	ConnectionID string `json:"connection_id"`

	// IdempotencyKey is client-supplied; paired with a hash of the
	// request body it allows safe replay within the idempotency window.
	IdempotencyKey string `json:"idempotency_key"`

	// CanPublish is the caller's resolved publish permission; the auth
	// layer is an external collaborator.
	CanPublish bool `json:"-"`
}

// bodyHash covers the fields that define "the identical request".
func (r *PublishNowRequest) bodyHash() string {
	return redisclient.HashBody([]byte(r.TenantID + "|" + r.PostID + "|" + r.ConnectionID))
}

// PublishNowResult is the synchronous outcome of an immediate publish.
type PublishNowResult struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Permalink  string `json:"permalink,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	ErrorMsg   string `json:"error_msg,omitempty"`
	Replayed   bool   `json:"replayed,omitempty"`
}

// Immediate is the synchronous "publish now" path. It differs from the
// queue-driven orchestrator in its durable per-post exclusion flag,
// idempotency-key deduplication and fail-fast policy gates.
type Immediate struct {
	orch  *Orchestrator
	cache IdempotencyCache
}

// NewImmediate creates the immediate publish path. cache may be nil, which
// disables replay deduplication.
func NewImmediate(orch *Orchestrator, cache IdempotencyCache) *Immediate {
	return &Immediate{orch: orch, cache: cache}
}

// PublishNow publishes a post immediately. Policy failures surface as
// errors without touching the retry machinery; provider failures come back
// classified inside the result.
func (im *Immediate) PublishNow(ctx context.Context, req *PublishNowRequest) (*PublishNowResult, error) {
	o := im.orch

	// Policy gates run before any network call.
	if !req.CanPublish {
		return nil, ErrPermissionDenied
	}
	post, err := o.posts.Get(ctx, req.PostID)
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if post.ApprovalsGiven < post.ApprovalsRequired {
		return nil, ErrApprovalRequired
	}

	// Idempotent replay: identical request within the window returns the
	// cached result with zero provider calls.
	bodyHash := req.bodyHash()
	if im.cache != nil && req.IdempotencyKey != "" {
		cached, err := im.cache.Lookup(ctx, req.TenantID, req.IdempotencyKey, bodyHash)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return &PublishNowResult{
				Success:    cached.Success,
				ExternalID: cached.ExternalID,
				Permalink:  cached.Permalink,
				ErrorCode:  cached.ErrorCode,
				ErrorMsg:   cached.ErrorMsg,
				Replayed:   true,
			}, nil
		}
	}

	// Durable exclusion: concurrent publish-now calls for the same post
	// race on this conditional flip; exactly one wins.
	if err := o.posts.TryLockPublishing(ctx, req.PostID); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.posts.UnlockPublishing(context.WithoutCancel(ctx), req.PostID); err != nil {
			o.log.Error("Failed to clear is_publishing flag", "post_id", req.PostID, "error", err)
		}
	}()

	conn, err := o.connections.Get(ctx, req.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}

	pubReq, err := o.buildRequest(ctx, req.PostID, conn)
	if err != nil {
		return nil, err
	}

	result, err := o.dispatch(ctx, conn.Platform, pubReq)
	if err != nil {
		pe := classify.Classify(err, conn.Platform)
		metrics.PublishesTotal.WithLabelValues(string(conn.Platform), "failed").Inc()

		o.writeHistory(ctx, &domain.QueueItem{PostID: req.PostID, ConnectionID: req.ConnectionID},
			conn, domain.HistoryStatusFailed, nil, nil, &pe.UserMessage, o.log)
		o.writeAudit(ctx, conn.TenantID, "publish_failed", req.PostID, pe.UserMessage, o.log)
		o.notifier.PublishFailed(ctx, conn.TenantID, conn.Platform, pe.UserMessage)

		res := &PublishNowResult{Success: false, ErrorCode: string(pe.Code), ErrorMsg: pe.UserMessage}
		im.cacheResult(ctx, req, bodyHash, res)
		return res, nil
	}

	metrics.PublishesTotal.WithLabelValues(string(conn.Platform), "completed").Inc()
	o.writeHistory(ctx, &domain.QueueItem{PostID: req.PostID, ConnectionID: req.ConnectionID},
		conn, domain.HistoryStatusPublished, &result.ExternalID, &result.Permalink, nil, o.log)
	o.writeAudit(ctx, conn.TenantID, "post_published", req.PostID,
		fmt.Sprintf("published to %s as %s", conn.Platform, result.ExternalID), o.log)
	o.notifier.PublishSucceeded(ctx, conn.TenantID, conn.Platform, result.ExternalID)

	res := &PublishNowResult{Success: true, ExternalID: result.ExternalID, Permalink: result.Permalink}
	im.cacheResult(ctx, req, bodyHash, res)
	return res, nil
}

func (im *Immediate) cacheResult(ctx context.Context, req *PublishNowRequest, bodyHash string, res *PublishNowResult) {
	if im.cache == nil || req.IdempotencyKey == "" {
		return
	}
	err := im.cache.Store(ctx, req.TenantID, req.IdempotencyKey, &redisclient.CachedResult{
		BodyHash:   bodyHash,
		Success:    res.Success,
		ExternalID: res.ExternalID,
		Permalink:  res.Permalink,
		ErrorCode:  res.ErrorCode,
		ErrorMsg:   res.ErrorMsg,
	})
	if err != nil {
		im.orch.log.Warn("Failed to cache idempotent result", "post_id", req.PostID, "error", err)
	}
}
