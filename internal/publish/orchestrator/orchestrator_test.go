package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/platform"
	"github.com/venuepost/publisher/internal/infra/storage/memory"
	"github.com/venuepost/publisher/internal/publish/classify"
	"github.com/venuepost/publisher/internal/publish/notify"
	"github.com/venuepost/publisher/internal/publish/resilience"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scriptedPublisher fails with errs[i] on call i and succeeds once the
// script runs out.
type scriptedPublisher struct {
	mu    sync.Mutex
	calls int
	errs  []error
	delay time.Duration
}

func (p *scriptedPublisher) Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return &domain.PublishResult{ExternalID: "ext-1", Permalink: "https://example.com/ext-1"}, nil
}

func (p *scriptedPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type plainDecryptor struct{}

func (plainDecryptor) Decrypt(stored string) (string, error) { return stored, nil }

type fixture struct {
	store *memory.Store
	queue *memory.QueueRepo
	posts *memory.PostRepo
	clock *fakeClock
	pub   *scriptedPublisher
	orch  *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	pub := &scriptedPublisher{}

	reg := platform.NewRegistry()
	for _, p := range domain.AllPlatforms {
		reg.Register(p, pub)
	}

	// High thresholds keep the breaker out of the way unless a test wants it.
	breakers := resilience.NewBreakerRegistry(nil, resilience.BreakerConfig{
		FailureThreshold: 1000,
		MinimumRequests:  1000,
		Window:           time.Minute,
		ResetTimeout:     time.Second,
		SuccessThreshold: 1,
	})

	cfg := DefaultConfig()
	cfg.Retry = resilience.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}

	queue := memory.NewQueueRepo(store)
	posts := memory.NewPostRepo(store)
	orch := New(
		cfg,
		queue,
		memory.NewConnectionRepo(store),
		posts,
		memory.NewHistoryRepo(store),
		memory.NewAuditRepo(store),
		notify.NewNotifier(memory.NewNotificationRepo(store), nil),
		reg,
		breakers,
		plainDecryptor{},
	).WithClock(clock.Now)

	return &fixture{store: store, queue: queue, posts: posts, clock: clock, pub: pub, orch: orch}
}

func TestNewSeedsJitterSource(t *testing.T) {
	store := memory.NewStore()
	orch := New(
		DefaultConfig(),
		memory.NewQueueRepo(store),
		memory.NewConnectionRepo(store),
		memory.NewPostRepo(store),
		memory.NewHistoryRepo(store),
		memory.NewAuditRepo(store),
		notify.NewNotifier(memory.NewNotificationRepo(store), nil),
		platform.NewRegistry(),
		resilience.NewBreakerRegistry(nil, resilience.DefaultBreakerConfig()),
		plainDecryptor{},
	)

	if !orch.cfg.Retry.Jitter {
		t.Fatal("default retry config should keep jitter on")
	}
	if orch.cfg.Retry.Rand == nil {
		t.Fatal("default retry config has no jitter source, jitter would be a no-op")
	}
	delay := resilience.RetryDelay(orch.cfg.Retry, 1)
	base := orch.cfg.Retry.InitialDelay
	if delay < base/2 || delay > base+base/2 {
		t.Errorf("jittered delay %v outside [%v, %v]", delay, base/2, base+base/2)
	}
}

func (f *fixture) seed(t *testing.T, p domain.Platform) *domain.QueueItem {
	t.Helper()

	f.store.AddConnection(&domain.Connection{
		ID:          "conn-1",
		TenantID:    "tenant-1",
		Platform:    p,
		AccessToken: "token-1",
		PageID:      "page-1",
	})
	f.store.AddPost(&domain.Post{ID: "post-1", TenantID: "tenant-1", Body: "hello"})

	item := &domain.QueueItem{
		ID:           "q-1",
		PostID:       "post-1",
		ConnectionID: "conn-1",
		Status:       domain.QueueStatusPending,
		ScheduledFor: f.clock.Now().Add(-time.Minute),
	}
	if err := f.queue.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return item
}

func (f *fixture) item(t *testing.T, id string) *domain.QueueItem {
	t.Helper()
	item, err := f.queue.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", id, err)
	}
	return item
}

func TestProcessDueSuccess(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.PlatformFacebook)

	report, err := f.orch.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if report.Processed != 1 {
		t.Fatalf("Processed = %d, want 1", report.Processed)
	}
	if len(report.Results) != 1 || !report.Results[0].Success {
		t.Fatalf("Results = %+v, want one success", report.Results)
	}

	item := f.item(t, "q-1")
	if item.Status != domain.QueueStatusCompleted {
		t.Errorf("status = %q, want completed", item.Status)
	}
	if item.LastError != nil || item.NextAttemptAt != nil {
		t.Errorf("last_error = %v, next_attempt_at = %v, want both nil", item.LastError, item.NextAttemptAt)
	}
	if n := f.pub.callCount(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}

	hist := f.store.History()
	if len(hist) != 1 || hist[0].Status != domain.HistoryStatusPublished {
		t.Fatalf("history = %+v, want one published record", hist)
	}
	if hist[0].ExternalID == nil || *hist[0].ExternalID != "ext-1" {
		t.Errorf("history external id = %v, want ext-1", hist[0].ExternalID)
	}
	if len(f.store.Notifications()) != 1 {
		t.Errorf("notifications = %d, want 1", len(f.store.Notifications()))
	}
	if len(f.store.AuditEntries()) != 1 || f.store.AuditEntries()[0].Action != "post_published" {
		t.Errorf("audit = %+v, want one post_published entry", f.store.AuditEntries())
	}
}

func TestProcessDueNothingDue(t *testing.T) {
	f := newFixture(t)

	report, err := f.orch.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if report.Processed != 0 || report.Reaped != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestTransientFailureReschedules(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.PlatformFacebook)
	f.pub.errs = []error{
		&platform.APIError{Status: 503, Body: "Service Unavailable"},
		&platform.APIError{Status: 503, Body: "Service Unavailable"},
	}

	if _, err := f.orch.ProcessDue(context.Background()); err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}

	// The inner retry budget is 2, both fail, then the item goes back to
	// pending with the queue-level backoff.
	if n := f.pub.callCount(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}

	item := f.item(t, "q-1")
	if item.Status != domain.QueueStatusPending {
		t.Fatalf("status = %q, want pending", item.Status)
	}
	if item.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", item.Attempts)
	}
	if item.LastError == nil {
		t.Error("last_error is nil, want the user-safe message")
	}
	if item.NextAttemptAt == nil {
		t.Fatal("next_attempt_at is nil, want a backoff timestamp")
	}
	want := f.clock.Now().Add(RetryBackoff(1))
	if !item.NextAttemptAt.Equal(want) {
		t.Errorf("next_attempt_at = %v, want %v", item.NextAttemptAt, want)
	}
	if item.LastAttemptAt == nil || !item.NextAttemptAt.After(*item.LastAttemptAt) {
		t.Errorf("next_attempt_at %v not after last_attempt_at %v", item.NextAttemptAt, item.LastAttemptAt)
	}
}

func TestAttemptCapAndBackoffGrowth(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.PlatformFacebook)

	fail := &platform.APIError{Status: 503, Body: "down"}
	for i := 0; i < 20; i++ {
		f.pub.errs = append(f.pub.errs, fail)
	}

	var delays []time.Duration
	for run := 0; run < domain.MaxAttempts; run++ {
		if _, err := f.orch.ProcessDue(context.Background()); err != nil {
			t.Fatalf("ProcessDue() run %d error = %v", run, err)
		}
		item := f.item(t, "q-1")
		if item.Status == domain.QueueStatusFailed {
			break
		}
		if item.NextAttemptAt == nil {
			t.Fatalf("run %d: next_attempt_at is nil while still pending", run)
		}
		delays = append(delays, item.NextAttemptAt.Sub(f.clock.Now()))
		f.clock.Advance(item.NextAttemptAt.Sub(f.clock.Now()) + time.Second)
	}

	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("delay[%d] = %v not greater than delay[%d] = %v", i, delays[i], i-1, delays[i-1])
		}
	}
	for i, d := range delays {
		if d > maxRetryBackoff {
			t.Errorf("delay[%d] = %v exceeds ceiling %v", i, d, maxRetryBackoff)
		}
	}

	item := f.item(t, "q-1")
	if item.Status != domain.QueueStatusFailed {
		t.Fatalf("status = %q, want failed after attempt cap", item.Status)
	}
	if item.Attempts != domain.MaxAttempts {
		t.Errorf("attempts = %d, want %d", item.Attempts, domain.MaxAttempts)
	}

	// A capped item is never picked up again.
	before := f.pub.callCount()
	f.clock.Advance(2 * time.Hour)
	report, err := f.orch.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if report.Processed != 0 {
		t.Errorf("Processed = %d after cap, want 0", report.Processed)
	}
	if after := f.pub.callCount(); after != before {
		t.Errorf("provider calls changed %d -> %d after cap", before, after)
	}
}

func TestPermanentFailureFailsImmediately(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.PlatformFacebook)
	f.pub.errs = []error{&platform.APIError{Status: 401, Body: "invalid token"}}

	report, err := f.orch.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Success {
		t.Fatalf("Results = %+v, want one failure", report.Results)
	}
	if got := report.Results[0].ErrorCode; got != string(classify.CodeUnauthorized) {
		t.Errorf("error code = %q, want %q", got, classify.CodeUnauthorized)
	}

	if n := f.pub.callCount(); n != 1 {
		t.Errorf("provider calls = %d, want 1 for a permanent failure", n)
	}

	item := f.item(t, "q-1")
	if item.Status != domain.QueueStatusFailed {
		t.Errorf("status = %q, want failed", item.Status)
	}
	if item.Attempts != 1 {
		t.Errorf("attempts = %d, want 1; permanent failures must not burn the budget", item.Attempts)
	}

	hist := f.store.History()
	if len(hist) != 1 || hist[0].Status != domain.HistoryStatusFailed {
		t.Fatalf("history = %+v, want exactly one failed record", hist)
	}
	if len(f.store.Notifications()) != 1 {
		t.Errorf("notifications = %d, want 1", len(f.store.Notifications()))
	}
}

func TestRetrySucceedsAfterServerError(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.PlatformFacebook)
	f.pub.errs = []error{&platform.APIError{Status: 503, Body: "try again"}}

	report, err := f.orch.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if len(report.Results) != 1 || !report.Results[0].Success {
		t.Fatalf("Results = %+v, want one success", report.Results)
	}
	if n := f.pub.callCount(); n != 2 {
		t.Errorf("provider calls = %d, want exactly 2", n)
	}
	if item := f.item(t, "q-1"); item.Status != domain.QueueStatusCompleted {
		t.Errorf("status = %q, want completed", item.Status)
	}
}

func TestReaperReclaimsStaleProcessing(t *testing.T) {
	f := newFixture(t)
	item := f.seed(t, domain.PlatformFacebook)

	// Simulate a worker that claimed the item and died.
	stale := f.clock.Now().Add(-10 * time.Minute)
	item.Status = domain.QueueStatusProcessing
	item.Attempts = 1
	item.LastAttemptAt = &stale
	if err := f.queue.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	report, err := f.orch.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if report.Reaped != 1 {
		t.Errorf("Reaped = %d, want 1", report.Reaped)
	}
	if report.Processed != 1 {
		t.Errorf("Processed = %d, want the reclaimed item claimed in the same cycle", report.Processed)
	}

	got := f.item(t, "q-1")
	if got.Status != domain.QueueStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
}

func TestLegacyPlatformFailsWithoutRetry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.PlatformTwitter)

	reg := platform.NewRegistry()
	reg.Register(domain.PlatformTwitter, platform.NewLegacyPublisher(domain.PlatformTwitter))
	f.orch.publishers = reg

	report, err := f.orch.ProcessDue(context.Background())
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Success {
		t.Fatalf("Results = %+v, want one failure", report.Results)
	}
	if item := f.item(t, "q-1"); item.Status != domain.QueueStatusPending && item.Status != domain.QueueStatusFailed {
		t.Errorf("status = %q, want a non-completed state", item.Status)
	}
}
