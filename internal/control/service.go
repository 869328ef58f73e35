// Package control wires the application together and owns its lifecycle:
// storage, redis, the platform publishers, the orchestrator, the scheduler
// loop and the operational HTTP server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/venuepost/publisher/internal/core/config"
	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/crypto"
	"github.com/venuepost/publisher/internal/infra/platform"
	redisclient "github.com/venuepost/publisher/internal/infra/redis"
	"github.com/venuepost/publisher/internal/infra/storage"
	"github.com/venuepost/publisher/internal/infra/storage/memory"
	"github.com/venuepost/publisher/internal/infra/storage/postgres"
	"github.com/venuepost/publisher/internal/publish/health"
	"github.com/venuepost/publisher/internal/publish/notify"
	"github.com/venuepost/publisher/internal/publish/orchestrator"
	"github.com/venuepost/publisher/internal/publish/resilience"
)

const tokenPurpose = "connection-tokens"

// tokenCodec covers both directions of token handling. The fieldcrypt
// encryptor satisfies it; plaintextCodec is the no-secret fallback.
type tokenCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(stored string) (string, error)
}

type plaintextCodec struct{}

func (plaintextCodec) Encrypt(s string) (string, error) { return s, nil }
func (plaintextCodec) Decrypt(s string) (string, error) { return s, nil }

// Service is the assembled application.
type Service struct {
	cfg          *config.AppConfig
	orch         *orchestrator.Orchestrator
	immediate    *orchestrator.Immediate
	queue        storage.QueueRepository
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewService creates a service with all dependencies initialized.
func NewService(ctx context.Context, cfg *config.AppConfig) (*Service, error) {

	// 1. Initialize Storage
	var (
		queueRepo        storage.QueueRepository
		connectionRepo   storage.ConnectionRepository
		postRepo         storage.PostRepository
		historyRepo      storage.HistoryRepository
		auditRepo        storage.AuditRepository
		notificationRepo storage.NotificationRepository
		db               *postgres.DB
		igCache          platform.IGAccountCacher
		tokenStore       platform.TokenStore
		pinger           health.Pinger
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		queueRepo = postgres.NewQueueRepo(db)
		connRepo := postgres.NewConnectionRepo(db)
		connectionRepo = connRepo
		igCache = connRepo
		tokenStore = connRepo
		postRepo = postgres.NewPostRepo(db)
		historyRepo = postgres.NewHistoryRepo(db)
		auditRepo = postgres.NewAuditRepo(db)
		notificationRepo = postgres.NewNotificationRepo(db)
		pinger = db

		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewStore()
		queueRepo = memory.NewQueueRepo(store)
		connRepo := memory.NewConnectionRepo(store)
		connectionRepo = connRepo
		igCache = connRepo
		tokenStore = connRepo
		postRepo = memory.NewPostRepo(store)
		historyRepo = memory.NewHistoryRepo(store)
		auditRepo = memory.NewAuditRepo(store)
		notificationRepo = memory.NewNotificationRepo(store)

		slog.Info("Using Memory storage")
	}

	// 2. Token encryption
	var codec tokenCodec = plaintextCodec{}
	if cfg.Publisher.EncryptionSecret != "" {
		enc, err := crypto.DeriveFieldEncryptor([]byte(cfg.Publisher.EncryptionSecret), tokenPurpose)
		if err != nil {
			return nil, fmt.Errorf("failed to derive token encryptor: %w", err)
		}
		codec = enc
	} else {
		slog.Warn("Token encryption disabled, no encryption secret configured")
	}

	// 3. Platform publishers
	registry := platform.NewRegistry()
	registry.Register(domain.PlatformFacebook, platform.NewFacebookPublisher(""))
	registry.Register(domain.PlatformInstagram, platform.NewInstagramPublisher("", igCache))
	registry.Register(domain.PlatformGoogle, platform.NewGooglePublisher(platform.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
	}, tokenStore, codec))
	registry.Register(domain.PlatformTwitter, platform.NewLegacyPublisher(domain.PlatformTwitter))

	// 4. Resilience
	breakers := resilience.NewBreakerRegistry(nil, resilience.DefaultBreakerConfig())

	// 5. Notifications
	var mailer notify.Mailer
	if cfg.Email.Host != "" && cfg.Email.To != "" {
		mailer = notify.NewEmailSender(cfg.Email)
	}
	notifier := notify.NewNotifier(notificationRepo, mailer)

	// 6. Orchestrator
	orchCfg := orchestrator.DefaultConfig()
	orchCfg.BatchSize = cfg.Publisher.BatchSize
	orchCfg.Workers = cfg.Publisher.Workers
	orchCfg.CallTimeout = cfg.Publisher.CallTimeout
	orch := orchestrator.New(
		orchCfg,
		queueRepo,
		connectionRepo,
		postRepo,
		historyRepo,
		auditRepo,
		notifier,
		registry,
		breakers,
		codec,
	)

	// 7. Redis-backed idempotency for the immediate path
	var (
		redisClient *redisclient.Client
		idemCache   orchestrator.IdempotencyCache
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, idempotency cache disabled", "error", err)
		} else {
			idemCache = redisclient.NewIdempotencyStore(redisClient)
		}
	}
	immediate := orchestrator.NewImmediate(orch, idemCache)

	// 8. Operational HTTP server
	monitor := health.NewMonitor(queueRepo, breakers, pinger)
	healthServer := health.NewServer(monitor, orch, cfg.Server.TriggerSecret, cfg.Server.Port)

	return &Service{
		cfg:          cfg,
		orch:         orch,
		immediate:    immediate,
		queue:        queueRepo,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default().With("component", "service"),
	}, nil
}

// Orchestrator exposes the queue processor.
func (s *Service) Orchestrator() *orchestrator.Orchestrator { return s.orch }

// Immediate exposes the publish-now path.
func (s *Service) Immediate() *orchestrator.Immediate { return s.immediate }

// Queue exposes the queue repository for administrative commands.
func (s *Service) Queue() storage.QueueRepository { return s.queue }

// Start runs the HTTP server and the scheduler loop until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.healthServer.Start(); err != nil {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()

	s.log.Info("Publisher started", "scan_interval", s.cfg.Publisher.ScanInterval, "port", s.cfg.Server.Port)

	ticker := time.NewTicker(s.cfg.Publisher.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := s.orch.ProcessDue(ctx)
			if err != nil {
				s.log.Error("Publish cycle failed", "error", err)
				continue
			}
			if report.Processed > 0 || report.Reaped > 0 {
				s.log.Info("Publish cycle finished", "processed", report.Processed, "reaped", report.Reaped)
			}
		}
	}
}

// Stop shuts the service down.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping publisher...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}
	return s.healthServer.Stop(ctx)
}
