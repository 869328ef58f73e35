package config

import (
	"time"

	redisclient "github.com/venuepost/publisher/internal/infra/redis"
	"github.com/venuepost/publisher/internal/infra/storage/postgres"
	"github.com/venuepost/publisher/internal/publish/notify"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Email     notify.EmailConfig `yaml:"email"`
	Google    GoogleConfig       `yaml:"google"`
	Publisher PublisherConfig    `yaml:"publisher"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`

	// TriggerSecret guards POST /run. Empty disables the endpoint.
	TriggerSecret string `yaml:"trigger_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// GoogleConfig holds Google Business Profile OAuth credentials.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// PublisherConfig holds publishing pipeline tuning.
type PublisherConfig struct {
	// ScanInterval is how often the scheduler claims a batch.
	ScanInterval time.Duration `yaml:"scan_interval"`

	// BatchSize is the maximum items claimed per cycle.
	BatchSize int `yaml:"batch_size"`

	// Workers is the publish worker pool size.
	Workers int `yaml:"workers"`

	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// EncryptionSecret is the master secret access tokens are encrypted
	// under. Empty disables encryption; stored plaintext tokens still
	// pass through either way.
	EncryptionSecret string `yaml:"encryption_secret"`
}
