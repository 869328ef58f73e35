package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Publisher.ScanInterval == 0 {
		cfg.Publisher.ScanInterval = time.Minute
	}
	if cfg.Publisher.BatchSize == 0 {
		cfg.Publisher.BatchSize = 25
	}
	if cfg.Publisher.Workers == 0 {
		cfg.Publisher.Workers = 3
	}
	if cfg.Publisher.CallTimeout == 0 {
		cfg.Publisher.CallTimeout = 30 * time.Second
	}

	return &cfg, nil
}
