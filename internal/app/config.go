package app

import (
	"errors"
	"fmt"
	"time"
)

// DefaultStoreURI keeps provenance and the run ledger in memory.
const DefaultStoreURI = "memory://"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	CampaignPath string // .hcl/.yaml file or directory
	Workers      int
	// Timeout overrides every job's timeout when positive.
	Timeout    time.Duration
	StoreURI   string
	OutputRoot string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	AllowEmpty bool
	PlanOnly   bool
	Build      bool
	Rerun      bool
	Strict     bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.CampaignPath == "" {
		return nil, errors.New("CampaignPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port %d is out of range", cfg.HealthcheckPort)
	}
	if cfg.StoreURI == "" {
		cfg.StoreURI = DefaultStoreURI
	}
	if _, err := storeScheme(cfg.StoreURI); err != nil {
		return nil, err
	}
	return &cfg, nil
}
