// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Cloud providers selectable with CLOUD_PROVIDER.
const (
	ProviderMemory = "memory"
	ProviderEC2    = "ec2"
	ProviderDocker = "docker"
)

// Job stores selectable with STORE.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// MaxWebhookAttempts bounds delivery attempts per notification.
const MaxWebhookAttempts = 3

// ServiceConfig holds configuration for the vmjobs service.
type ServiceConfig struct {
	Port              string        `env:"PORT"                envDefault:"8080"`
	MetricsPort       string        `env:"METRICS_PORT"        envDefault:"9090"`
	PublicBaseURL     string        `env:"PUBLIC_BASE_URL"     envDefault:"http://localhost:8080"`
	APIKeyFile        string        `env:"API_KEY_FILE"`
	ShutdownDrainWait time.Duration `env:"SHUTDOWN_DRAIN_WAIT" envDefault:"5s"` // 0 skips the load balancer drain
	LogLevel          string        `env:"LOG_LEVEL"           envDefault:"info"`

	Provider    string `env:"CLOUD_PROVIDER"    envDefault:"memory"`
	AWSRegion   string `env:"AWS_REGION"`
	DockerImage string `env:"DOCKER_BASE_IMAGE" envDefault:"ubuntu:24.04"`
	RecipesDir  string `env:"RECIPES_DIR"`
	AgentURL    string `env:"AGENT_URL"` // empty: provision-agent is already on the image

	Store               string        `env:"STORE"                envDefault:"memory"`
	RedisURL            string        `env:"REDIS_URL"            envDefault:"redis://localhost:6379/0"`
	JobRetention        time.Duration `env:"JOB_RETENTION"        envDefault:"24h"`
	MaintenanceInterval time.Duration `env:"MAINTENANCE_INTERVAL" envDefault:"1m"`

	Webhook WebhookConfig `envPrefix:"WEBHOOK_"`

	BatchConcurrency int           `env:"BATCH_CONCURRENCY" envDefault:"1"`
	StepTimeout      time.Duration `env:"STEP_TIMEOUT"      envDefault:"2h"`
}

// WebhookConfig controls delivery of progress notifications.
type WebhookConfig struct {
	Attempts        int           `env:"ATTEMPTS"        envDefault:"3"`
	BaseDelay       time.Duration `env:"BASE_DELAY"      envDefault:"2s"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	Timeout         time.Duration `env:"TIMEOUT"         envDefault:"30s"`
	SigningKey      string        `env:"SIGNING_KEY"`
	BreakerFailures int           `env:"BREAKER_FAILURES" envDefault:"0"` // 0 disables the per-host breaker
	BreakerCooldown time.Duration `env:"BREAKER_COOLDOWN" envDefault:"1m"`
}

// Sanitize clamps values into their supported ranges.
func (w *WebhookConfig) Sanitize() {
	if w.Attempts < 1 || w.Attempts > MaxWebhookAttempts {
		w.Attempts = MaxWebhookAttempts
	}
	if w.BaseDelay < 0 {
		w.BaseDelay = 0
	}
	if w.ConnectTimeout <= 0 {
		w.ConnectTimeout = 10 * time.Second
	}
	if w.Timeout <= 0 {
		w.Timeout = 30 * time.Second
	}
	if w.BreakerFailures < 0 {
		w.BreakerFailures = 0
	}
	if w.BreakerCooldown <= 0 {
		w.BreakerCooldown = time.Minute
	}
}

// Sanitize normalizes enum-like values and clamps numeric ones.
func (c *ServiceConfig) Sanitize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	if c.BatchConcurrency < 1 {
		c.BatchConcurrency = 1
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 24 * time.Hour
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = time.Minute
	}
	c.Webhook.Sanitize()
}

// Validate rejects configurations the service cannot start with.
func (c *ServiceConfig) Validate() error {
	switch c.Provider {
	case ProviderMemory, ProviderEC2, ProviderDocker:
	default:
		return fmt.Errorf("unsupported CLOUD_PROVIDER %q", c.Provider)
	}
	switch c.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unsupported STORE %q", c.Store)
	}
	return nil
}

// SlogLevel converts LOG_LEVEL into a slog level, defaulting to info.
func (c *ServiceConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LoadServiceConfig loads service configuration from .env and the environment.
func LoadServiceConfig() (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
