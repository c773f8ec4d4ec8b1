package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServiceConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadServiceConfig()
	if err != nil {
		t.Fatalf("LoadServiceConfig() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Provider != ProviderMemory {
		t.Errorf("Provider = %q, want memory", cfg.Provider)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q, want memory", cfg.Store)
	}
	if cfg.Webhook.Attempts != 3 {
		t.Errorf("Webhook.Attempts = %d, want 3", cfg.Webhook.Attempts)
	}
	if cfg.Webhook.BaseDelay != 2*time.Second {
		t.Errorf("Webhook.BaseDelay = %v, want 2s", cfg.Webhook.BaseDelay)
	}
	if cfg.Webhook.ConnectTimeout != 10*time.Second || cfg.Webhook.Timeout != 30*time.Second {
		t.Errorf("unexpected webhook timeouts %v/%v", cfg.Webhook.ConnectTimeout, cfg.Webhook.Timeout)
	}
	if cfg.Webhook.BreakerFailures != 0 {
		t.Errorf("Webhook.BreakerFailures = %d, want 0 (breaker off)", cfg.Webhook.BreakerFailures)
	}
	if cfg.BatchConcurrency != 1 {
		t.Errorf("BatchConcurrency = %d, want 1", cfg.BatchConcurrency)
	}
	if cfg.JobRetention != 24*time.Hour {
		t.Errorf("JobRetention = %v, want 24h", cfg.JobRetention)
	}
}

func TestLoadServiceConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLOUD_PROVIDER", " EC2 ")
	t.Setenv("STORE", "redis")
	t.Setenv("PUBLIC_BASE_URL", "https://jobs.example.com/")
	t.Setenv("WEBHOOK_ATTEMPTS", "10")
	t.Setenv("WEBHOOK_BASE_DELAY", "250ms")
	t.Setenv("BATCH_CONCURRENCY", "0")
	t.Setenv("WEBHOOK_BREAKER_FAILURES", "-2")

	cfg, err := LoadServiceConfig()
	if err != nil {
		t.Fatalf("LoadServiceConfig() error = %v", err)
	}

	if cfg.Provider != ProviderEC2 {
		t.Errorf("Provider = %q, want ec2", cfg.Provider)
	}
	if cfg.Store != StoreRedis {
		t.Errorf("Store = %q, want redis", cfg.Store)
	}
	if cfg.PublicBaseURL != "https://jobs.example.com" {
		t.Errorf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if cfg.Webhook.Attempts != MaxWebhookAttempts {
		t.Errorf("Webhook.Attempts = %d, want capped at %d", cfg.Webhook.Attempts, MaxWebhookAttempts)
	}
	if cfg.Webhook.BaseDelay != 250*time.Millisecond {
		t.Errorf("Webhook.BaseDelay = %v", cfg.Webhook.BaseDelay)
	}
	if cfg.BatchConcurrency != 1 {
		t.Errorf("BatchConcurrency = %d, want clamped to 1", cfg.BatchConcurrency)
	}
	if cfg.Webhook.BreakerFailures != 0 {
		t.Errorf("Webhook.BreakerFailures = %d, want clamped to 0", cfg.Webhook.BreakerFailures)
	}
}

func TestLoadServiceConfigRejectsUnknownProvider(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLOUD_PROVIDER", "azure")

	if _, err := LoadServiceConfig(); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestParseReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9999\nSTORE=redis\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set.
	t.Setenv("STORE", "memory")
	os.Unsetenv("PORT")
	t.Cleanup(func() { os.Unsetenv("PORT") })

	var cfg ServiceConfig
	if err := Parse(&cfg); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want value from .env", cfg.Port)
	}
	if cfg.Store != "memory" {
		t.Errorf("Store = %q, want environment to win over .env", cfg.Store)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := ServiceConfig{LogLevel: tt.in}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReadSecretFile(t *testing.T) {
	t.Parallel()

	if got, err := ReadSecretFile(""); err != nil || got != "" {
		t.Errorf("empty path: got %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "api-key")
	if err := os.WriteFile(path, []byte("  s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSecretFile(path)
	if err != nil {
		t.Fatalf("ReadSecretFile() error = %v", err)
	}
	if got != "s3cret" {
		t.Errorf("ReadSecretFile() = %q, want trimmed secret", got)
	}

	if _, err := ReadSecretFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
