// Package workflow turns launch parameters into job workflows backed by a
// cloud provider.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vmjobs/internal/cloud"
	"vmjobs/internal/job"
	"vmjobs/internal/recipe"
	"vmjobs/pkg/backoff"
	"vmjobs/pkg/retry"
)

// Builder builds launch requests for every job kind.
type Builder struct {
	provider cloud.Provider
	recipes  *recipe.Catalog
	logger   *slog.Logger
	agentURL string
	retries  retry.Policy
}

// Config configures a Builder.
type Config struct {
	Provider cloud.Provider
	Recipes  *recipe.Catalog
	Logger   *slog.Logger
	AgentURL string // passed to the provisioning setup script

	// RemoteAttempts bounds retries of idempotent remote calls (default 3).
	RemoteAttempts int
	// RemoteDelay spaces those retries (default linear, 2s base).
	RemoteDelay backoff.Func
}

// New creates a Builder.
func New(cfg Config) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RemoteAttempts < 1 {
		cfg.RemoteAttempts = 3
	}
	if cfg.RemoteDelay == nil {
		cfg.RemoteDelay = backoff.Linear(2*time.Second, 30*time.Second)
	}
	return &Builder{
		provider: cfg.Provider,
		recipes:  cfg.Recipes,
		logger:   logger.With("component", "workflow"),
		agentURL: cfg.AgentURL,
		retries: retry.Policy{
			Attempts:  cfg.RemoteAttempts,
			Delay:     cfg.RemoteDelay,
			Retryable: transient,
		},
	}
}

// Recipes exposes the recipe catalog used for provisioning.
func (b *Builder) Recipes() *recipe.Catalog { return b.recipes }

// transient reports whether a remote error is worth retrying.
func transient(err error) bool {
	return !errors.Is(err, cloud.ErrNotFound) &&
		!errors.Is(err, cloud.ErrAlreadyExists) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (b *Builder) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p := b.retries
	p.OnRetry = func(attempt int, err error) {
		b.logger.Warn("Remote call failed, retrying", "op", op, "attempt", attempt, "error", err)
	}
	return retry.Do(ctx, p, func(ctx context.Context, _ int) error { return fn(ctx) })
}

func hookURL(p Params) (string, error) {
	u := p["hook_url"]
	if err := job.ValidateHookURL(u); err != nil {
		return "", err
	}
	return u, nil
}
