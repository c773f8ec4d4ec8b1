// Package agent runs a provisioning recipe on the VM it was installed on and
// reports each step to the job's webhook.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vmjobs/internal/job"
	"vmjobs/internal/recipe"
	"vmjobs/internal/store"
	"vmjobs/internal/webhook"
	"vmjobs/pkg/backoff"
	"vmjobs/pkg/retry"
)

// ErrRecipeFailed is returned by Run when a non-tolerant step failed.
var ErrRecipeFailed = errors.New("recipe failed")

// Agent drives one recipe to completion.
type Agent struct {
	cfg      *Config
	recipe   *recipe.Recipe
	exec     Executor
	notifier job.Notifier
	logger   *slog.Logger
}

// Option customizes an Agent.
type Option func(*Agent)

// WithExecutor replaces the shell executor.
func WithExecutor(e Executor) Option {
	return func(a *Agent) { a.exec = e }
}

// WithNotifier replaces the webhook notifier.
func WithNotifier(n job.Notifier) Option {
	return func(a *Agent) { a.notifier = n }
}

// New loads the recipe named by cfg and prepares an agent.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc, err := loadRecipe(cfg)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		cfg:    cfg,
		recipe: rc,
		exec:   NewShell(cfg.Shell, cfg.Workdir),
		logger: logger.With("component", "agent", "recipe", rc.Name),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil {
		a.notifier = webhook.NewNotifier(webhook.Config{
			Attempts:       cfg.Webhook.Attempts,
			BaseDelay:      cfg.Webhook.BaseDelay,
			ConnectTimeout: cfg.Webhook.ConnectTimeout,
			Timeout:        cfg.Webhook.Timeout,
			SigningKey:     cfg.Webhook.SigningKey,
		}, logger, nil)
	}
	return a, nil
}

func loadRecipe(cfg *Config) (*recipe.Recipe, error) {
	if cfg.RecipeFile != "" {
		return recipe.Load(cfg.RecipeFile)
	}
	catalog, err := recipe.LoadCatalog("")
	if err != nil {
		return nil, err
	}
	rc, ok := catalog.Get(cfg.Recipe)
	if !ok {
		return nil, fmt.Errorf("unknown recipe %q", cfg.Recipe)
	}
	return rc, nil
}

// Recipe returns the loaded recipe.
func (a *Agent) Recipe() *recipe.Recipe { return a.recipe }

// Workflow turns the recipe into job steps. Each step runs its script
// through the executor, retried per the step's attempts with linear backoff.
func (a *Agent) Workflow() job.Workflow {
	steps := make([]job.Step, 0, len(a.recipe.Steps))
	for _, s := range a.recipe.Steps {
		steps = append(steps, job.Step{
			Name:     s.Name,
			Action:   a.stepAction(s),
			Tolerant: s.Tolerant,
			Timeout:  time.Duration(s.Timeout),
		})
	}
	return job.Workflow{
		Kind:          job.KindProvision,
		WorkingStatus: webhook.StatusProvisioning,
		Steps:         steps,
		Summary: func() string {
			return fmt.Sprintf("recipe %s applied (%d steps)", a.recipe.Name, len(steps))
		},
	}
}

func (a *Agent) stepAction(s recipe.Step) job.Action {
	policy := retry.Policy{
		Attempts: max(s.Attempts, 1),
		Delay:    backoff.Linear(time.Duration(s.Delay), 0),
		OnRetry: func(attempt int, err error) {
			a.logger.Warn("Step attempt failed, retrying", "step", s.Name, "attempt", attempt, "error", err)
		},
	}
	return func(ctx context.Context) (string, error) {
		var out string
		err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
			var err error
			out, err = a.exec.Run(ctx, s.Run)
			return err
		})
		if err != nil {
			return "", err
		}
		if out == "" {
			return s.Name + " done", nil
		}
		return out, nil
	}
}

// Run executes the recipe and returns the final job snapshot. The error is
// ErrRecipeFailed when the job ended Failed.
func (a *Agent) Run(ctx context.Context) (*job.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	id := a.cfg.JobID
	if id == "" {
		id = uuid.NewString()
	}
	st := store.NewMemory(0, a.logger)
	orch := job.NewOrchestrator(job.OrchestratorConfig{
		RunnerConfig: job.RunnerConfig{
			Store:       st,
			Notifier:    a.notifier,
			Logger:      a.logger,
			StepTimeout: a.cfg.Timeout,
		},
	})

	j := &job.Job{
		ID:        id,
		Kind:      job.KindProvision,
		Subject:   job.Subject{Name: a.cfg.VMName, Attributes: map[string]string{"recipe": a.recipe.Name}},
		HookURL:   a.cfg.WebhookURL,
		State:     job.StatePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.Create(ctx, j.Snapshot()); err != nil {
		return nil, err
	}

	a.logger.Info("Applying recipe", "jobId", id, "steps", len(a.recipe.Steps))
	orch.Run(ctx, j, a.Workflow())

	snap, err := st.Get(context.WithoutCancel(ctx), id)
	if err != nil {
		return nil, err
	}
	if snap.State == job.StateFailed {
		return snap, fmt.Errorf("%w: %s", ErrRecipeFailed, snap.Error)
	}
	return snap, nil
}

// CheckRecipe loads and validates the recipe at path.
func CheckRecipe(path string) error {
	_, err := recipe.Load(path)
	return err
}
