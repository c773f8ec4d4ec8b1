package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Runner executes single steps and records their results.
type Runner struct {
	store    Store
	notifier Notifier
	metrics  MetricsRecorder
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

// RunnerConfig configures a Runner. Metrics and Logger are optional.
type RunnerConfig struct {
	Store       Store
	Notifier    Notifier
	Metrics     MetricsRecorder
	Logger      *slog.Logger
	StepTimeout time.Duration // default deadline for steps without their own
}

// NewRunner creates a step runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   logger,
		timeout:  cfg.StepTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes step against j, appends exactly one StepResult, publishes the
// new snapshot and sends exactly one notification.
func (r *Runner) Run(ctx context.Context, j *Job, step Step) StepResult {
	start := time.Now()
	outcome, msg := r.execute(ctx, step)
	return r.record(ctx, j, step.Name, outcome, msg, time.Since(start))
}

// execute runs the action and classifies its result. It touches no job state,
// so batch items may execute concurrently.
func (r *Runner) execute(ctx context.Context, step Step) (Outcome, string) {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg, err := step.Action(ctx)
	switch {
	case err == nil:
		if msg == "" {
			msg = step.Name + " completed"
		}
		return OutcomeSuccess, msg
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		msg = fmt.Sprintf("timed out after %s: %v", timeout, err)
	default:
		msg = err.Error()
	}
	if step.Tolerant || IsWarning(err) {
		return OutcomeWarning, msg
	}
	return OutcomeFailure, msg
}

func (r *Runner) record(ctx context.Context, j *Job, name string, outcome Outcome, msg string, took time.Duration) StepResult {
	res := StepResult{
		Name:      name,
		Outcome:   outcome,
		Message:   msg,
		Timestamp: r.now(),
	}
	j.Steps = append(j.Steps, res)
	r.publish(ctx, j)

	logger := r.logger.With("jobId", j.ID, "step", name, "outcome", outcome, "duration", took)
	if outcome == OutcomeSuccess {
		logger.Info("Step completed")
	} else {
		logger.Warn("Step did not succeed", "message", msg)
	}
	if r.metrics != nil {
		r.metrics.RecordStep(ctx, string(j.Kind), string(outcome), took.Seconds())
	}

	r.notifier.Notify(ctx, j.HookURL, stepEvent(j, res))
	return res
}

// publish saves a snapshot of j. A store failure is logged, not fatal:
// the job keeps running and the next publish retries implicitly.
func (r *Runner) publish(ctx context.Context, j *Job) {
	if err := r.store.Save(context.WithoutCancel(ctx), j.Snapshot()); err != nil {
		r.logger.Error("Failed to publish job snapshot", "jobId", j.ID, "error", err)
	}
}
