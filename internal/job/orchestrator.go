// Package job runs asynchronous cloud-resource workflows as ordered steps and
// tracks their state for polling.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vmjobs/internal/webhook"
)

// StepUnexpectedError names the step recorded when a run panics.
const StepUnexpectedError = "unexpected_error"

// Orchestrator drives one job at a time from Pending to a terminal state.
// A single Orchestrator may run many jobs concurrently; each Run call owns
// its job exclusively.
type Orchestrator struct {
	runner           *Runner
	store            Store
	notifier         Notifier
	metrics          MetricsRecorder
	logger           *slog.Logger
	batchConcurrency int
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	RunnerConfig
	BatchConcurrency int // batch items in flight (default: 1, sequential)
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	runner := NewRunner(cfg.RunnerConfig)
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	return &Orchestrator{
		runner:           runner,
		store:            cfg.Store,
		notifier:         cfg.Notifier,
		metrics:          cfg.Metrics,
		logger:           runner.logger.With("component", "orchestrator"),
		batchConcurrency: cfg.BatchConcurrency,
	}
}

// Run executes wf against j until j is Completed or Failed. It never panics.
func (o *Orchestrator) Run(ctx context.Context, j *Job, wf Workflow) {
	ctx = ContextWithID(ctx, j.ID)
	logger := o.logger.With("jobId", j.ID, "kind", j.Kind)
	defer func() {
		if p := recover(); p != nil {
			o.crash(ctx, j, p, logger)
		}
	}()

	if !j.advance(StateRunning, o.runner.now()) {
		logger.Warn("Job not pending, refusing to run", "state", j.State)
		return
	}
	o.runner.publish(ctx, j)
	if o.metrics != nil {
		o.metrics.RecordJobStarted(ctx, string(j.Kind))
	}
	logger.Info("Job started", "subject", j.Subject.Name, "steps", len(wf.Steps))
	o.notify(ctx, j, wf.WorkingStatus, "init", fmt.Sprintf("starting %s of %s", j.Kind, subjectLabel(j)))

	for _, step := range wf.Steps {
		res := o.runner.Run(ctx, j, step)
		if res.Outcome == OutcomeFailure {
			o.fail(ctx, j, wf, res, logger)
			return
		}
	}

	summary := ""
	if wf.Batch != nil {
		summary = o.runBatch(ctx, j, wf.Batch)
	}
	if wf.Outputs != nil {
		for k, v := range wf.Outputs() {
			j.setOutput(k, v)
		}
	}
	if summary == "" && wf.Summary != nil {
		summary = wf.Summary()
	}
	if summary == "" {
		summary = fmt.Sprintf("%s of %s completed", j.Kind, subjectLabel(j))
	}
	o.finish(ctx, j, StateCompleted, summary, logger)
	o.notify(ctx, j, webhook.StatusCompleted, "completed", summary)
}

// runBatch runs every item as its own tolerant step and returns the summary.
func (o *Orchestrator) runBatch(ctx context.Context, j *Job, b *Batch) string {
	var items []string
	if b.Items != nil {
		items = b.Items()
	}

	var (
		mu       sync.Mutex
		done     []string
		failed   []string
		panicked any
	)
	var g errgroup.Group
	g.SetLimit(o.batchConcurrency)
	for _, item := range items {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					mu.Lock()
					if panicked == nil {
						panicked = p
					}
					mu.Unlock()
					err = fmt.Errorf("batch item %s panicked", item)
				}
			}()

			step := Step{
				Name: b.Prefix + ":" + item,
				Action: func(ctx context.Context) (string, error) {
					return b.Action(ctx, item)
				},
				Tolerant: true,
			}
			start := time.Now()
			outcome, msg := o.runner.execute(ctx, step)

			// Recording is serialized so per-job notification order equals append order.
			mu.Lock()
			defer mu.Unlock()
			if outcome == OutcomeSuccess {
				done = append(done, item)
			} else {
				failed = append(failed, item)
			}
			o.runner.record(ctx, j, step.Name, outcome, msg, time.Since(start))
			return nil
		})
	}
	// Only a panic returns an error.
	if err := g.Wait(); err != nil && panicked != nil {
		panic(panicked)
	}

	key := strings.ToLower(b.Verb)
	j.setOutput(key, nonNil(done))
	j.setOutput(key+"_count", len(done))
	j.setOutput("failed", nonNil(failed))
	j.setOutput("total_count", len(items))

	summary := fmt.Sprintf("%s %d of %d %s", b.Verb, len(done), len(items), b.Noun)
	if len(failed) > 0 {
		summary += "; failed: " + strings.Join(failed, ", ")
	}
	return summary
}

// fail runs compensation, then moves j to Failed and announces it.
func (o *Orchestrator) fail(ctx context.Context, j *Job, wf Workflow, cause StepResult, logger *slog.Logger) {
	for i := len(wf.Cleanup) - 1; i >= 0; i-- {
		step := wf.Cleanup[i]
		step.Tolerant = true
		o.runner.Run(ctx, j, step)
	}

	msg := cause.Name + ": " + cause.Message
	j.Error = msg
	o.finish(ctx, j, StateFailed, msg, logger)
	o.notify(ctx, j, webhook.StatusFailed, "failed", msg)
}

// crash records a recovered panic as the terminal step. Exactly one
// notification is sent for it.
func (o *Orchestrator) crash(ctx context.Context, j *Job, p any, logger *slog.Logger) {
	logger.Error("Job panicked", "panic", p, "stack", string(debug.Stack()))
	if j.State.Terminal() {
		return
	}

	msg := fmt.Sprint(p)
	res := StepResult{
		Name:      StepUnexpectedError,
		Outcome:   OutcomeFailure,
		Message:   msg,
		Timestamp: o.runner.now(),
	}
	j.Steps = append(j.Steps, res)
	j.Error = StepUnexpectedError + ": " + msg
	o.finish(ctx, j, StateFailed, j.Error, logger)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Notification of panicked job failed", "panic", p)
		}
	}()
	o.notifier.Notify(ctx, j.HookURL, stepEvent(j, res))
}

func (o *Orchestrator) finish(ctx context.Context, j *Job, to State, msg string, logger *slog.Logger) {
	wasRunning := j.State == StateRunning
	j.advance(to, o.runner.now())
	o.runner.publish(ctx, j)

	snap := j.Snapshot()
	if o.metrics != nil {
		if wasRunning {
			o.metrics.RecordJobFinished(ctx, string(j.Kind), string(to), snap.Duration().Seconds())
		}
	}
	if to == StateCompleted {
		logger.Info("Job completed", "summary", msg, "duration", snap.Duration())
	} else {
		logger.Warn("Job failed", "error", msg, "duration", snap.Duration())
	}
}

func (o *Orchestrator) notify(ctx context.Context, j *Job, status, step, message string) {
	o.notifier.Notify(ctx, j.HookURL, eventFor(j, status, step, message))
}

func subjectLabel(j *Job) string {
	if j.Subject.Name != "" {
		return j.Subject.Name
	}
	if rg := j.Subject.Attributes["resource_group"]; rg != "" {
		return "resource group " + rg
	}
	return j.ID
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
