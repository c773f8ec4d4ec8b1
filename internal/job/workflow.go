package job

import (
	"context"
	"errors"
	"time"
)

// Action performs the remote work behind a step and returns a human-readable
// message on success. Retrying the remote call, if wanted, is the action's job.
type Action func(ctx context.Context) (string, error)

// Step is one named unit of work.
type Step struct {
	Name     string
	Action   Action
	Tolerant bool          // a failure is recorded as a warning and does not abort the job
	Timeout  time.Duration // zero means the runner default
}

// Batch is a homogeneous stage whose items are independent: an item failure
// becomes a warning and the job carries on.
type Batch struct {
	Prefix string // step name prefix, e.g. "snapshot_deleted"
	Verb   string // summary verb, e.g. "deleted"
	Noun   string // summary noun, e.g. "snapshots"

	// Items is called once the sequential steps have finished.
	Items  func() []string
	Action func(ctx context.Context, item string) (string, error)
}

// Workflow is everything an orchestrator needs to drive one job.
type Workflow struct {
	Kind Kind

	// WorkingStatus is the webhook status announced when the job starts.
	WorkingStatus string

	Steps []Step
	Batch *Batch

	// Cleanup runs, in reverse order and tolerantly, after a fatal failure.
	Cleanup []Step

	// Outputs is called on completion and merged into the job outputs.
	Outputs func() map[string]any

	// Summary overrides the completion message of non-batch workflows.
	Summary func() string
}

type warning struct{ err error }

func (w *warning) Error() string { return w.err.Error() }
func (w *warning) Unwrap() error { return w.err }

// Warn marks err as non-fatal: the step is recorded as a warning.
func Warn(err error) error {
	if err == nil {
		return nil
	}
	return &warning{err: err}
}

// IsWarning reports whether err was produced by Warn.
func IsWarning(err error) bool {
	var w *warning
	return errors.As(err, &w)
}
