package job

import (
	"context"

	"vmjobs/internal/webhook"
)

// Store persists job snapshots so they can be polled after launch.
type Store interface {
	// Create stores a new job. It fails with a conflict if the ID exists.
	Create(ctx context.Context, snap *Snapshot) error
	// Save replaces the stored snapshot for an existing job.
	Save(ctx context.Context, snap *Snapshot) error
	// Get returns apperrors.ErrNotFound for unknown or expired jobs.
	Get(ctx context.Context, id string) (*Snapshot, error)
	// List returns jobs newest first.
	List(ctx context.Context) ([]*Snapshot, error)
	Ping(ctx context.Context) error
}

// Notifier delivers progress events. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, callbackURL string, ev webhook.Event) bool
}

// MetricsRecorder is an optional sink for job metrics.
type MetricsRecorder interface {
	RecordJobLaunched(ctx context.Context, kind string)
	RecordJobStarted(ctx context.Context, kind string)
	RecordJobFinished(ctx context.Context, kind, state string, durationSeconds float64)
	RecordStep(ctx context.Context, kind, outcome string, durationSeconds float64)
}
