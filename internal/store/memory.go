// Package store keeps job snapshots available for status polling.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"vmjobs/internal/apperrors"
	"vmjobs/internal/job"
)

// Memory keeps snapshots in process memory.
//
// Each job has its own atomically swapped pointer, so a poll never waits on
// the orchestrator that is publishing a newer snapshot of the same job.
type Memory struct {
	mu        sync.RWMutex
	jobs      map[string]*atomic.Pointer[job.Snapshot]
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewMemory creates an empty store. Terminal jobs older than retention are
// removed by Sweep; zero disables expiry.
func NewMemory(retention time.Duration, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		jobs:      make(map[string]*atomic.Pointer[job.Snapshot]),
		retention: retention,
		now:       time.Now,
		logger:    logger.With("component", "store", "store", "memory"),
	}
}

// Create reserves the job ID and stores its first snapshot.
func (m *Memory) Create(_ context.Context, snap *job.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[snap.ID]; exists {
		return apperrors.Conflict("job", "job "+snap.ID+" already exists")
	}
	p := new(atomic.Pointer[job.Snapshot])
	p.Store(snap)
	m.jobs[snap.ID] = p
	return nil
}

// Save publishes a newer snapshot of an existing job.
func (m *Memory) Save(_ context.Context, snap *job.Snapshot) error {
	m.mu.RLock()
	p, ok := m.jobs[snap.ID]
	m.mu.RUnlock()
	if !ok {
		return apperrors.NotFound("job", snap.ID)
	}
	p.Store(snap)
	return nil
}

// Get returns the latest published snapshot.
func (m *Memory) Get(_ context.Context, id string) (*job.Snapshot, error) {
	m.mu.RLock()
	p, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	return p.Load(), nil
}

// List returns every retained job, newest first.
func (m *Memory) List(_ context.Context) ([]*job.Snapshot, error) {
	m.mu.RLock()
	out := make([]*job.Snapshot, 0, len(m.jobs))
	for _, p := range m.jobs {
		out = append(out, p.Load())
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Sweep drops terminal jobs that finished more than the retention ago and
// returns how many were removed.
func (m *Memory) Sweep() int {
	if m.retention <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, p := range m.jobs {
		snap := p.Load()
		if snap.State.Terminal() && snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// RunMaintenance sweeps every interval until ctx is done.
func (m *Memory) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("Expired jobs removed", "count", n)
			}
		}
	}
}

func sortNewestFirst(snaps []*job.Snapshot) {
	sort.SliceStable(snaps, func(i, k int) bool {
		if snaps[i].CreatedAt.Equal(snaps[k].CreatedAt) {
			return snaps[i].ID < snaps[k].ID
		}
		return snaps[i].CreatedAt.After(snaps[k].CreatedAt)
	})
}

var _ job.Store = (*Memory)(nil)
