package job

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmjobs/internal/webhook"
)

func newTestOrchestrator(concurrency int) (*Orchestrator, *fakeStore, *fakeNotifier) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	o := NewOrchestrator(OrchestratorConfig{
		RunnerConfig: RunnerConfig{
			Store:    store,
			Notifier: notifier,
		},
		BatchConcurrency: concurrency,
	})
	return o, store, notifier
}

func newPendingJob(kind Kind) *Job {
	return &Job{
		ID:        "job-1",
		Kind:      kind,
		Subject:   Subject{Name: "vm-1"},
		HookURL:   "http://hooks.example.com/cb",
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
}

func ok(msg string) Action {
	return func(context.Context) (string, error) { return msg, nil }
}

func fails(msg string) Action {
	return func(context.Context) (string, error) { return "", errors.New(msg) }
}

func TestRun_AllStepsSucceed(t *testing.T) {
	t.Parallel()
	o, store, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindClone)

	o.Run(context.Background(), j, Workflow{
		Kind:          KindClone,
		WorkingStatus: webhook.StatusProvisioning,
		Steps: []Step{
			{Name: "get_vm", Action: ok("found vm-1")},
			{Name: "create_snapshot", Action: ok("")},
		},
		Outputs: func() map[string]any { return map[string]any{"image_version": "1.0.1"} },
	})

	assert.Equal(t, StateCompleted, j.State)
	require.Len(t, j.Steps, 2)
	assert.Equal(t, "found vm-1", j.Steps[0].Message)
	assert.Equal(t, "create_snapshot completed", j.Steps[1].Message)
	last, _ := j.Snapshot().LastStep()
	assert.Equal(t, OutcomeSuccess, last.Outcome)
	assert.Equal(t, "1.0.1", j.Outputs["image_version"])

	assert.Equal(t, []string{"init", "get_vm", "create_snapshot", "completed"}, notifier.steps())
	events := notifier.sent()
	assert.Equal(t, webhook.StatusProvisioning, events[0].Status)
	assert.Equal(t, webhook.StatusCompleted, events[3].Status)
	assert.Equal(t, "job-1", events[1].JobID)

	stored, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, stored.State)
	assert.NotNil(t, stored.FinishedAt)
}

func TestRun_FailFast(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindClone)

	var thirdRan atomic.Bool
	o.Run(context.Background(), j, Workflow{
		Kind: KindClone,
		Steps: []Step{
			{Name: "get_vm", Action: ok("")},
			{Name: "create_snapshot", Action: fails("quota exceeded")},
			{Name: "ensure_gallery", Action: func(context.Context) (string, error) {
				thirdRan.Store(true)
				return "", nil
			}},
		},
	})

	assert.Equal(t, StateFailed, j.State)
	assert.False(t, thirdRan.Load(), "steps after a failure must not run")
	require.Len(t, j.Steps, 2)
	assert.Equal(t, OutcomeFailure, j.Steps[1].Outcome)
	assert.Equal(t, "create_snapshot: quota exceeded", j.Error)

	events := notifier.sent()
	require.Len(t, events, 4)
	final := events[3]
	assert.Equal(t, webhook.StatusFailed, final.Status)
	assert.Equal(t, "failed", final.Details.Step)
	assert.Equal(t, "create_snapshot: quota exceeded", final.Details.Message)
}

func TestRun_TolerantAndWarnedSteps(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindProvision)

	o.Run(context.Background(), j, Workflow{
		Kind: KindProvision,
		Steps: []Step{
			{Name: "revoke_access", Action: fails("not exported"), Tolerant: true},
			{Name: "configure_dns", Action: func(context.Context) (string, error) {
				return "", Warn(errors.New("zone missing, skipped"))
			}},
			{Name: "start_setup", Action: ok("")},
		},
	})

	assert.Equal(t, StateCompleted, j.State)
	require.Len(t, j.Steps, 3)
	assert.Equal(t, OutcomeWarning, j.Steps[0].Outcome)
	assert.Equal(t, OutcomeWarning, j.Steps[1].Outcome)
	assert.Equal(t, "zone missing, skipped", j.Steps[1].Message)
	assert.Equal(t, webhook.StatusWarning, notifier.sent()[1].Status)
}

func TestRun_BatchItemFailureIsWarning(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindDeleteBatch)
	j.Subject = Subject{Attributes: map[string]string{"resource_group": "rg-1"}}

	var listed []string
	o.Run(context.Background(), j, Workflow{
		Kind:          KindDeleteBatch,
		WorkingStatus: webhook.StatusDeleting,
		Steps: []Step{{Name: "list_snapshots", Action: func(context.Context) (string, error) {
			listed = []string{"snap-1", "snap-2", "snap-3"}
			return "found 3 snapshots", nil
		}}},
		Batch: &Batch{
			Prefix: "snapshot_deleted",
			Verb:   "deleted",
			Noun:   "snapshots",
			Items:  func() []string { return listed },
			Action: func(_ context.Context, item string) (string, error) {
				if item == "snap-2" {
					return "", errors.New("snapshot is locked")
				}
				return "deleted " + item, nil
			},
		},
	})

	assert.Equal(t, StateCompleted, j.State)
	require.Len(t, j.Steps, 4)
	assert.Equal(t, OutcomeSuccess, j.Steps[1].Outcome)
	assert.Equal(t, OutcomeWarning, j.Steps[2].Outcome)
	assert.Equal(t, "snapshot_deleted:snap-2", j.Steps[2].Name)
	assert.Equal(t, OutcomeSuccess, j.Steps[3].Outcome)

	events := notifier.sent()
	final := events[len(events)-1]
	assert.Equal(t, webhook.StatusCompleted, final.Status)
	assert.Contains(t, final.Details.Message, "2 of 3")
	assert.Equal(t, "deleted 2 of 3 snapshots; failed: snap-2", final.Details.Message)
	assert.Nil(t, events[0].VMName)

	assert.Equal(t, 2, j.Outputs["deleted_count"])
	assert.Equal(t, []string{"snap-1", "snap-3"}, j.Outputs["deleted"])
	assert.Equal(t, []string{"snap-2"}, j.Outputs["failed"])
	assert.Equal(t, 3, j.Outputs["total_count"])
}

func TestRun_ParallelBatchKeepsNotificationOrder(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(4)
	j := newPendingJob(KindDeleteBatch)

	items := make([]string, 20)
	for i := range items {
		items[i] = fmt.Sprintf("snap-%02d", i)
	}
	var inFlight, peak atomic.Int32
	o.Run(context.Background(), j, Workflow{
		Kind: KindDeleteBatch,
		Batch: &Batch{
			Prefix: "snapshot_deleted", Verb: "deleted", Noun: "snapshots",
			Items: func() []string { return items },
			Action: func(_ context.Context, item string) (string, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return "", nil
			},
		},
	})

	require.Len(t, j.Steps, 20)
	assert.LessOrEqual(t, peak.Load(), int32(4))

	var recorded []string
	for _, s := range j.Steps {
		recorded = append(recorded, s.Name)
	}
	sent := notifier.steps()
	assert.Equal(t, recorded, sent[1:len(sent)-1], "notifications must follow append order")
	assert.Equal(t, "deleted 20 of 20 snapshots", notifier.sent()[len(sent)-1].Details.Message)
}

func TestRun_PanicBecomesUnexpectedError(t *testing.T) {
	t.Parallel()
	o, store, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindClone)

	require.NotPanics(t, func() {
		o.Run(context.Background(), j, Workflow{
			Kind: KindClone,
			Steps: []Step{
				{Name: "get_vm", Action: ok("")},
				{Name: "create_snapshot", Action: func(context.Context) (string, error) {
					var m map[string]int
					m["boom"]++
					return "", nil
				}},
			},
		})
	})

	assert.Equal(t, StateFailed, j.State)
	last, _ := j.Snapshot().LastStep()
	assert.Equal(t, StepUnexpectedError, last.Name)
	assert.Equal(t, OutcomeFailure, last.Outcome)

	steps := notifier.steps()
	assert.Equal(t, []string{"init", "get_vm", StepUnexpectedError}, steps, "the panic is notified exactly once")

	stored, err := store.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, stored.State)
}

func TestRun_PanicInBatchItem(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(2)
	j := newPendingJob(KindDeleteBatch)

	require.NotPanics(t, func() {
		o.Run(context.Background(), j, Workflow{
			Kind: KindDeleteBatch,
			Batch: &Batch{
				Prefix: "snapshot_deleted", Verb: "deleted", Noun: "snapshots",
				Items: func() []string { return []string{"a", "b"} },
				Action: func(_ context.Context, item string) (string, error) {
					if item == "b" {
						panic("driver bug")
					}
					return "", nil
				},
			},
		})
	})

	assert.Equal(t, StateFailed, j.State)
	last, _ := j.Snapshot().LastStep()
	assert.Equal(t, StepUnexpectedError, last.Name)
	assert.Equal(t, "driver bug", last.Message)
	steps := notifier.steps()
	assert.Equal(t, StepUnexpectedError, steps[len(steps)-1])
}

func TestRun_CleanupAfterFailure(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindProvision)

	var order []string
	track := func(name string, err error) Action {
		return func(context.Context) (string, error) {
			order = append(order, name)
			return "", err
		}
	}
	o.Run(context.Background(), j, Workflow{
		Kind: KindProvision,
		Steps: []Step{
			{Name: "create_network", Action: track("create_network", nil)},
			{Name: "create_vm", Action: track("create_vm", errors.New("capacity"))},
		},
		Cleanup: []Step{
			{Name: "cleanup_network", Action: track("cleanup_network", nil)},
			{Name: "cleanup_vm", Action: track("cleanup_vm", errors.New("vm not found"))},
		},
	})

	assert.Equal(t, []string{"create_network", "create_vm", "cleanup_vm", "cleanup_network"}, order)
	assert.Equal(t, StateFailed, j.State)
	require.Len(t, j.Steps, 4)
	assert.Equal(t, OutcomeWarning, j.Steps[2].Outcome, "cleanup failures are tolerated")
	assert.Equal(t, "create_vm: capacity", j.Error)

	steps := notifier.steps()
	assert.Equal(t, "failed", steps[len(steps)-1])
}

func TestRun_NotificationFailureDoesNotAffectState(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(1)
	notifier.result = false
	j := newPendingJob(KindClone)

	o.Run(context.Background(), j, Workflow{
		Kind:  KindClone,
		Steps: []Step{{Name: "get_vm", Action: ok("")}},
	})

	assert.Equal(t, StateCompleted, j.State)
	assert.Len(t, notifier.sent(), 3)
}

func TestRun_StepTimeout(t *testing.T) {
	t.Parallel()
	o, _, _ := newTestOrchestrator(1)
	j := newPendingJob(KindProvision)

	o.Run(context.Background(), j, Workflow{
		Kind: KindProvision,
		Steps: []Step{{
			Name:    "wait_for_vm",
			Timeout: 20 * time.Millisecond,
			Action: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
		}},
	})

	assert.Equal(t, StateFailed, j.State)
	assert.Contains(t, j.Steps[0].Message, "timed out after 20ms")
}

func TestRun_TerminalJobIsNotRerun(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindClone)
	j.State = StateCompleted

	o.Run(context.Background(), j, Workflow{
		Kind:  KindClone,
		Steps: []Step{{Name: "get_vm", Action: ok("")}},
	})

	assert.Equal(t, StateCompleted, j.State)
	assert.Empty(t, j.Steps)
	assert.Empty(t, notifier.sent())
}

func TestRun_EmptyHookURLStillRecords(t *testing.T) {
	t.Parallel()
	o, _, notifier := newTestOrchestrator(1)
	j := newPendingJob(KindClone)
	j.HookURL = ""

	o.Run(context.Background(), j, Workflow{
		Kind:  KindClone,
		Steps: []Step{{Name: "get_vm", Action: ok("")}},
	})

	assert.Equal(t, StateCompleted, j.State)
	for _, e := range notifier.events {
		assert.Empty(t, e.url)
	}
}

func TestJobAdvance(t *testing.T) {
	t.Parallel()
	now := time.Now()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StatePending, StateRunning, true},
		{StateRunning, StateCompleted, true},
		{StateRunning, StateFailed, true},
		{StatePending, StateFailed, true},
		{StateRunning, StatePending, false},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateRunning, false},
		{StatePending, StateCompleted, true},
	}
	for _, tt := range tests {
		j := &Job{State: tt.from}
		got := j.advance(tt.to, now)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.from, tt.to)
		if tt.want {
			assert.Equal(t, tt.to, j.State)
		} else {
			assert.Equal(t, tt.from, j.State)
		}
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	t.Parallel()
	j := newPendingJob(KindClone)
	j.Steps = []StepResult{{Name: "a"}}
	j.Subject.Attributes = map[string]string{"k": "v"}

	snap := j.Snapshot()
	j.Steps = append(j.Steps, StepResult{Name: "b"})
	j.Steps[0].Name = "mutated"
	j.Subject.Attributes["k"] = "changed"

	require.Len(t, snap.Steps, 1)
	assert.Equal(t, "a", snap.Steps[0].Name)
	assert.Equal(t, "v", snap.Subject.Attributes["k"])
}

func TestRun_StepsSeeJobID(t *testing.T) {
	t.Parallel()
	o, _, _ := newTestOrchestrator(1)
	j := newPendingJob(KindProvision)

	var seen string
	o.Run(context.Background(), j, Workflow{
		Kind: KindProvision,
		Steps: []Step{{Name: "create_vm", Action: func(ctx context.Context) (string, error) {
			seen = IDFromContext(ctx)
			return "", nil
		}}},
	})

	assert.Equal(t, "job-1", seen)
	assert.Empty(t, IDFromContext(context.Background()))
}
