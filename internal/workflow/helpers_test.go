package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vmjobs/internal/cloud"
	"vmjobs/internal/job"
	"vmjobs/internal/recipe"
	"vmjobs/internal/store"
	"vmjobs/internal/webhook"
	"vmjobs/pkg/backoff"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []webhook.Event
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, ev webhook.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return true
}

func (n *recordingNotifier) sent() []webhook.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]webhook.Event(nil), n.events...)
}

func newBuilder(t *testing.T, provider cloud.Provider) *Builder {
	t.Helper()
	catalog, err := recipe.LoadCatalog("")
	require.NoError(t, err)
	return New(Config{
		Provider:       provider,
		Recipes:        catalog,
		AgentURL:       "https://downloads.example.com/provision-agent",
		RemoteAttempts: 3,
		RemoteDelay:    backoff.Constant(0),
	})
}

// runToEnd runs req synchronously the way the job service would in the
// background and returns the final snapshot and every event sent.
func runToEnd(t *testing.T, req job.LaunchRequest) (*job.Snapshot, []webhook.Event) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory(time.Hour, nil)
	notifier := &recordingNotifier{}
	o := job.NewOrchestrator(job.OrchestratorConfig{
		RunnerConfig: job.RunnerConfig{Store: st, Notifier: notifier},
	})

	j := &job.Job{
		ID:        "job-1",
		Kind:      req.Workflow.Kind,
		Subject:   req.Subject,
		HookURL:   req.HookURL,
		State:     job.StatePending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Create(ctx, j.Snapshot()))
	o.Run(ctx, j, req.Workflow)

	snap, err := st.Get(ctx, "job-1")
	require.NoError(t, err)
	return snap, notifier.sent()
}

func stepNames(s *job.Snapshot) []string {
	names := make([]string, len(s.Steps))
	for i, st := range s.Steps {
		names[i] = st.Name
	}
	return names
}

func stepByName(t *testing.T, s *job.Snapshot, name string) job.StepResult {
	t.Helper()
	for _, st := range s.Steps {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("step %q not recorded; have %v", name, stepNames(s))
	return job.StepResult{}
}
