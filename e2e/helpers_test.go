//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"vmjobs/internal/api"
	"vmjobs/internal/cloud"
	"vmjobs/internal/cloud/docker"
	"vmjobs/internal/health"
	"vmjobs/internal/job"
	"vmjobs/internal/observability"
	"vmjobs/internal/recipe"
	"vmjobs/internal/store"
	"vmjobs/internal/testutil"
	"vmjobs/internal/webhook"
	"vmjobs/internal/workflow"
	"vmjobs/pkg/backoff"
)

// testServer is a fully wired vmjobs API on an httptest server.
type testServer struct {
	URL      string
	Jobs     *job.Service
	Notifier *webhook.Notifier
	Metrics  *observability.Metrics
}

func quietLogger() *slog.Logger {
	if os.Getenv("E2E_VERBOSE") != "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dockerProvider returns a provider backed by the local Docker daemon, or
// skips the test when none is reachable.
func dockerProvider(tb testing.TB) cloud.Provider {
	tb.Helper()
	p, err := docker.New(docker.Config{
		BaseImage:    "ubuntu:24.04",
		PollInterval: 200 * time.Millisecond,
		Logger:       quietLogger(),
	})
	if err != nil {
		tb.Skipf("Docker client unavailable: %v", err)
	}
	if err := p.Ready(context.Background()); err != nil {
		tb.Skipf("Docker not available: %v", err)
	}
	tb.Cleanup(func() { _ = p.Close() })
	return p
}

func newTestServer(tb testing.TB, provider cloud.Provider) *testServer {
	tb.Helper()
	logger := quietLogger()

	metrics, _, err := observability.NewMetrics(context.Background())
	if err != nil {
		tb.Fatalf("Failed to create metrics: %v", err)
	}
	st := store.NewMemory(time.Hour, logger)
	notifier := webhook.NewNotifier(webhook.Config{BaseDelay: 10 * time.Millisecond}, logger, metrics)
	orch := job.NewOrchestrator(job.OrchestratorConfig{
		RunnerConfig: job.RunnerConfig{
			Store:    st,
			Notifier: notifier,
			Metrics:  metrics,
			Logger:   logger,
		},
		BatchConcurrency: 4,
	})

	catalog, err := recipe.LoadCatalog("")
	if err != nil {
		tb.Fatalf("Failed to load recipes: %v", err)
	}
	builder := workflow.New(workflow.Config{
		Provider:    provider,
		Recipes:     catalog,
		Logger:      logger,
		RemoteDelay: backoff.Constant(100 * time.Millisecond),
	})

	server := httptest.NewServer(nil)
	svc := job.NewService(job.ServiceConfig{
		Orchestrator:  orch,
		Store:         st,
		Metrics:       metrics,
		Logger:        logger,
		PublicBaseURL: server.URL,
	})
	server.Config.Handler = api.NewRouter(api.RouterConfig{
		Jobs:      svc,
		Workflows: builder,
		Metrics:   metrics,
		HealthChecker: health.NewChecker(
			health.Dependency{Name: "provider", Check: provider},
			health.Dependency{Name: "store", Check: health.CheckFunc(st.Ping)},
		),
		Logger: logger,
	})

	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.Wait(ctx); err != nil {
			tb.Logf("Jobs still running at cleanup: %v", err)
		}
		server.Close()
	})

	return &testServer{URL: server.URL, Jobs: svc, Notifier: notifier, Metrics: metrics}
}

func postJSON(tb testing.TB, client *http.Client, url string, body any) (int, map[string]any) {
	tb.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		tb.Fatalf("Failed to encode request: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		tb.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func getJSON(url string) (int, map[string]any, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out, nil
}

// waitTerminal polls a status URL until the job is completed or failed.
func waitTerminal(tb testing.TB, statusURL string, timeout time.Duration) map[string]any {
	tb.Helper()
	return testutil.MustPoll(tb, func() (map[string]any, bool) {
		code, body, err := getJSON(statusURL)
		if err != nil || code != http.StatusOK {
			return nil, false
		}
		state, _ := body["state"].(string)
		return body, state == string(job.StateCompleted) || state == string(job.StateFailed)
	}, testutil.WithTimeout(timeout), testutil.WithInterval(250*time.Millisecond))
}

func stepMessages(status map[string]any) map[string]string {
	out := map[string]string{}
	steps, _ := status["steps"].([]any)
	for _, raw := range steps {
		s, _ := raw.(map[string]any)
		name, _ := s["name"].(string)
		msg, _ := s["message"].(string)
		out[name] = msg
	}
	return out
}
