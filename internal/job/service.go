package job

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vmjobs/internal/apperrors"
)

// LaunchRequest is a validated request to start a workflow.
type LaunchRequest struct {
	Workflow Workflow
	Subject  Subject
	HookURL  string // optional progress callback
}

// Accepted is returned as soon as a job has been created.
type Accepted struct {
	JobID     string  `json:"job_id"`
	Kind      Kind    `json:"kind"`
	StatusURL string  `json:"status_url"`
	Subject   Subject `json:"subject"`
}

// Service creates jobs and runs them in the background.
//
// Launch returns before any step runs. The HTTP caller polls StatusURL or
// listens on its webhook for progress.
type Service struct {
	orchestrator *Orchestrator
	store        Store
	metrics      MetricsRecorder
	logger       *slog.Logger
	baseURL      string
	newID        func() string

	wg sync.WaitGroup
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Orchestrator  *Orchestrator
	Store         Store
	Metrics       MetricsRecorder
	Logger        *slog.Logger
	PublicBaseURL string // status_url prefix
}

// NewService creates a job service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		logger:       logger.With("component", "jobs"),
		baseURL:      strings.TrimRight(cfg.PublicBaseURL, "/"),
		newID:        uuid.NewString,
	}
}

// Launch stores a pending job and starts its orchestrator on a context that
// outlives the request.
func (s *Service) Launch(ctx context.Context, req LaunchRequest) (*Accepted, error) {
	if err := validateLaunch(req); err != nil {
		return nil, err
	}

	id := s.newID()
	j := &Job{
		ID:        id,
		Kind:      req.Workflow.Kind,
		Subject:   req.Subject,
		HookURL:   req.HookURL,
		StatusURL: s.StatusURL(id),
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, j.Snapshot()); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordJobLaunched(ctx, string(j.Kind))
	}
	s.logger.Info("Job launched", "jobId", id, "kind", j.Kind, "subject", j.Subject.Name)

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.orchestrator.Run(runCtx, j, req.Workflow)
	}()

	return &Accepted{
		JobID:     id,
		Kind:      j.Kind,
		StatusURL: j.StatusURL,
		Subject:   j.Subject,
	}, nil
}

// Get returns the latest snapshot of a job.
func (s *Service) Get(ctx context.Context, id string) (*Snapshot, error) {
	if id == "" {
		return nil, apperrors.Validation("jobId", "job ID is required")
	}
	return s.store.Get(ctx, id)
}

// List returns all retained jobs, newest first.
func (s *Service) List(ctx context.Context) ([]*Snapshot, error) {
	return s.store.List(ctx)
}

// StatusURL is the poll handle for a job ID.
func (s *Service) StatusURL(id string) string {
	return s.baseURL + "/v1/jobs/" + url.PathEscape(id)
}

// Wait blocks until every launched job has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateLaunch(req LaunchRequest) error {
	switch req.Workflow.Kind {
	case KindClone, KindDeleteBatch, KindProvision:
	default:
		return apperrors.Validation("kind", fmt.Sprintf("unknown job kind %q", req.Workflow.Kind))
	}
	if len(req.Workflow.Steps) == 0 && req.Workflow.Batch == nil {
		return apperrors.Validation("kind", "workflow has no steps")
	}
	if err := ValidateHookURL(req.HookURL); err != nil {
		return err
	}
	return nil
}

// ValidateHookURL accepts an empty URL or an absolute http(s) URL.
func ValidateHookURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return apperrors.Validation("hook_url", "invalid hook_url: malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return apperrors.Validation("hook_url", fmt.Sprintf("invalid hook_url: scheme must be http or https, got %q", parsed.Scheme))
	}
	if parsed.Host == "" {
		return apperrors.Validation("hook_url", "invalid hook_url: URL must have a host")
	}
	return nil
}
