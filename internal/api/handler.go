// Package api provides the HTTP API handlers and routing for the vmjobs service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"vmjobs/internal/apperrors"
	"vmjobs/internal/health"
	"vmjobs/internal/job"
	"vmjobs/internal/workflow"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Launcher starts jobs. *job.Service implements it.
type Launcher interface {
	Launch(ctx context.Context, req job.LaunchRequest) (*job.Accepted, error)
	Get(ctx context.Context, id string) (*job.Snapshot, error)
	List(ctx context.Context) ([]*job.Snapshot, error)
}

// buildFunc turns request parameters into a launchable workflow.
type buildFunc func(workflow.Params) (job.LaunchRequest, error)

// Handler contains HTTP handlers for the jobs API
type Handler struct {
	jobs    Launcher
	builder *workflow.Builder
	health  *health.Checker
	logger  *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(jobs Launcher, builder *workflow.Builder, healthChecker *health.Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		jobs:    jobs,
		builder: builder,
		health:  healthChecker,
		logger:  logger.With("component", "api"),
	}
}

// CloneVM handles POST /v1/vms/clone
func (h *Handler) CloneVM(w http.ResponseWriter, r *http.Request) {
	h.launch(w, r, h.builder.Clone, "VM clone process started")
}

// DeleteSnapshots handles POST /v1/snapshots/delete
func (h *Handler) DeleteSnapshots(w http.ResponseWriter, r *http.Request) {
	h.launch(w, r, h.builder.DeleteBatch, "Snapshot deletion started")
}

// ProvisionVM handles POST /v1/vms/provision
func (h *Handler) ProvisionVM(w http.ResponseWriter, r *http.Request) {
	h.launch(w, r, h.builder.Provision, "VM provisioning started")
}

// launch validates the request synchronously and answers 202 once the job is
// stored. Nothing is created when validation fails.
func (h *Handler) launch(w http.ResponseWriter, r *http.Request, build buildFunc, message string) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	params, err := workflow.NewParams(r.URL.Query(), body)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	req, err := build(params)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	accepted, err := h.jobs.Launch(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, launchResponse(message, accepted))
}

// launchResponse flattens the subject into the body next to the poll handle,
// so callers find vm_name and resource_group at the top level.
func launchResponse(message string, a *job.Accepted) map[string]any {
	resp := make(map[string]any, len(a.Subject.Attributes)+5)
	for k, v := range a.Subject.Attributes {
		resp[k] = v
	}
	if a.Subject.Name != "" {
		resp["vm_name"] = a.Subject.Name
	}
	resp["message"] = message
	resp["job_id"] = a.JobID
	resp["kind"] = a.Kind
	resp["status_url"] = a.StatusURL
	return resp
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	snap, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// ListRecipes handles GET /v1/recipes
func (h *Handler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	catalog := h.builder.Recipes()
	type recipeInfo struct {
		Name        string   `json:"name"`
		Description string   `json:"description,omitempty"`
		Ports       []int    `json:"ports"`
		Requires    []string `json:"requires,omitempty"`
	}
	out := make([]recipeInfo, 0)
	for _, name := range catalog.Names() {
		rc, _ := catalog.Get(name)
		out = append(out, recipeInfo{Name: rc.Name, Description: rc.Description, Ports: rc.Ports, Requires: rc.Requires})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"recipes": out})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the cloud provider or job store is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
// Validation messages are returned verbatim; internal causes are not leaked.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "Internal error", "error", err, "path", r.URL.Path)
		h.writeError(w, status, http.StatusText(status))
		return
	}
	h.logger.WarnContext(r.Context(), "Client error", "error", err, "path", r.URL.Path, "status", status)
	h.writeError(w, status, err.Error())
}
