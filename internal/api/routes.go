package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"vmjobs/internal/health"
	"vmjobs/internal/observability"
	"vmjobs/internal/workflow"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs          Launcher
	Workflows     *workflow.Builder
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	Logger        *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handler := NewHandler(cfg.Jobs, cfg.Workflows, cfg.HealthChecker, logger)

	r := mux.NewRouter()

	// Health check endpoints (liveness/readiness probes) - no auth required
	r.HandleFunc("/livez", handler.Livez).Methods(http.MethodGet)
	r.HandleFunc("/readyz", handler.Readyz).Methods(http.MethodGet)

	// Workflow and job endpoints - auth required
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(AuthMiddleware(cfg.APIKey))
	v1.HandleFunc("/vms/clone", handler.CloneVM).Methods(http.MethodPost)
	v1.HandleFunc("/vms/provision", handler.ProvisionVM).Methods(http.MethodPost)
	v1.HandleFunc("/snapshots/delete", handler.DeleteSnapshots).Methods(http.MethodPost)
	v1.HandleFunc("/recipes", handler.ListRecipes).Methods(http.MethodGet)
	v1.HandleFunc("/jobs", handler.ListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{jobId}", handler.GetJob).Methods(http.MethodGet)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = r
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware(logger)(h)
	h = RecoveryMiddleware(logger)(h)

	return h
}
