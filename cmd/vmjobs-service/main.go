// vmjobs-service is the HTTP API server that launches and tracks cloud VM jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"vmjobs/internal/api"
	"vmjobs/internal/cloud"
	"vmjobs/internal/cloud/docker"
	"vmjobs/internal/cloud/ec2"
	"vmjobs/internal/cloud/memory"
	"vmjobs/internal/config"
	"vmjobs/internal/health"
	"vmjobs/internal/job"
	"vmjobs/internal/observability"
	"vmjobs/internal/recipe"
	"vmjobs/internal/store"
	"vmjobs/internal/webhook"
	"vmjobs/internal/workflow"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load configuration
	svcCfg, err := config.LoadServiceConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: svcCfg.SlogLevel()}))
	slog.SetDefault(logger)

	apiKey, err := config.ReadSecretFile(svcCfg.APIKeyFile)
	if err != nil {
		return err
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	provider, err := newProvider(ctx, svcCfg, logger)
	if err != nil {
		return err
	}
	defer provider.Close()
	logger.Info("Cloud provider ready", "provider", svcCfg.Provider)

	jobStore, closeStore, err := newStore(ctx, svcCfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("Job store ready", "store", svcCfg.Store)

	catalog, err := recipe.LoadCatalog(svcCfg.RecipesDir)
	if err != nil {
		return err
	}
	logger.Info("Recipes loaded", "recipes", catalog.Names())

	notifier := webhook.NewNotifier(webhook.Config{
		Attempts:        svcCfg.Webhook.Attempts,
		BaseDelay:       svcCfg.Webhook.BaseDelay,
		ConnectTimeout:  svcCfg.Webhook.ConnectTimeout,
		Timeout:         svcCfg.Webhook.Timeout,
		SigningKey:      svcCfg.Webhook.SigningKey,
		BreakerFailures: svcCfg.Webhook.BreakerFailures,
		BreakerCooldown: svcCfg.Webhook.BreakerCooldown,
	}, logger, metrics)

	orchestrator := job.NewOrchestrator(job.OrchestratorConfig{
		RunnerConfig: job.RunnerConfig{
			Store:       jobStore,
			Notifier:    notifier,
			Metrics:     metrics,
			Logger:      logger,
			StepTimeout: svcCfg.StepTimeout,
		},
		BatchConcurrency: svcCfg.BatchConcurrency,
	})

	jobService := job.NewService(job.ServiceConfig{
		Orchestrator:  orchestrator,
		Store:         jobStore,
		Metrics:       metrics,
		Logger:        logger,
		PublicBaseURL: svcCfg.PublicBaseURL,
	})

	builder := workflow.New(workflow.Config{
		Provider: provider,
		Recipes:  catalog,
		Logger:   logger,
		AgentURL: svcCfg.AgentURL,
	})

	// Create health checker; a memory store cannot fail, a Redis one can.
	healthChecker := health.NewChecker(
		health.Dependency{Name: "provider", Check: provider},
		health.Dependency{Name: "store", Check: health.CheckFunc(jobStore.Ping)},
	)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Jobs:          jobService,
		Workflows:     builder,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        apiKey,
		Logger:        logger,
	})

	if apiKey != "" {
		logger.Info("API authentication enabled")
	} else {
		logger.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 2)

	// Start API server
	go func() {
		logger.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		logger.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		logger.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	logger.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Give running jobs a bounded window to reach a terminal state.
	// Jobs still running afterwards are lost with the process.
	logger.Info("Waiting for running jobs")
	jobsCtx, jobsCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer jobsCancel()
	if err := jobService.Wait(jobsCtx); err != nil {
		logger.Warn("Jobs still running at shutdown", "error", err)
	}

	stats := notifier.Stats()
	logger.Info("Webhook stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)

	logger.Info("Shutdown complete")
	return nil
}

func newProvider(ctx context.Context, cfg *config.ServiceConfig, logger *slog.Logger) (cloud.Provider, error) {
	switch cfg.Provider {
	case config.ProviderEC2:
		return ec2.New(ctx, ec2.Config{Region: cfg.AWSRegion, Logger: logger})
	case config.ProviderDocker:
		p, err := docker.New(docker.Config{BaseImage: cfg.DockerImage, Logger: logger})
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Ready(pingCtx); err != nil {
			p.Close()
			return nil, fmt.Errorf("docker daemon unreachable: %w", err)
		}
		return p, nil
	default:
		logger.Warn("Using in-memory cloud; nothing is provisioned for real")
		return memory.New(), nil
	}
}

// newStore returns the job store and a close function.
func newStore(ctx context.Context, cfg *config.ServiceConfig, logger *slog.Logger) (job.Store, func(), error) {
	if cfg.Store == config.StoreRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		st := store.NewRedis(client, cfg.JobRetention, "")
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := st.Ping(pingCtx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return st, func() { client.Close() }, nil
	}

	st := store.NewMemory(cfg.JobRetention, logger)
	go st.RunMaintenance(ctx, cfg.MaintenanceInterval)
	return st, func() {}, nil
}
