package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"vmjobs/pkg/backoff"
	"vmjobs/pkg/circuitbreaker"
	"vmjobs/pkg/retry"
)

// MaxAttempts is the hard ceiling on delivery attempts per event.
const MaxAttempts = 3

// Config tunes delivery. Zero values take the defaults noted per field.
type Config struct {
	Attempts        int           // capped at MaxAttempts (default: 3)
	BaseDelay       time.Duration // wait attempt*BaseDelay between attempts (default: 2s)
	ConnectTimeout  time.Duration // default: 10s
	Timeout         time.Duration // whole request, per attempt (default: 30s)
	SigningKey      string        // empty disables X-Signature-256
	BreakerFailures int           // consecutive failed deliveries before a host is skipped; 0 disables the breaker
	BreakerCooldown time.Duration // how long an open host is skipped (default: 1m)
}

func (c Config) withDefaults() Config {
	if c.Attempts < 1 || c.Attempts > MaxAttempts {
		c.Attempts = MaxAttempts
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BreakerFailures < 0 {
		c.BreakerFailures = 0
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = time.Minute
	}
	return c
}

// MetricsRecorder is an optional sink for delivery metrics.
type MetricsRecorder interface {
	RecordWebhookDelivered(ctx context.Context, durationSeconds float64)
	RecordWebhookFailed(ctx context.Context)
	RecordWebhookSkipped(ctx context.Context)
	RecordWebhookAttempt(ctx context.Context)
}

// Stats holds cumulative delivery counters.
type Stats struct {
	Delivered    int64 // events acknowledged with 2xx
	Failed       int64 // events that exhausted their attempts
	Skipped      int64 // events not sent because the host breaker was open
	Attempts     int64 // POSTs issued
	BreakersOpen int
}

// Notifier posts events with bounded retry. It is safe for concurrent use.
// Every event gets its full attempt budget unless the optional per-host
// breaker is enabled, in which case a host that keeps failing is skipped for
// all jobs until its cooldown elapses.
type Notifier struct {
	cfg      Config
	sender   *sender
	breakers *circuitbreaker.Group // nil when disabled
	logger   *slog.Logger
	metrics  MetricsRecorder

	delivered atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	attempts  atomic.Int64
}

// NewNotifier creates a notifier. logger and metrics may be nil.
func NewNotifier(cfg Config, logger *slog.Logger, metrics MetricsRecorder) *Notifier {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		cfg:     cfg,
		sender:  newSender(cfg.ConnectTimeout, cfg.Timeout, cfg.SigningKey),
		logger:  logger.With("component", "webhook"),
		metrics: metrics,
	}
	if cfg.BreakerFailures > 0 {
		n.breakers = circuitbreaker.NewGroup(circuitbreaker.Config{
			Threshold: cfg.BreakerFailures,
			Cooldown:  cfg.BreakerCooldown,
		})
	}
	return n
}

// Notify delivers ev to callbackURL and reports whether a 2xx was received.
// An empty callbackURL is a successful no-op. Notify never panics on bad
// input and never returns an error; failures are logged and counted.
func (n *Notifier) Notify(ctx context.Context, callbackURL string, ev Event) bool {
	if callbackURL == "" {
		return true
	}

	logger := n.logger.With("step", ev.Details.Step, "status", ev.Status)
	if ev.JobID != "" {
		logger = logger.With("jobId", ev.JobID)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		n.failed.Add(1)
		logger.Error("Webhook event not encodable", "error", err)
		return false
	}

	host := hostOf(callbackURL)
	var breaker *circuitbreaker.Breaker
	if n.breakers != nil {
		breaker = n.breakers.Get(host)
	}
	if breaker != nil && !breaker.Allow() {
		n.skipped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordWebhookSkipped(ctx)
		}
		logger.Warn("Webhook skipped, destination circuit open", "destination", host)
		return false
	}

	start := time.Now()
	policy := retry.Policy{
		Attempts: n.cfg.Attempts,
		Delay:    backoff.Linear(n.cfg.BaseDelay, 0),
		// Per-attempt timeouts are retried; the caller's context ending is not.
		Retryable: func(error) bool { return ctx.Err() == nil },
		OnRetry: func(attempt int, err error) {
			logger.Warn("Webhook attempt failed, retrying", "destination", host, "attempt", attempt, "error", err)
		},
	}
	err = retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		n.attempts.Add(1)
		if n.metrics != nil {
			n.metrics.RecordWebhookAttempt(ctx)
		}
		return n.sender.send(ctx, callbackURL, body)
	})

	if err != nil {
		if breaker != nil {
			breaker.Failure()
		}
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordWebhookFailed(ctx)
		}
		level := slog.LevelError
		if IsClientError(err) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "Webhook delivery failed", "destination", host, "attempts", n.cfg.Attempts, "error", err)
		return false
	}

	if breaker != nil {
		breaker.Success()
	}
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordWebhookDelivered(ctx, time.Since(start).Seconds())
	}
	return true
}

// Stats returns a snapshot of the delivery counters.
func (n *Notifier) Stats() Stats {
	s := Stats{
		Delivered: n.delivered.Load(),
		Failed:    n.failed.Load(),
		Skipped:   n.skipped.Load(),
		Attempts:  n.attempts.Load(),
	}
	if n.breakers != nil {
		s.BreakersOpen = n.breakers.Stats().Open
	}
	return s
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
