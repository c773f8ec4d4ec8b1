// provision-agent runs on a freshly created VM. It applies the recipe written
// by the setup script and reports each step to the job's webhook.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vmjobs/internal/agent"
)

func main() {
	// Validate a recipe file without running it.
	if len(os.Args) > 2 && os.Args[1] == "-check" {
		if err := agent.CheckRecipe(os.Args[2]); err != nil {
			slog.Error("Invalid recipe", "path", os.Args[2], "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		if !errors.Is(err, agent.ErrRecipeFailed) {
			slog.Error("Agent failed", "error", err)
		}
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := agent.LoadConfig()
	if err != nil {
		return err
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := a.Run(ctx)
	if snap != nil {
		logger.Info("Recipe finished",
			"jobId", snap.ID,
			"state", snap.State,
			"steps", len(snap.Steps),
		)
	}
	return err
}
