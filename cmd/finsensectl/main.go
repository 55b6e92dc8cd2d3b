package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FinSense/internal/di"
	"FinSense/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, closeDeps := newRootCmd(openToolkit)
	err := root.ExecuteContext(ctx)
	closeDeps()
	if err != nil {
		os.Exit(1)
	}
}

// openToolkit loads config and wires the services the commands need.
func openToolkit(configPath string) (*deps, func(), error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	tk, cleanup, err := di.InitializeToolkit(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}
	d := &deps{
		learner: tk.Learner,
		models:  tk.Manager,
		tracker: tk.Tracker,
	}
	// keep the interface nil when the queue is disabled
	if tk.Jobs != nil {
		d.jobs = tk.Jobs
	}
	return d, cleanup, nil
}
