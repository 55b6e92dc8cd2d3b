package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	mid "FinSense/internal/middleware"
	"FinSense/internal/services/learner"
	"FinSense/internal/services/modelmgr"
	"FinSense/internal/usecase"
	"FinSense/pkg/badgerdb"
	"FinSense/pkg/config"
	xhttp "FinSense/pkg/http"
	pkgkafka "FinSense/pkg/kafka"
	applogger "FinSense/pkg/logger"
	"FinSense/pkg/queue"
)

// Components are the long-running parts of the service. Optional parts are
// nil when their feature is disabled in config.
type Components struct {
	HTTP      *xhttp.Server
	Manager   *modelmgr.Manager
	Learner   *learner.Learner
	Tasks     *usecase.TaskRunner
	Sweep     *usecase.VerificationSweep
	Pipeline  *mid.QuotePipeline
	Collector *usecase.QuoteCollector
	Consumer  *pkgkafka.Consumer
	Jobs      *queue.RedisQueue
	Badger    *badger.DB
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *applogger.Logger
	c   Components
	wg  sync.WaitGroup
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx ends, then shuts
// down intake before waiting for running work.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.c.Learner != nil && a.c.Learner.SetupRequired() {
		a.l.Warn("no initial training recorded, run `finsensectl setup` to train the first model",
			applogger.Category("startup"),
		)
	}

	a.goRun("learner scheduler", func() error { a.c.Learner.Run(bg); return nil }, a.c.Learner != nil)
	a.goRun("verification sweep", func() error { a.c.Sweep.Run(bg); return nil }, a.c.Sweep != nil)
	a.goRun("model watcher", func() error { return a.c.Manager.Watch(bg) }, a.c.Manager != nil && a.cfg.Models.Watch)
	a.goRun("badger gc", func() error {
		badgerdb.RunGC(bg, a.c.Badger, a.cfg.Storage.Badger.GCInterval, 0.5, a.l)
		return nil
	}, a.c.Badger != nil)

	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(bg)
	}
	a.goRun("quote collector", func() error { return a.c.Collector.Run(bg) }, a.c.Collector != nil)
	a.goRun("kafka consumer", func() error { return a.c.Consumer.Run(bg) }, a.c.Consumer != nil)

	if a.c.Jobs != nil {
		if err := a.c.Jobs.Start(); err != nil {
			a.l.Error("job queue start error", applogger.Error(err))
		} else {
			a.l.Info("job queue started", applogger.Int("workers", a.cfg.Queue.Workers))
		}
	}

	if err := a.c.HTTP.Start(); err != nil {
		cancel()
		a.shutdown()
		return fmt.Errorf("start http server: %w", err)
	}
	a.l.Info("finsense started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("storage", a.cfg.Storage.Backend),
		applogger.String("feed", a.cfg.Feed.Type),
		applogger.Int("port", a.cfg.Server.Port),
	)

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	cancel()
	a.shutdown()
	return nil
}

func (a *App) goRun(name string, fn func() error, enabled bool) {
	if !enabled {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil {
			a.l.Error(name+" stopped with error", applogger.Error(err))
		}
	}()
}

// shutdown stops intake first, then waits for running work. Infrastructure
// clients are closed by the caller's cleanup.
func (a *App) shutdown() {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.c.Jobs != nil {
		if err := a.c.Jobs.Stop(ctx); err != nil {
			a.l.Warn("job queue stop error", applogger.Error(err))
		}
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}
	if a.c.Tasks != nil {
		if err := a.c.Tasks.Shutdown(ctx); err != nil {
			a.l.Warn("retrain tasks did not finish", applogger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.l.Warn("background loops did not stop in time")
	}
	a.l.Info("shutdown complete")
}
