package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"FinSense/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

// Config holds BadgerDB settings.
type Config struct {
	Path              string
	InMemory          bool
	SyncWrites        bool
	NumVersionsToKeep int
	GCInterval        time.Duration
	GCDiscardRatio    float64
}

func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig is meant for tests: no disk I/O and no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true, NumVersionsToKeep: 1}
}

// badgerLogger forwards badger's internal messages to the app logger.
type badgerLogger struct {
	l *logger.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(fmt.Sprintf(format, args...), logger.String("category", "badger"))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(fmt.Sprintf(format, args...), logger.String("category", "badger"))
}

func (b *badgerLogger) Infof(string, ...interface{}) {}

func (b *badgerLogger) Debugf(string, ...interface{}) {}

// Open opens the database at cfg.Path, or in memory.
func Open(cfg Config, l *logger.Logger) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.NumVersionsToKeep <= 0 {
		cfg.NumVersionsToKeep = 1
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	if l != nil {
		opts = opts.WithLogger(&badgerLogger{l: l})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

func OpenInMemory() (*badger.DB, error) {
	return Open(InMemoryConfig(), nil)
}

// RunGC triggers value log garbage collection every interval until ctx ends.
func RunGC(ctx context.Context, db *badger.DB, interval time.Duration, ratio float64, l *logger.Logger) {
	if interval <= 0 || db.Opts().InMemory {
		return
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// one call reclaims at most one file; repeat until nothing is left
			for {
				err := db.RunValueLogGC(ratio)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) && l != nil {
					l.Warn("badger gc failed", logger.String("category", "badger"), logger.Error(err))
				}
				break
			}
		}
	}
}
