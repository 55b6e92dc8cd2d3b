package modelmgr

import (
	"context"
	"fmt"
	"path/filepath"

	"FinSense/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the active model whenever another process rewrites ACTIVE.
// It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create model watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(m.dir); err != nil {
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}
	m.log.Info("model watcher started",
		logger.String("category", "model_manager"),
		logger.String("dir", m.dir),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != activeFile || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			m.reloadActive()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("model watcher error",
				logger.String("category", "model_manager"),
				logger.Error(err),
			)
		}
	}
}

func (m *Manager) reloadActive() {
	version, err := m.readActive()
	if err != nil || version == "" || version == m.ActiveVersion() {
		return
	}
	if m.Load(version) {
		m.log.Info("active model reloaded",
			logger.String("category", "model_manager"),
			logger.String("version", version),
		)
	}
}
