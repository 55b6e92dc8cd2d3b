package learner

import (
	"context"
	"sync"
	"time"
)

// localLock is an in-process Locker used when no shared cache is configured.
type localLock struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func newLocalLock() *localLock {
	return &localLock{until: make(map[string]time.Time)}
}

func (l *localLock) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if exp, ok := l.until[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.until[key] = now.Add(ttl)
	return true, nil
}

func (l *localLock) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.until, key)
	return nil
}
