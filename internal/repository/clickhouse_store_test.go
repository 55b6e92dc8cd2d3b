package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	applogger "FinSense/pkg/logger"
)

// heldLocker reports a key as held until busyFor attempts have been made.
type heldLocker struct {
	mu       sync.Mutex
	busyFor  int
	attempts int
	keys     []string
	unlocked []string
}

func (l *heldLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	l.keys = append(l.keys, key)
	return l.attempts > l.busyFor, nil
}

func (l *heldLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked = append(l.unlocked, key)
	return nil
}

func newLockedCHStore(locker domrepo.Locker, wait time.Duration) *CHPredictionStore {
	s := &CHPredictionStore{l: applogger.Nop(), lockWait: time.Second}
	WithVerifyLocker(locker)(s)
	WithVerifyLockWait(wait)(s)
	return s
}

func TestCHStore_VerifyRefusedWhileAnotherWriterHoldsLock(t *testing.T) {
	locker := &heldLocker{busyFor: 1 << 30}
	s := newLockedCHStore(locker, 120*time.Millisecond)

	// the store has no database: reaching the read would panic
	err := s.VerifyPrediction(context.Background(), "p-1", models.Verification{
		ActualSentiment: models.Bullish,
		VerifiedAt:      time.Now(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domrepo.ErrPersistenceFailure)
	assert.Greater(t, locker.attempts, 1)
	assert.Equal(t, "predictions:verify:p-1", locker.keys[0])
	assert.Empty(t, locker.unlocked)
}

func TestCHStore_LockVerifyWaitsForRelease(t *testing.T) {
	locker := &heldLocker{busyFor: 2}
	s := newLockedCHStore(locker, time.Second)

	unlock, err := s.lockVerify(context.Background(), "p-2")
	require.NoError(t, err)
	assert.Equal(t, 3, locker.attempts)

	unlock()
	assert.Equal(t, []string{"predictions:verify:p-2"}, locker.unlocked)
}

func TestCHStore_LockVerifyHonoursContext(t *testing.T) {
	locker := &heldLocker{busyFor: 1 << 30}
	s := newLockedCHStore(locker, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err := s.lockVerify(ctx, "p-3")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCHStore_NoLockerSkipsLocking(t *testing.T) {
	s := &CHPredictionStore{l: applogger.Nop()}
	unlock, err := s.lockVerify(context.Background(), "p-4")
	require.NoError(t, err)
	unlock()
}
