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
	"FinSense/pkg/badgerdb"
)

func newBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badgerdb.OpenInMemory()
	require.NoError(t, err)
	s := NewBadgerStore(db, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func prediction(id, symbol string, created time.Time) *models.Prediction {
	return &models.Prediction{
		ID:        id,
		Symbol:    symbol,
		Timeframe: "H1",
		Sentiment: models.Bullish,
		Price:     1.1,
		CreatedAt: created,
	}
}

func TestBadgerStore_FilterAndOrder(t *testing.T) {
	s := newBadgerStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreatePrediction(ctx, prediction("a", "EURUSD", base)))
	require.NoError(t, s.CreatePrediction(ctx, prediction("b", "EURUSD", base.Add(time.Hour))))
	require.NoError(t, s.CreatePrediction(ctx, prediction("c", "GBPUSD", base.Add(2*time.Hour))))

	all, err := s.GetPredictions(ctx, models.PredictionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	eur, err := s.GetPredictions(ctx, models.PredictionFilter{Symbol: "EURUSD", Limit: 1})
	require.NoError(t, err)
	require.Len(t, eur, 1)
	assert.Equal(t, "b", eur[0].ID)

	n, err := s.CountPredictions(ctx, models.PredictionFilter{CreatedSince: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBadgerStore_VerifyIsConditional(t *testing.T) {
	s := newBadgerStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreatePrediction(ctx, prediction("p1", "EURUSD", now.Add(-5*time.Hour))))

	v := models.Verification{ActualSentiment: models.Bullish, Price: 1.2, ChangePct: 9.09, Correct: true, VerifiedAt: now}
	require.NoError(t, s.VerifyPrediction(ctx, "p1", v))
	assert.ErrorIs(t, s.VerifyPrediction(ctx, "p1", v), domrepo.ErrAlreadyVerified)
	assert.ErrorIs(t, s.VerifyPrediction(ctx, "missing", v), domrepo.ErrPredictionNotFound)

	got, err := s.GetPredictions(ctx, models.VerifiedSince("EURUSD", now.Add(-time.Minute)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Correct)
	assert.Equal(t, 1.2, got[0].VerifyPrice)

	unverified, err := s.CountPredictions(ctx, models.Unverified("EURUSD"))
	require.NoError(t, err)
	assert.Zero(t, unverified)
}

func TestBadgerStore_ConcurrentVerifySettlesOnce(t *testing.T) {
	s := newBadgerStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreatePrediction(ctx, prediction("p1", "EURUSD", time.Now().Add(-5*time.Hour))))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.VerifyPrediction(ctx, "p1", models.Verification{Price: 1.2, VerifiedAt: time.Now()})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestBadgerStore_ModelVersions(t *testing.T) {
	s := newBadgerStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateModelVersion(ctx, models.ModelMetadata{Version: "v_setup_1", TrainingDate: base, TestAccuracy: 0.61}))
	require.NoError(t, s.CreateModelVersion(ctx, models.ModelMetadata{Version: "v_manual_2", TrainingDate: base.Add(24 * time.Hour), TestAccuracy: 0.66}))

	vs, err := s.ListModelVersions(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "v_manual_2", vs[0].Version)
	assert.NoError(t, s.Health(ctx))
}
