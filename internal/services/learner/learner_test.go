package learner

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/internal/services/features"
	"FinSense/internal/services/ml"
	"FinSense/internal/services/modelmgr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecommender struct {
	rec models.RetrainRecommendation
	acc models.AccuracyWindow
}

func (s stubRecommender) NeedsRetraining(context.Context, float64, int, int) models.RetrainRecommendation {
	return s.rec
}

func (s stubRecommender) RecentAccuracy(context.Context, string, int) models.AccuracyWindow {
	return s.acc
}

type feedFunc func(ctx context.Context, symbol string, tf repository.Timeframe, count int) ([]models.Bar, error)

func (f feedFunc) GetBars(ctx context.Context, symbol string, tf repository.Timeframe, count int) ([]models.Bar, error) {
	return f(ctx, symbol, tf, count)
}

func randomBars(n int) []models.Bar {
	rng := rand.New(rand.NewSource(5))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 1.1
	for i := range bars {
		open := price
		price *= 1 + rng.NormFloat64()*0.002
		bars[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   math.Max(open, price) * 1.0005,
			Low:    math.Min(open, price) * 0.9995,
			Close:  price,
			Volume: 500 + rng.Float64()*500,
		}
	}
	return bars
}

func staticFeed(n int) feedFunc {
	bars := randomBars(n)
	return func(context.Context, string, repository.Timeframe, int) ([]models.Bar, error) {
		return bars, nil
	}
}

func newLearner(t *testing.T, rec Recommender, feed repository.BarFeed, opts ...Option) *Learner {
	t.Helper()
	trainer := ml.NewTrainer(nil,
		ml.WithCVFolds(2),
		ml.WithBoosting(ml.BoostingParams{NEstimators: 5, MaxDepth: 2, LearningRate: 0.3, Lambda: 1, MinChildWeight: 1, MaxBins: 16}),
		ml.WithForest(ml.ForestParams{NEstimators: 5, MaxDepth: 3, MinSamplesLeaf: 1, MaxBins: 16, Seed: 1}),
	)
	mgr, err := modelmgr.New(t.TempDir(), trainer, nil)
	require.NoError(t, err)
	return New(rec, mgr, feed, features.NewEngineer(nil), nil, opts...)
}

func TestShouldRetrain_NoModel(t *testing.T) {
	l := newLearner(t, stubRecommender{}, staticFeed(400))
	d := l.ShouldRetrain(context.Background())
	assert.True(t, d.ShouldRetrain)
	assert.Contains(t, d.Reasons, "no trained model found")
	assert.Nil(t, d.LastTraining)
}

func TestShouldRetrain_ScenarioD(t *testing.T) {
	rec := stubRecommender{rec: models.RetrainRecommendation{
		Reasons: []string{"not enough predictions yet (10/100)"},
	}}
	var offset time.Duration
	l := newLearner(t, rec, staticFeed(400), WithClock(func() time.Time { return time.Now().Add(offset) }))

	res := l.ExecuteRetraining(context.Background(), models.RetrainParams{Symbol: "EURUSD", Timeframe: "H1"}, nil)
	require.True(t, res.Success, res.Error)

	d := l.ShouldRetrain(context.Background())
	assert.False(t, d.ShouldRetrain)

	offset = 49 * time.Hour
	d = l.ShouldRetrain(context.Background())
	assert.True(t, d.ShouldRetrain)
	assert.Contains(t, d.Reasons, "last training was 2 days ago")
	assert.Contains(t, d.Reasons[0], "not enough predictions")
	assert.InDelta(t, 49.0/24, d.DaysSinceTraining, 0.01)
	assert.Equal(t, res.Version, d.ActiveVersion)
}

func TestShouldRetrain_AccuracyReasonKept(t *testing.T) {
	rec := stubRecommender{rec: models.RetrainRecommendation{ShouldRetrain: true, Reasons: []string{"accuracy 55.0% below threshold 70.0%"}}}
	l := newLearner(t, rec, staticFeed(400))
	require.True(t, l.ExecuteRetraining(context.Background(), models.RetrainParams{}, nil).Success)

	d := l.ShouldRetrain(context.Background())
	assert.True(t, d.ShouldRetrain)
	assert.Equal(t, []string{"accuracy 55.0% below threshold 70.0%"}, d.Reasons)
}

func TestExecuteRetraining_Success(t *testing.T) {
	l := newLearner(t, stubRecommender{}, staticFeed(400))
	var stages []string
	progress := func(stage string, p float64) {
		stages = append(stages, stage)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	first := l.ExecuteRetraining(context.Background(), models.RetrainParams{Symbol: "EURUSD", Timeframe: "h1", Trigger: models.TriggerManual}, progress)
	require.True(t, first.Success, first.Error)
	assert.True(t, strings.HasPrefix(first.Version, "v_manual_"))
	assert.Equal(t, "H1", first.Timeframe)
	assert.Nil(t, first.Improvement)
	assert.Greater(t, first.TrainingSamples, 0)
	assert.Equal(t, []string{"fetching", "features", "training", "recording", "done"}, stages)

	second := l.ExecuteRetraining(context.Background(), models.RetrainParams{Trigger: models.TriggerAutomatic}, nil)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, first.Version, second.PreviousVersion)
	require.NotNil(t, second.Improvement)
	assert.InDelta(t, second.TestAccuracy-first.TestAccuracy, *second.Improvement, 1e-12)

	entries, err := l.History().Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TriggerAutomatic, entries[1].Trigger)
	assert.Equal(t, second.Version, entries[1].Version)

	stats := l.LearningStats(context.Background())
	assert.Equal(t, 2, stats.ModelVersions)
	assert.Equal(t, second.Version, stats.ActiveVersion)
	assert.Equal(t, models.TrainingTimeMetadata, stats.TrainingTimeSource)
	require.NotNil(t, stats.LastRetrain)
	assert.Equal(t, second.Version, stats.LastRetrain.Version)
}

func TestExecuteRetraining_Failures(t *testing.T) {
	cases := []struct {
		name string
		feed feedFunc
		want string
	}{
		{
			name: "feed error",
			feed: func(context.Context, string, repository.Timeframe, int) ([]models.Bar, error) {
				return nil, errors.New("feed offline")
			},
			want: "feed offline",
		},
		{
			name: "short series",
			feed: staticFeed(150),
			want: repository.ErrDataUnavailable.Error(),
		},
		{
			name: "too few rows",
			feed: staticFeed(250),
			want: repository.ErrInsufficientTrainingData.Error(),
		},
		{
			name: "panic",
			feed: func(context.Context, string, repository.Timeframe, int) ([]models.Bar, error) {
				panic("boom")
			},
			want: "panic: boom",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newLearner(t, stubRecommender{}, tc.feed)
			res := l.ExecuteRetraining(context.Background(), models.RetrainParams{}, nil)
			require.NotNil(t, res)
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tc.want)
			assert.Empty(t, l.manager.ActiveVersion())

			// the lock is released even after a panic
			ok, err := l.locker.TryLock(context.Background(), lockKey, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

type trainingRuns struct {
	repository.NoopMetrics
	runs []bool
}

func (m *trainingRuns) RecordTraining(_ string, success bool, _ float64) {
	m.runs = append(m.runs, success)
}

func TestExecuteRetraining_LockHeld(t *testing.T) {
	m := &trainingRuns{}
	l := newLearner(t, stubRecommender{}, staticFeed(400), WithMetrics(m))
	ok, err := l.locker.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res := l.ExecuteRetraining(context.Background(), models.RetrainParams{}, nil)
	assert.False(t, res.Success)
	assert.Equal(t, ErrRetrainInProgress.Error(), res.Error)
	// a rejected run is not a failed training
	assert.Empty(t, m.runs)

	require.NoError(t, l.locker.Unlock(context.Background(), lockKey))
	res = l.ExecuteRetraining(context.Background(), models.RetrainParams{Bars: 400}, nil)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []bool{true}, m.runs)
}

func TestExecuteRetraining_Cancelled(t *testing.T) {
	l := newLearner(t, stubRecommender{}, staticFeed(400))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := l.ExecuteRetraining(ctx, models.RetrainParams{}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, context.Canceled.Error())
}

func TestCheckAndRetrain(t *testing.T) {
	l := newLearner(t, stubRecommender{}, staticFeed(400))
	res := l.CheckAndRetrain(context.Background())
	require.NotNil(t, res)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, models.TriggerAutomatic, res.Trigger)

	assert.Nil(t, l.CheckAndRetrain(context.Background()))
}

func TestSetup(t *testing.T) {
	l := newLearner(t, stubRecommender{}, staticFeed(400))
	assert.True(t, l.SetupRequired())

	rec, res, err := l.Setup(context.Background(), models.RetrainParams{Symbol: "GBPUSD", Timeframe: "H4", Bars: 400}, false, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.TriggerSetup, res.Trigger)
	assert.Equal(t, "GBPUSD", rec.Symbol)
	assert.Equal(t, "H4", rec.Timeframe)
	assert.Equal(t, 400, rec.NumBars)
	assert.Equal(t, res.Version, rec.ModelVersion)
	assert.False(t, l.SetupRequired())

	again, res2, err := l.Setup(context.Background(), models.RetrainParams{}, false, nil)
	require.NoError(t, err)
	assert.Nil(t, res2)
	assert.Equal(t, rec.ModelVersion, again.ModelVersion)
}
