package ml

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"FinSense/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separable returns rows whose label is driven by column 0 with some label noise.
func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	labels := make([]int, n)
	for i := range rows {
		x0 := rng.NormFloat64()
		rows[i] = []float64{x0, rng.NormFloat64(), rng.Float64() * 10, 3}
		if x0 > 0 {
			labels[i] = 1
		}
		if rng.Float64() < 0.05 {
			labels[i] = 1 - labels[i]
		}
	}
	return rows, labels
}

var testNames = []string{"signal", "noise", "uniform", "constant"}

func smallTrainer(opts ...TrainerOption) *Trainer {
	base := []TrainerOption{
		WithCVFolds(3),
		WithBoosting(BoostingParams{NEstimators: 20, MaxDepth: 3, LearningRate: 0.2, Lambda: 1, MinChildWeight: 1, MaxBins: 32}),
		WithForest(ForestParams{NEstimators: 15, MaxDepth: 5, MinSamplesLeaf: 1, MaxBins: 32, Seed: 42}),
	}
	return NewTrainer(nil, append(base, opts...)...)
}

func TestTrainer_LearnsSeparableSignal(t *testing.T) {
	rows, labels := separable(400, 1)
	art, err := smallTrainer().Train(context.Background(), testNames, rows, labels, false)
	require.NoError(t, err)

	r := art.Result
	assert.Greater(t, r.TestAccuracy, 0.8)
	assert.Greater(t, r.TrainAccuracy, 0.8)
	assert.Greater(t, r.CVMean, 0.75)
	assert.GreaterOrEqual(t, r.CVStd, 0.0)
	assert.Equal(t, 80, r.TestSamples)
	assert.Equal(t, 320, r.TrainingSamples)

	total := 0.0
	for _, v := range r.FeatureImportance {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, r.FeatureImportance["signal"], r.FeatureImportance["noise"])
	assert.Equal(t, 0.0, r.FeatureImportance["constant"])
}

func TestTrainer_Deterministic(t *testing.T) {
	rows, labels := separable(200, 2)
	a, err := smallTrainer().Train(context.Background(), testNames, rows, labels, false)
	require.NoError(t, err)
	b, err := smallTrainer().Train(context.Background(), testNames, rows, labels, false)
	require.NoError(t, err)
	assert.Equal(t, a.Result.TestAccuracy, b.Result.TestAccuracy)
	assert.Equal(t, a.Model.PredictProba(rows[:10]), b.Model.PredictProba(rows[:10]))
}

func TestTrainer_InsufficientData(t *testing.T) {
	rows, labels := separable(50, 3)
	_, err := smallTrainer().Train(context.Background(), testNames, rows, labels, false)
	assert.True(t, errors.Is(err, repository.ErrInsufficientTrainingData))

	rows, _ = separable(150, 3)
	ones := make([]int, len(rows))
	for i := range ones {
		ones[i] = 1
	}
	_, err = smallTrainer().Train(context.Background(), testNames, rows, ones, false)
	assert.True(t, errors.Is(err, repository.ErrInsufficientTrainingData))
}

func TestTrainer_Cancelled(t *testing.T) {
	rows, labels := separable(200, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := smallTrainer().Train(ctx, testNames, rows, labels, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTrainer_TuningAndChronological(t *testing.T) {
	rows, labels := separable(300, 5)
	art, err := smallTrainer(WithChronologicalSplit(true)).Train(context.Background(), testNames, rows, labels, true)
	require.NoError(t, err)
	assert.Equal(t, 60, art.Result.TestSamples)
	assert.Contains(t, art.Result.Params, "gbt_max_depth")
}

func TestEnsemble_ProbabilitiesAndRoundTrip(t *testing.T) {
	rows, labels := separable(200, 6)
	art, err := smallTrainer(WithWeights(0.6, 0.4)).Train(context.Background(), testNames, rows, labels, false)
	require.NoError(t, err)

	scaled, err := art.Scaler.Transform(rows[:20])
	require.NoError(t, err)
	proba := art.Model.PredictProba(scaled)
	bp := art.Model.Boosting.PredictProba(scaled)
	fp := art.Model.Forest.PredictProba(scaled)
	for i, p := range proba {
		assert.InDelta(t, 1.0, p[0]+p[1], 1e-12)
		assert.InDelta(t, 0.6*bp[i][1]+0.4*fp[i][1], p[1], 1e-12)
	}

	blob, err := json.Marshal(art.Model)
	require.NoError(t, err)
	var decoded VotingEnsemble
	require.NoError(t, json.Unmarshal(blob, &decoded))
	require.NoError(t, decoded.Validate())
	assert.Equal(t, proba, decoded.PredictProba(scaled))
	assert.Equal(t, art.Model.Predict(scaled), decoded.Predict(scaled))
}

func TestScaler(t *testing.T) {
	s, err := FitScaler([]string{"a", "b"}, [][]float64{{1, 5}, {3, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Std)

	out, err := s.Transform([][]float64{{3, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, out[0])

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestStratifiedSplit_KeepsRatio(t *testing.T) {
	labels := make([]int, 100)
	for i := 0; i < 30; i++ {
		labels[i] = 1
	}
	train, test := stratifiedSplit(labels, 0.2, rand.New(rand.NewSource(42)))
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)
	ones := 0
	for _, i := range test {
		ones += labels[i]
	}
	assert.Equal(t, 6, ones)
}
