package sentiment

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/internal/services/features"
	"FinSense/internal/services/modelmgr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendBars(n int, drift float64, seed int64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 1.0850
	for i := range bars {
		open := price
		price *= 1 + drift + rng.NormFloat64()*0.0005
		bars[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   math.Max(open, price) * 1.0002,
			Low:    math.Min(open, price) * 0.9998,
			Close:  price,
			Volume: 1000 + rng.Float64()*200,
		}
	}
	return bars
}

type stubPredictor struct {
	pUp float64
	err error
}

func (s stubPredictor) Predict(table *features.Table, withProba bool) (*modelmgr.Output, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := &modelmgr.Output{Version: "v_test", Classes: make([]int, table.Len())}
	for range table.Rows {
		out.Proba = append(out.Proba, []float64{1 - s.pUp, s.pUp})
	}
	return out, nil
}

type modeCounter struct {
	repository.NoopMetrics
	modes map[string]int
}

func (m *modeCounter) RecordAnalysisMode(mode string) { m.modes[mode]++ }

func TestAnalyze_RuleBasedWithoutModel(t *testing.T) {
	metrics := &modeCounter{modes: map[string]int{}}
	e := NewEngine(features.NewEngineer(nil), stubPredictor{err: repository.ErrModelNotLoaded}, metrics, nil)

	v, err := e.Analyze("EURUSD", repository.TFH1, trendBars(400, 0.001, 1))
	require.NoError(t, err)
	assert.Equal(t, models.ModeRuleBased, v.Mode)
	assert.Equal(t, models.Bullish, v.Sentiment)
	assert.LessOrEqual(t, v.Confidence, 0.75)
	assert.Nil(t, v.ProbUp)
	assert.Empty(t, v.ModelVersion)
	assert.Equal(t, 1, metrics.modes["rule_based"])
	assert.Contains(t, v.Insights[0], "rule-based")
}

func TestAnalyze_EnsembleMode(t *testing.T) {
	e := NewEngine(features.NewEngineer(nil), stubPredictor{pUp: 0.1}, nil, nil)

	v, err := e.Analyze("EURUSD", repository.TFH4, trendBars(400, -0.001, 2))
	require.NoError(t, err)
	assert.Equal(t, models.ModeEnsemble, v.Mode)
	assert.Equal(t, "v_test", v.ModelVersion)
	require.NotNil(t, v.ProbUp)
	assert.InDelta(t, 0.1, *v.ProbUp, 1e-9)
	assert.Equal(t, models.Bearish, v.Sentiment)
	assert.Greater(t, v.Confidence, 0.0)
	assert.LessOrEqual(t, v.Confidence, 0.95)
	assert.Less(t, v.Score, 0.0)

	var sources = map[string]bool{}
	for _, f := range v.Factors {
		sources[f.Source] = true
		assert.GreaterOrEqual(t, f.Vote, -1.0)
		assert.LessOrEqual(t, f.Vote, 1.0)
	}
	assert.Equal(t, map[string]bool{"technical": true, "structure": true, "ml": true}, sources)
}

func TestAnalyze_TooFewBars(t *testing.T) {
	e := NewEngine(features.NewEngineer(nil), nil, nil, nil)
	_, err := e.Analyze("EURUSD", repository.TFH1, trendBars(150, 0, 3))
	assert.True(t, errors.Is(err, repository.ErrDataUnavailable))
}

func TestWeightedScoreAndClassify(t *testing.T) {
	factors := []models.Factor{
		{Source: "technical", Vote: 1},
		{Source: "technical", Vote: 0},
		{Source: "structure", Vote: -0.9},
	}
	weights := map[string]float64{"technical": 0.6, "structure": 0.4}
	score := weightedScore(factors, weights)
	assert.InDelta(t, 0.3-0.36, score, 1e-12)
	assert.Equal(t, models.Neutral, classify(score, 0.1))
	assert.Equal(t, models.Bullish, classify(0.11, 0.1))
	assert.Equal(t, models.Bearish, classify(-0.11, 0.1))

	// technical votes carry 0.3 each, structure 0.4
	assert.InDelta(t, 0.3, agreementShare(factors, weights, models.Bullish, 0.1), 1e-12)
}

func TestOrderBlockVote(t *testing.T) {
	bars := []models.Bar{
		{Open: 1.00, High: 1.01, Low: 0.99, Close: 1.00},
		{Open: 1.00, High: 1.005, Low: 0.99, Close: 0.995}, // bearish candle before the rally
		{Open: 0.995, High: 1.03, Low: 0.995, Close: 1.025},
		{Open: 1.025, High: 1.04, Low: 1.02, Close: 1.03},
		{Open: 1.03, High: 1.03, Low: 0.995, Close: 1.0},
	}
	vote, detail := orderBlockVote(bars, 1.0)
	assert.Equal(t, 1.0, vote)
	assert.Contains(t, detail, "bullish")

	vote, _ = orderBlockVote(bars, 0.98)
	assert.Equal(t, 0.0, vote)
}

func TestCombine_AllBullish(t *testing.T) {
	verdicts := []models.Verdict{
		{Timeframe: "H4", Sentiment: models.Bullish, Confidence: 0.6},
		{Timeframe: "M15", Sentiment: models.Bullish, Confidence: 0.8},
		{Timeframe: "H1", Sentiment: models.Bullish, Confidence: 0.7},
	}
	res := Combine("EURUSD", verdicts, nil, time.Now())
	assert.Equal(t, models.Bullish, res.Dominant)
	assert.Equal(t, 1.0, res.AlignmentScore)
	assert.True(t, res.Aligned)
	// (3*0.8 + 5*0.7 + 6*0.6) / 14
	assert.InDelta(t, 9.5/14, res.OverallConfidence, 1e-9)
	assert.NotEqual(t, 0.7, res.OverallConfidence)
	assert.Equal(t, "M15", res.Timeframes[0].Timeframe)
	assert.Equal(t, "H4", res.Timeframes[2].Timeframe)
	assert.Contains(t, res.Suggestions[0], "all 3 timeframes agree")
}

func TestCombine_TieIsNeutral(t *testing.T) {
	verdicts := []models.Verdict{
		{Timeframe: "H1", Sentiment: models.Bullish, Confidence: 0.7},
		{Timeframe: "H4", Sentiment: models.Bearish, Confidence: 0.5},
	}
	res := Combine("EURUSD", verdicts, nil, time.Now())
	assert.Equal(t, models.Neutral, res.Dominant)
	assert.Equal(t, 0.5, res.AlignmentScore)
	assert.False(t, res.Aligned)
	assert.InDelta(t, (5*0.7+6*0.5)/11*0.5, res.OverallConfidence, 1e-9)
	assert.Contains(t, res.Suggestions[0], "standing aside")
}

func TestCombine_HighestTimeframeConflict(t *testing.T) {
	verdicts := []models.Verdict{
		{Timeframe: "M15", Sentiment: models.Bullish, Confidence: 0.7},
		{Timeframe: "H1", Sentiment: models.Bullish, Confidence: 0.7},
		{Timeframe: "D1", Sentiment: models.Bearish, Confidence: 0.9},
	}
	res := Combine("EURUSD", verdicts, map[string]string{"H4": "data unavailable"}, time.Now())
	assert.Equal(t, models.Bullish, res.Dominant)
	assert.InDelta(t, 2.0/3, res.AlignmentScore, 1e-12)
	assert.True(t, res.Aligned)
	assert.Equal(t, "data unavailable", res.Errors["H4"])
	assert.Contains(t, res.Suggestions[len(res.Suggestions)-1], "highest timeframe D1 is BEARISH")
}

func TestCombine_AlignmentBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tfs := []string{"M1", "M5", "M15", "M30", "H1", "H4", "D1", "W1"}
	all := []models.Sentiment{models.Bullish, models.Bearish, models.Neutral}
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(len(tfs))
		var verdicts []models.Verdict
		same := true
		for j := 0; j < n; j++ {
			s := all[rng.Intn(3)]
			if j > 0 && s != verdicts[0].Sentiment {
				same = false
			}
			verdicts = append(verdicts, models.Verdict{Timeframe: tfs[j], Sentiment: s, Confidence: rng.Float64()})
		}
		res := Combine("X", verdicts, nil, time.Now())
		assert.GreaterOrEqual(t, res.AlignmentScore, 1.0/3)
		assert.LessOrEqual(t, res.AlignmentScore, 1.0)
		assert.Equal(t, same, res.AlignmentScore == 1.0)
		assert.GreaterOrEqual(t, res.OverallConfidence, 0.0)
		assert.LessOrEqual(t, res.OverallConfidence, 1.0)
	}
}
