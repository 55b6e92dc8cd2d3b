package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"FinSense/internal/domain/service"
)

type BoostingParams struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	Lambda         float64 `json:"lambda"`
	MinChildWeight float64 `json:"min_child_weight"`
	MaxBins        int     `json:"max_bins"`
}

func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		NEstimators:    100,
		MaxDepth:       6,
		LearningRate:   0.1,
		Lambda:         1,
		MinChildWeight: 1,
		MaxBins:        64,
	}
}

// GradientBoosting is a binary classifier trained with logistic loss and
// Newton leaf values.
type GradientBoosting struct {
	Params     BoostingParams `json:"params"`
	BaseScore  float64        `json:"base_score"`
	Trees      []*Tree        `json:"trees"`
	Importance []float64      `json:"importance"`
}

var _ service.Classifier = (*GradientBoosting)(nil)

func NewGradientBoosting(p BoostingParams) *GradientBoosting {
	return &GradientBoosting{Params: p}
}

func (m *GradientBoosting) Name() string { return "gradient_boosting" }

func (m *GradientBoosting) Fit(ctx context.Context, rows [][]float64, labels []int) error {
	if len(rows) == 0 || len(rows) != len(labels) {
		return fmt.Errorf("fit boosting: %d rows, %d labels", len(rows), len(labels))
	}
	n := len(rows)
	data := binMatrix(rows, m.Params.MaxBins)

	pos := 0.0
	for _, y := range labels {
		pos += float64(y)
	}
	prior := clamp(pos/float64(n), 1e-6, 1-1e-6)
	m.BaseScore = math.Log(prior / (1 - prior))
	m.Trees = m.Trees[:0]
	m.Importance = make([]float64, len(rows[0]))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = m.BaseScore
	}
	samples := make([]int, n)
	for i := range samples {
		samples[i] = i
	}
	g := make([]float64, n)
	h := make([]float64, n)
	params := treeParams{
		maxDepth:       m.Params.MaxDepth,
		minSamplesLeaf: 1,
		minChildWeight: m.Params.MinChildWeight,
		lambda:         m.Params.Lambda,
	}
	// feature sampling is off, so the generator is never consulted
	rng := rand.New(rand.NewSource(0))

	for t := 0; t < m.Params.NEstimators; t++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fit boosting: %w", err)
		}
		for i := range raw {
			p := sigmoid(raw[i])
			g[i] = p - float64(labels[i])
			h[i] = math.Max(p*(1-p), 1e-6)
		}
		tree := buildTree(data, samples, g, h, params, rng, m.Importance)
		for i, row := range rows {
			raw[i] += m.Params.LearningRate * tree.Predict(row)
		}
		m.Trees = append(m.Trees, tree)
	}
	normalize(m.Importance)
	return nil
}

func (m *GradientBoosting) margin(x []float64) float64 {
	s := m.BaseScore
	for _, t := range m.Trees {
		s += m.Params.LearningRate * t.Predict(x)
	}
	return s
}

func (m *GradientBoosting) PredictProba(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		p := sigmoid(m.margin(row))
		out[i] = []float64{1 - p, p}
	}
	return out
}

func (m *GradientBoosting) Predict(rows [][]float64) []int {
	return argmax(m.PredictProba(rows))
}

// FeatureImportance is the normalized total split gain per column.
func (m *GradientBoosting) FeatureImportance() []float64 {
	return append([]float64(nil), m.Importance...)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func normalize(v []float64) {
	total := 0.0
	for _, x := range v {
		total += x
	}
	if total == 0 {
		return
	}
	for i := range v {
		v[i] /= total
	}
}

func argmax(proba [][]float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p[1] > p[0] {
			out[i] = 1
		}
	}
	return out
}
