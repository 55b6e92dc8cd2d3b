package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"FinSense/internal/domain/service"
)

type ForestParams struct {
	NEstimators    int   `json:"n_estimators"`
	MaxDepth       int   `json:"max_depth"`
	MinSamplesLeaf int   `json:"min_samples_leaf"`
	MaxBins        int   `json:"max_bins"`
	Seed           int64 `json:"seed"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:    100,
		MaxDepth:       10,
		MinSamplesLeaf: 1,
		MaxBins:        64,
		Seed:           42,
	}
}

// RandomForest averages bootstrap trees that try sqrt(features) columns per split.
type RandomForest struct {
	Params ForestParams `json:"params"`
	Trees  []*Tree      `json:"trees"`
}

var _ service.Classifier = (*RandomForest)(nil)

func NewRandomForest(p ForestParams) *RandomForest {
	return &RandomForest{Params: p}
}

func (m *RandomForest) Name() string { return "random_forest" }

func (m *RandomForest) Fit(ctx context.Context, rows [][]float64, labels []int) error {
	if len(rows) == 0 || len(rows) != len(labels) {
		return fmt.Errorf("fit forest: %d rows, %d labels", len(rows), len(labels))
	}
	n := len(rows)
	nf := len(rows[0])
	data := binMatrix(rows, m.Params.MaxBins)
	g := make([]float64, n)
	h := make([]float64, n)
	for i, y := range labels {
		g[i] = -float64(y)
		h[i] = 1
	}
	maxFeatures := int(math.Sqrt(float64(nf)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}
	params := treeParams{
		maxDepth:       m.Params.MaxDepth,
		minSamplesLeaf: m.Params.MinSamplesLeaf,
		maxFeatures:    maxFeatures,
	}
	rng := rand.New(rand.NewSource(m.Params.Seed))
	m.Trees = m.Trees[:0]

	for t := 0; t < m.Params.NEstimators; t++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fit forest: %w", err)
		}
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		m.Trees = append(m.Trees, buildTree(data, sample, g, h, params, rng, nil))
	}
	return nil
}

func (m *RandomForest) PredictProba(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		p := 0.0
		for _, t := range m.Trees {
			p += t.Predict(row)
		}
		if len(m.Trees) > 0 {
			p /= float64(len(m.Trees))
		}
		p = clamp(p, 0, 1)
		out[i] = []float64{1 - p, p}
	}
	return out
}

func (m *RandomForest) Predict(rows [][]float64) []int {
	return argmax(m.PredictProba(rows))
}
