package ml

import (
	"context"
	"fmt"

	"FinSense/internal/domain/service"
)

// VotingEnsemble averages member probabilities with fixed weights (soft voting).
type VotingEnsemble struct {
	Boosting       *GradientBoosting `json:"gradient_boosting"`
	Forest         *RandomForest     `json:"random_forest"`
	BoostingWeight float64           `json:"boosting_weight"`
	ForestWeight   float64           `json:"forest_weight"`
}

var _ service.Classifier = (*VotingEnsemble)(nil)

func NewVotingEnsemble(bp BoostingParams, fp ForestParams, boostingWeight, forestWeight float64) *VotingEnsemble {
	return &VotingEnsemble{
		Boosting:       NewGradientBoosting(bp),
		Forest:         NewRandomForest(fp),
		BoostingWeight: boostingWeight,
		ForestWeight:   forestWeight,
	}
}

func (e *VotingEnsemble) Name() string { return "voting_ensemble" }

func (e *VotingEnsemble) Fit(ctx context.Context, rows [][]float64, labels []int) error {
	if err := e.Boosting.Fit(ctx, rows, labels); err != nil {
		return err
	}
	return e.Forest.Fit(ctx, rows, labels)
}

func (e *VotingEnsemble) PredictProba(rows [][]float64) [][]float64 {
	total := e.BoostingWeight + e.ForestWeight
	if total <= 0 {
		total = 1
	}
	bp := e.Boosting.PredictProba(rows)
	fp := e.Forest.PredictProba(rows)
	out := make([][]float64, len(rows))
	for i := range rows {
		up := (e.BoostingWeight*bp[i][1] + e.ForestWeight*fp[i][1]) / total
		out[i] = []float64{1 - up, up}
	}
	return out
}

func (e *VotingEnsemble) Predict(rows [][]float64) []int {
	return argmax(e.PredictProba(rows))
}

// Validate reports whether a decoded ensemble can serve predictions.
func (e *VotingEnsemble) Validate() error {
	if e == nil || e.Boosting == nil || e.Forest == nil {
		return fmt.Errorf("ensemble is incomplete")
	}
	if len(e.Boosting.Trees) == 0 || len(e.Forest.Trees) == 0 {
		return fmt.Errorf("ensemble has no trees")
	}
	return nil
}

func accuracy(pred, labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	hit := 0
	for i := range labels {
		if pred[i] == labels[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(labels))
}
