package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/pkg/logger"
)

// TrainerOption configures Trainer.
type TrainerOption func(*TrainerConfig)

// TrainerConfig holds split, validation and model settings.
type TrainerConfig struct {
	TestSize       float64
	Seed           int64
	CVFolds        int
	Chronological  bool
	MinRows        int
	Boosting       BoostingParams
	Forest         ForestParams
	BoostingWeight float64
	ForestWeight   float64
}

func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		TestSize:       0.2,
		Seed:           42,
		CVFolds:        5,
		MinRows:        100,
		Boosting:       DefaultBoostingParams(),
		Forest:         DefaultForestParams(),
		BoostingWeight: 0.6,
		ForestWeight:   0.4,
	}
}

// Artifacts is everything needed to persist and serve a trained model.
type Artifacts struct {
	Model        *VotingEnsemble
	Scaler       *StandardScaler
	FeatureNames []string
	Result       models.TrainingResult
}

// Trainer fits the voting ensemble and evaluates it.
type Trainer struct {
	cfg TrainerConfig
	log *logger.Logger
	now func() time.Time
}

func NewTrainer(l *logger.Logger, opts ...TrainerOption) *Trainer {
	cfg := DefaultTrainerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Trainer{cfg: cfg, log: l, now: time.Now}
}

func (t *Trainer) Config() TrainerConfig { return t.cfg }

// Train splits rows, scales them, optionally tunes, cross-validates and fits the final ensemble.
func (t *Trainer) Train(ctx context.Context, names []string, rows [][]float64, labels []int, tuning bool) (*Artifacts, error) {
	start := t.now()
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("train: %d rows but %d labels", len(rows), len(labels))
	}
	minRows := t.cfg.MinRows
	if minRows < 2*t.cfg.CVFolds {
		minRows = 2 * t.cfg.CVFolds
	}
	if len(rows) < minRows {
		return nil, fmt.Errorf("train: %d rows, need %d: %w", len(rows), minRows, repository.ErrInsufficientTrainingData)
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	var trainIdx, testIdx []int
	if t.cfg.Chronological {
		trainIdx, testIdx = chronologicalSplit(len(rows), t.cfg.TestSize)
	} else {
		trainIdx, testIdx = stratifiedSplit(labels, t.cfg.TestSize, rng)
	}
	trainY := pick(labels, trainIdx)
	testY := pick(labels, testIdx)
	if !hasBothClasses(trainY) {
		return nil, fmt.Errorf("train: training split has a single class: %w", repository.ErrInsufficientTrainingData)
	}

	scaler, err := FitScaler(names, pickRows(rows, trainIdx))
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	trainX, err := scaler.Transform(pickRows(rows, trainIdx))
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	testX, err := scaler.Transform(pickRows(rows, testIdx))
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	bp, fp := t.cfg.Boosting, t.cfg.Forest
	if tuning {
		bp, fp, err = t.tune(ctx, trainX, trainY)
		if err != nil {
			return nil, err
		}
	}

	cvMean, cvStd, err := t.crossValidate(ctx, trainX, trainY, bp, fp)
	if err != nil {
		return nil, err
	}

	model := NewVotingEnsemble(bp, fp, t.cfg.BoostingWeight, t.cfg.ForestWeight)
	if err := model.Fit(ctx, trainX, trainY); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	importance := make(map[string]float64, len(names))
	for i, v := range model.Boosting.FeatureImportance() {
		if i < len(names) {
			importance[names[i]] = v
		}
	}

	result := models.TrainingResult{
		TrainAccuracy:     accuracy(model.Predict(trainX), trainY),
		TestAccuracy:      accuracy(model.Predict(testX), testY),
		CVMean:            cvMean,
		CVStd:             cvStd,
		FeatureImportance: importance,
		TrainingSamples:   len(trainIdx),
		TestSamples:       len(testIdx),
		TrainedAt:         t.now(),
		Params: map[string]float64{
			"gbt_n_estimators":  float64(bp.NEstimators),
			"gbt_max_depth":     float64(bp.MaxDepth),
			"gbt_learning_rate": bp.LearningRate,
			"rf_n_estimators":   float64(fp.NEstimators),
			"rf_max_depth":      float64(fp.MaxDepth),
			"boosting_weight":   t.cfg.BoostingWeight,
			"forest_weight":     t.cfg.ForestWeight,
			"test_size":         t.cfg.TestSize,
			"cv_folds":          float64(t.cfg.CVFolds),
		},
	}
	result.Duration = result.TrainedAt.Sub(start)

	t.log.Info("model training ok",
		logger.String("category", "ml_training"),
		logger.Int("train_samples", result.TrainingSamples),
		logger.Int("test_samples", result.TestSamples),
		logger.Float64("train_accuracy", result.TrainAccuracy),
		logger.Float64("test_accuracy", result.TestAccuracy),
		logger.Float64("cv_mean", cvMean),
		logger.Float64("cv_std", cvStd),
		logger.Bool("tuned", tuning),
		logger.Duration("duration_ms", result.Duration),
	)

	return &Artifacts{
		Model:        model,
		Scaler:       scaler,
		FeatureNames: append([]string(nil), names...),
		Result:       result,
	}, nil
}

func (t *Trainer) crossValidate(ctx context.Context, x [][]float64, y []int, bp BoostingParams, fp ForestParams) (float64, float64, error) {
	k := t.cfg.CVFolds
	if k < 2 {
		return 0, 0, nil
	}
	folds := stratifiedFolds(y, k, rand.New(rand.NewSource(t.cfg.Seed)))
	scores := make([]float64, 0, k)
	for f := 0; f < k; f++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, fmt.Errorf("cross validate: %w", err)
		}
		var trIdx, vaIdx []int
		for i, fold := range folds {
			if fold == f {
				vaIdx = append(vaIdx, i)
			} else {
				trIdx = append(trIdx, i)
			}
		}
		trY := pick(y, trIdx)
		if len(vaIdx) == 0 || !hasBothClasses(trY) {
			continue
		}
		m := NewVotingEnsemble(bp, fp, t.cfg.BoostingWeight, t.cfg.ForestWeight)
		if err := m.Fit(ctx, pickRows(x, trIdx), trY); err != nil {
			return 0, 0, fmt.Errorf("cross validate: %w", err)
		}
		scores = append(scores, accuracy(m.Predict(pickRows(x, vaIdx)), pick(y, vaIdx)))
	}
	mean, std := meanStd(scores)
	return mean, std, nil
}

// tune scores a small grid around the configured parameters and keeps the best CV mean.
func (t *Trainer) tune(ctx context.Context, x [][]float64, y []int) (BoostingParams, ForestParams, error) {
	base := struct {
		b BoostingParams
		f ForestParams
	}{t.cfg.Boosting, t.cfg.Forest}

	shallow := base
	shallow.b.MaxDepth = 4
	slow := base
	slow.b.LearningRate = base.b.LearningRate / 2
	slow.b.NEstimators = base.b.NEstimators * 2
	pruned := base
	pruned.f.MaxDepth = 8
	pruned.f.MinSamplesLeaf = 2

	candidates := []struct {
		b BoostingParams
		f ForestParams
	}{base, shallow, slow, pruned}

	best, bestScore := 0, -1.0
	for i, c := range candidates {
		score, _, err := t.crossValidate(ctx, x, y, c.b, c.f)
		if err != nil {
			return BoostingParams{}, ForestParams{}, err
		}
		t.log.Debug("tuning candidate scored",
			logger.String("category", "ml_training"),
			logger.Int("candidate", i),
			logger.Int("gbt_max_depth", c.b.MaxDepth),
			logger.Float64("gbt_learning_rate", c.b.LearningRate),
			logger.Int("rf_max_depth", c.f.MaxDepth),
			logger.Float64("cv_mean", score),
		)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return candidates[best].b, candidates[best].f, nil
}

func stratifiedSplit(labels []int, testSize float64, rng *rand.Rand) (train, test []int) {
	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(math.Round(float64(len(idx)) * testSize))
		if nTest == 0 && testSize > 0 && len(idx) > 1 {
			nTest = 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// chronologicalSplit keeps the most recent rows for testing.
func chronologicalSplit(n int, testSize float64) (train, test []int) {
	nTest := int(math.Ceil(float64(n)*testSize - 1e-9))
	for i := 0; i < n; i++ {
		if i < n-nTest {
			train = append(train, i)
		} else {
			test = append(test, i)
		}
	}
	return train, test
}

// stratifiedFolds assigns each row a fold so every fold keeps the class ratio.
func stratifiedFolds(labels []int, k int, rng *rand.Rand) []int {
	folds := make([]int, len(labels))
	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for pos, i := range idx {
			folds[i] = pos % k
		}
	}
	return folds
}

func pick(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}

func pickRows(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func hasBothClasses(labels []int) bool {
	var zero, one bool
	for _, y := range labels {
		if y == 1 {
			one = true
		} else {
			zero = true
		}
	}
	return zero && one
}

func meanStd(v []float64) (float64, float64) {
	if len(v) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	variance := 0.0
	for _, x := range v {
		variance += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(variance / float64(len(v)))
}

// WithTestSize sets the held-out fraction.
func WithTestSize(v float64) TrainerOption {
	return func(c *TrainerConfig) {
		c.TestSize = v
	}
}

// WithSeed sets the split and forest seed.
func WithSeed(seed int64) TrainerOption {
	return func(c *TrainerConfig) {
		c.Seed = seed
		c.Forest.Seed = seed
	}
}

// WithCVFolds sets the number of cross-validation folds (0 disables CV).
func WithCVFolds(k int) TrainerOption {
	return func(c *TrainerConfig) {
		c.CVFolds = k
	}
}

// WithChronologicalSplit holds out the most recent rows instead of a random sample.
func WithChronologicalSplit(enabled bool) TrainerOption {
	return func(c *TrainerConfig) {
		c.Chronological = enabled
	}
}

// WithMinRows sets the minimum number of labeled rows.
func WithMinRows(n int) TrainerOption {
	return func(c *TrainerConfig) {
		c.MinRows = n
	}
}

// WithBoosting overrides gradient boosting parameters.
func WithBoosting(p BoostingParams) TrainerOption {
	return func(c *TrainerConfig) {
		c.Boosting = p
	}
}

// WithForest overrides random forest parameters.
func WithForest(p ForestParams) TrainerOption {
	return func(c *TrainerConfig) {
		c.Forest = p
	}
}

// WithWeights sets the soft voting weights.
func WithWeights(boosting, forest float64) TrainerOption {
	return func(c *TrainerConfig) {
		c.BoostingWeight = boosting
		c.ForestWeight = forest
	}
}
