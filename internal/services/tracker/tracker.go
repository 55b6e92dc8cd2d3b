package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/pkg/logger"

	"github.com/google/uuid"
)

const (
	// DefaultOutcomeThresholdPct separates a directional move from noise, in percent.
	DefaultOutcomeThresholdPct = 0.05
	// DefaultUnverifiedThreshold is the backlog above which retraining is suggested.
	DefaultUnverifiedThreshold = 200

	EventPredictionCreated  = "prediction.created"
	EventPredictionVerified = "prediction.verified"
)

// Option configures Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithThreshold sets the outcome threshold in percent.
func WithThreshold(pct float64) Option {
	return func(t *Tracker) {
		if pct > 0 {
			t.thresholdPct = pct
		}
	}
}

// WithWindows overrides verification windows per timeframe.
func WithWindows(windows map[string]time.Duration) Option {
	return func(t *Tracker) {
		for tf, w := range windows {
			if w > 0 {
				t.windows[repository.Timeframe(tf)] = w
			}
		}
	}
}

func WithUnverifiedThreshold(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.unverifiedThreshold = n
		}
	}
}

func WithPublisher(p repository.EventPublisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

func WithMetrics(m repository.Metrics) Option {
	return func(t *Tracker) {
		if m != nil {
			t.metrics = m
		}
	}
}

// Tracker is the single writer of prediction state.
type Tracker struct {
	store               repository.PredictionStore
	publisher           repository.EventPublisher
	metrics             repository.Metrics
	log                 *logger.Logger
	now                 func() time.Time
	thresholdPct        float64
	unverifiedThreshold int
	windows             map[repository.Timeframe]time.Duration
}

func New(store repository.PredictionStore, l *logger.Logger, opts ...Option) *Tracker {
	if l == nil {
		l = logger.Nop()
	}
	t := &Tracker{
		store:               store,
		metrics:             repository.NoopMetrics{},
		log:                 l,
		now:                 time.Now,
		thresholdPct:        DefaultOutcomeThresholdPct,
		unverifiedThreshold: DefaultUnverifiedThreshold,
		windows:             make(map[repository.Timeframe]time.Duration),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the verification delay for a timeframe.
func (t *Tracker) Window(tf string) time.Duration {
	if w, ok := t.windows[repository.Timeframe(tf)]; ok {
		return w
	}
	return repository.Timeframe(tf).VerificationWindow()
}

// Store records a new unverified prediction and returns its id.
func (t *Tracker) Store(ctx context.Context, v *models.Verdict) (string, error) {
	p := &models.Prediction{
		ID:           uuid.NewString(),
		Symbol:       v.Symbol,
		Timeframe:    v.Timeframe,
		Sentiment:    v.Sentiment,
		Confidence:   v.Confidence,
		Price:        v.Price,
		ModelVersion: v.ModelVersion,
		CreatedAt:    t.now().UTC(),
	}
	if err := t.store.CreatePrediction(ctx, p); err != nil {
		t.log.Error("tracker store failed",
			logger.String("category", "tracker"),
			logger.String("symbol", v.Symbol),
			logger.Error(err),
		)
		return "", fmt.Errorf("store prediction: %w: %v", repository.ErrPersistenceFailure, err)
	}
	t.metrics.RecordPrediction(p.Symbol, p.Timeframe, string(p.Sentiment))
	t.publish(ctx, EventPredictionCreated, p)
	t.log.Debug("tracker stored prediction",
		logger.String("category", "tracker"),
		logger.String("id", p.ID),
		logger.String("symbol", p.Symbol),
		logger.String("timeframe", p.Timeframe),
		logger.String("sentiment", string(p.Sentiment)),
	)
	return p.ID, nil
}

// Classify maps a percent change onto a sentiment using the outcome threshold.
func (t *Tracker) Classify(changePct float64) models.Sentiment {
	switch {
	case changePct > t.thresholdPct:
		return models.Bullish
	case changePct < -t.thresholdPct:
		return models.Bearish
	default:
		return models.Neutral
	}
}

// Verify settles every due prediction for symbol at the current price.
// Predictions younger than their window are left untouched. lookback > 0
// limits the scan to predictions created within it.
func (t *Tracker) Verify(ctx context.Context, symbol string, price float64, lookback time.Duration) models.VerificationSummary {
	sum := models.VerificationSummary{Symbol: symbol, Price: price}
	if price <= 0 {
		return sum
	}
	now := t.now().UTC()
	f := models.Unverified(symbol)
	if lookback > 0 {
		f.CreatedSince = now.Add(-lookback)
	}
	preds, err := t.store.GetPredictions(ctx, f)
	if err != nil {
		t.log.Error("tracker verify scan failed",
			logger.String("category", "tracker"),
			logger.String("symbol", symbol),
			logger.Error(err),
		)
		return sum
	}

	for _, p := range preds {
		sum.Checked++
		if now.Sub(p.CreatedAt) < t.Window(p.Timeframe) || p.Price <= 0 {
			sum.Skipped++
			continue
		}
		change := (price - p.Price) / p.Price * 100
		actual := t.Classify(change)
		v := models.Verification{
			ActualSentiment: actual,
			Price:           price,
			ChangePct:       change,
			Correct:         actual == p.Sentiment,
			VerifiedAt:      now,
		}
		if err := t.store.VerifyPrediction(ctx, p.ID, v); err != nil {
			if errors.Is(err, repository.ErrAlreadyVerified) {
				sum.Conflicts++
				continue
			}
			sum.Failed++
			t.log.Warn("tracker verify write failed",
				logger.String("category", "tracker"),
				logger.String("id", p.ID),
				logger.Error(err),
			)
			continue
		}
		sum.Verified++
		if v.Correct {
			sum.Correct++
		}
		p.Apply(v)
		t.metrics.RecordVerification(symbol, v.Correct)
		t.publish(ctx, EventPredictionVerified, p)
	}

	if sum.Verified > 0 || sum.Failed > 0 {
		t.log.Info("tracker verify ok",
			logger.String("category", "tracker"),
			logger.String("symbol", symbol),
			logger.Int("checked", sum.Checked),
			logger.Int("verified", sum.Verified),
			logger.Int("correct", sum.Correct),
			logger.Int("skipped", sum.Skipped),
			logger.Int("conflicts", sum.Conflicts),
			logger.Int("failed", sum.Failed),
		)
	}
	return sum
}

// RecentAccuracy aggregates predictions verified within the last days.
// An empty symbol covers every instrument.
func (t *Tracker) RecentAccuracy(ctx context.Context, symbol string, days int) models.AccuracyWindow {
	w := models.AccuracyWindow{
		Symbol:      symbol,
		PeriodDays:  days,
		BySentiment: make(map[models.Sentiment]models.SentimentAccuracy),
	}
	since := t.now().UTC().AddDate(0, 0, -days)
	preds, err := t.store.GetPredictions(ctx, models.VerifiedSince(symbol, since))
	if err != nil {
		t.log.Error("tracker accuracy query failed",
			logger.String("category", "tracker"),
			logger.String("symbol", symbol),
			logger.Error(err),
		)
		return w
	}
	for _, p := range preds {
		w.Total++
		s := w.BySentiment[p.Sentiment]
		s.Total++
		if p.Correct {
			w.Correct++
			s.Correct++
		}
		w.BySentiment[p.Sentiment] = s
	}
	w.Incorrect = w.Total - w.Correct
	if w.Total > 0 {
		w.Accuracy = float64(w.Correct) / float64(w.Total)
	}
	for k, s := range w.BySentiment {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
		w.BySentiment[k] = s
	}
	label := symbol
	if label == "" {
		label = "all"
	}
	t.metrics.RecordAccuracy(label, fmt.Sprintf("%dd", days), w.Accuracy)
	return w
}

// UnverifiedCount returns the size of the unverified backlog, or 0 on failure.
func (t *Tracker) UnverifiedCount(ctx context.Context, symbol string) int {
	n, err := t.store.CountPredictions(ctx, models.Unverified(symbol))
	if err != nil {
		t.log.Error("tracker count failed",
			logger.String("category", "tracker"),
			logger.Error(err),
		)
		return 0
	}
	return n
}

// NeedsRetraining returns the tracker's recommendation. Reasons accumulate.
func (t *Tracker) NeedsRetraining(ctx context.Context, minAccuracy float64, minPredictions, checkDays int) models.RetrainRecommendation {
	acc := t.RecentAccuracy(ctx, "", checkDays)
	rec := models.RetrainRecommendation{Accuracy: acc, Reasons: []string{}}

	if acc.Total < minPredictions {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("not enough predictions yet (%d/%d)", acc.Total, minPredictions))
	} else if acc.Accuracy < minAccuracy {
		rec.ShouldRetrain = true
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("accuracy %.1f%% below threshold %.1f%%", acc.Accuracy*100, minAccuracy*100))
	}

	rec.Unverified = t.UnverifiedCount(ctx, "")
	if rec.Unverified > t.unverifiedThreshold {
		rec.ShouldRetrain = true
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("%d unverified predictions accumulated", rec.Unverified))
	}
	return rec
}

// TrainingData returns verified predictions, newest first, or nil when fewer than min exist.
func (t *Tracker) TrainingData(ctx context.Context, min int) []*models.Prediction {
	verified := true
	preds, err := t.store.GetPredictions(ctx, models.PredictionFilter{Verified: &verified})
	if err != nil {
		t.log.Error("tracker training data query failed",
			logger.String("category", "tracker"),
			logger.Error(err),
		)
		return nil
	}
	if len(preds) < min {
		return nil
	}
	return preds
}

// List returns predictions matching f, newest first.
func (t *Tracker) List(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error) {
	preds, err := t.store.GetPredictions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w: %v", repository.ErrPersistenceFailure, err)
	}
	return preds, nil
}

func (t *Tracker) publish(ctx context.Context, event string, p *models.Prediction) {
	if t.publisher == nil {
		return
	}
	if err := t.publisher.Publish(ctx, event, p.Symbol, p); err != nil {
		t.log.Warn("tracker event publish failed",
			logger.String("category", "tracker"),
			logger.String("event", event),
			logger.Error(err),
		)
	}
}
