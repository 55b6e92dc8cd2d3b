package learner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/internal/services/features"
	"FinSense/internal/services/modelmgr"
	"FinSense/pkg/logger"
)

const (
	EventModelRetrained = "model.retrained"

	lockKey = "finsense:retrain"
)

// ErrRetrainInProgress is reported when another retrain holds the lock.
var ErrRetrainInProgress = errors.New("retrain already in progress")

// Recommender is the accuracy side of the retrain decision.
type Recommender interface {
	NeedsRetraining(ctx context.Context, minAccuracy float64, minPredictions, checkDays int) models.RetrainRecommendation
	RecentAccuracy(ctx context.Context, symbol string, days int) models.AccuracyWindow
}

// ProgressFunc receives the current stage and completion in [0,1].
type ProgressFunc func(stage string, progress float64)

type Config struct {
	AutoRetrain     bool
	CheckInterval   time.Duration
	MinAccuracy     float64
	MinPredictions  int
	CheckDays       int
	MaxModelAge     time.Duration
	Symbol          string
	Timeframe       string
	NumBars         int
	MinTrainingRows int
	TrainTimeout    time.Duration
	Tuning          bool
	LockTTL         time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:   time.Hour,
		MinAccuracy:     0.70,
		MinPredictions:  100,
		CheckDays:       7,
		MaxModelAge:     24 * time.Hour,
		Symbol:          "EURUSD",
		Timeframe:       "H1",
		NumBars:         5000,
		MinTrainingRows: 100,
		TrainTimeout:    30 * time.Minute,
		LockTTL:         time.Hour,
	}
}

type Option func(*Learner)

func WithConfig(cfg Config) Option {
	return func(l *Learner) { l.cfg = cfg }
}

// WithLocker guards retraining across processes. Without one, an in-process lock is used.
func WithLocker(lk repository.Locker) Option {
	return func(l *Learner) {
		if lk != nil {
			l.locker = lk
		}
	}
}

func WithPublisher(p repository.EventPublisher) Option {
	return func(l *Learner) { l.publisher = p }
}

func WithMetrics(m repository.Metrics) Option {
	return func(l *Learner) {
		if m != nil {
			l.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// Learner decides when to retrain and runs retraining. It is the only
// component that triggers training.
type Learner struct {
	cfg       Config
	rec       Recommender
	manager   *modelmgr.Manager
	feed      repository.BarFeed
	engineer  *features.Engineer
	locker    repository.Locker
	publisher repository.EventPublisher
	metrics   repository.Metrics
	history   *History
	log       *logger.Logger
	now       func() time.Time
}

func New(rec Recommender, manager *modelmgr.Manager, feed repository.BarFeed, engineer *features.Engineer, l *logger.Logger, opts ...Option) *Learner {
	if l == nil {
		l = logger.Nop()
	}
	ln := &Learner{
		cfg:      DefaultConfig(),
		rec:      rec,
		manager:  manager,
		feed:     feed,
		engineer: engineer,
		locker:   newLocalLock(),
		metrics:  repository.NoopMetrics{},
		history:  NewHistory(manager.Dir()),
		log:      l,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ln)
	}
	return ln
}

func (l *Learner) Config() Config { return l.cfg }

func (l *Learner) History() *History { return l.history }

// ShouldRetrain merges the tracker recommendation with the model age rule.
func (l *Learner) ShouldRetrain(ctx context.Context) models.RetrainDecision {
	rec := l.rec.NeedsRetraining(ctx, l.cfg.MinAccuracy, l.cfg.MinPredictions, l.cfg.CheckDays)
	d := models.RetrainDecision{
		ShouldRetrain:  rec.ShouldRetrain,
		Reasons:        append([]string{}, rec.Reasons...),
		Recommendation: rec,
		ActiveVersion:  l.manager.ActiveVersion(),
		CheckedAt:      l.now().UTC(),
	}

	last, src := l.manager.LastTrainingTime()
	if src == models.TrainingTimeNone {
		d.ShouldRetrain = true
		d.Reasons = append(d.Reasons, "no trained model found")
		return d
	}
	age := d.CheckedAt.Sub(last)
	d.LastTraining = &last
	d.DaysSinceTraining = age.Hours() / 24
	if age >= l.cfg.MaxModelAge {
		d.ShouldRetrain = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("last training was %d days ago", int(d.DaysSinceTraining)))
	}
	return d
}

// ExecuteRetraining fetches fresh bars, trains, persists and promotes a new
// version. Failures, panics included, are reported in the result.
func (l *Learner) ExecuteRetraining(ctx context.Context, p models.RetrainParams, progress ProgressFunc) (res *models.RetrainResult) {
	p = l.withDefaults(p)
	res = &models.RetrainResult{
		Symbol:          p.Symbol,
		Timeframe:       p.Timeframe,
		Trigger:         p.Trigger,
		PreviousVersion: l.manager.ActiveVersion(),
		StartedAt:       l.now().UTC(),
	}
	if progress == nil {
		progress = func(string, float64) {}
	}

	// a run rejected because another holds the lock never started
	var rejected bool
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("retraining panicked",
				logger.String("category", "ml_training"),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = l.now().UTC().Sub(res.StartedAt)
		if rejected {
			return
		}
		l.metrics.RecordTraining(string(p.Trigger), res.Success, res.Duration.Seconds())
		if res.Success {
			l.metrics.RecordModelAccuracy(res.Version, res.TestAccuracy)
		}
	}()

	if err := l.retrain(ctx, p, res, progress); err != nil {
		res.Success = false
		res.Error = err.Error()
		if errors.Is(err, ErrRetrainInProgress) {
			rejected = true
			l.log.Warn("retraining skipped",
				logger.String("category", "ml_training"),
				logger.String("trigger", string(p.Trigger)),
				logger.Error(err),
			)
			return res
		}
		l.log.Error("retraining failed",
			logger.String("category", "ml_training"),
			logger.String("symbol", p.Symbol),
			logger.String("timeframe", p.Timeframe),
			logger.String("trigger", string(p.Trigger)),
			logger.Error(err),
		)
		return res
	}
	return res
}

func (l *Learner) retrain(ctx context.Context, p models.RetrainParams, res *models.RetrainResult, progress ProgressFunc) error {
	ok, err := l.locker.TryLock(ctx, lockKey, l.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire retrain lock: %w", err)
	}
	if !ok {
		return ErrRetrainInProgress
	}
	defer func() {
		if err := l.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			l.log.Warn("release retrain lock failed", logger.String("category", "ml_training"), logger.Error(err))
		}
	}()

	l.log.Info("retraining started",
		logger.String("category", "ml_training"),
		logger.String("symbol", p.Symbol),
		logger.String("timeframe", p.Timeframe),
		logger.Int("bars", p.Bars),
		logger.String("trigger", string(p.Trigger)),
	)

	progress("fetching", 0.05)
	bars, err := l.feed.GetBars(ctx, p.Symbol, repository.Timeframe(p.Timeframe), p.Bars)
	if err != nil {
		return fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) < features.MinBars {
		return fmt.Errorf("fetch bars: got %d, need %d: %w", len(bars), features.MinBars, repository.ErrDataUnavailable)
	}

	progress("features", 0.2)
	table, err := l.engineer.Create(bars)
	if err != nil {
		return fmt.Errorf("build features: %w", err)
	}
	table, labels := features.Labels(table, bars)
	if table.Len() < l.cfg.MinTrainingRows {
		return fmt.Errorf("build features: %d rows, need %d: %w", table.Len(), l.cfg.MinTrainingRows, repository.ErrInsufficientTrainingData)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	progress("training", 0.35)
	version := l.manager.GenerateVersion(string(p.Trigger))
	tr, err := l.manager.Train(ctx, table, labels, version, p.Tuning)
	if err != nil {
		return err
	}

	progress("recording", 0.9)
	res.Success = true
	res.Version = tr.Version
	res.TestAccuracy = tr.TestAccuracy
	res.CVScore = tr.CVMean
	res.TrainingSamples = tr.TrainingSamples
	if res.PreviousVersion != "" {
		if prev, err := l.manager.Metadata(res.PreviousVersion); err == nil {
			imp := tr.TestAccuracy - prev.TestAccuracy
			res.Improvement = &imp
		}
	}

	event := models.RetrainEvent{
		Timestamp: l.now().UTC(),
		Version:   tr.Version,
		Accuracy:  tr.TestAccuracy,
		CVScore:   tr.CVMean,
		Trigger:   p.Trigger,
		Symbol:    p.Symbol,
		Timeframe: p.Timeframe,
		Samples:   tr.TrainingSamples,
	}
	if err := l.history.Append(event); err != nil {
		l.log.Warn("append retraining history failed", logger.String("category", "ml_training"), logger.Error(err))
	}
	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, EventModelRetrained, tr.Version, res); err != nil {
			l.log.Warn("publish retrain event failed", logger.String("category", "ml_training"), logger.Error(err))
		}
	}

	progress("done", 1)
	l.log.Info("retraining completed",
		logger.String("category", "ml_training"),
		logger.String("version", tr.Version),
		logger.Float64("accuracy", tr.TestAccuracy),
		logger.Float64("cv_score", tr.CVMean),
		logger.Int("samples", tr.TrainingSamples),
	)
	return nil
}

func (l *Learner) withDefaults(p models.RetrainParams) models.RetrainParams {
	if p.Symbol == "" {
		p.Symbol = l.cfg.Symbol
	}
	if p.Timeframe == "" {
		p.Timeframe = l.cfg.Timeframe
	}
	p.Timeframe = string(repository.NormalizeTimeframe(p.Timeframe))
	if p.Bars <= 0 {
		p.Bars = l.cfg.NumBars
	}
	if p.Trigger == "" {
		p.Trigger = models.TriggerManual
	}
	return p
}

// CheckAndRetrain retrains when the decision says so. It returns nil when no
// retraining was needed.
func (l *Learner) CheckAndRetrain(ctx context.Context) *models.RetrainResult {
	d := l.ShouldRetrain(ctx)
	if !d.ShouldRetrain {
		l.log.Debug("retraining not needed", logger.String("category", "ml_training"))
		return nil
	}
	l.log.Info("retraining recommended",
		logger.String("category", "ml_training"),
		logger.Strings("reasons", d.Reasons),
	)
	if l.cfg.TrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.TrainTimeout)
		defer cancel()
	}
	return l.ExecuteRetraining(ctx, models.RetrainParams{
		Tuning:  l.cfg.Tuning,
		Trigger: models.TriggerAutomatic,
	}, nil)
}

// LearningStats summarizes accuracy, training age and model versions.
func (l *Learner) LearningStats(ctx context.Context) models.LearningStats {
	w7 := l.rec.RecentAccuracy(ctx, "", 7)
	w30 := l.rec.RecentAccuracy(ctx, "", 30)
	s := models.LearningStats{
		Accuracy7d:         w7.Accuracy,
		Accuracy30d:        w30.Accuracy,
		Predictions7d:      w7.Total,
		Predictions30d:     w30.Total,
		ActiveVersion:      l.manager.ActiveVersion(),
		AutoRetrainEnabled: l.cfg.AutoRetrain,
	}
	last, src := l.manager.LastTrainingTime()
	s.TrainingTimeSource = src
	if src != models.TrainingTimeNone {
		s.LastTraining = &last
		s.DaysSinceTraining = l.now().Sub(last).Hours() / 24
	}
	if versions, err := l.manager.ListVersions(); err == nil {
		s.ModelVersions = len(versions)
		if len(versions) > 0 {
			s.LatestVersion = versions[0].Version
		}
	}
	if ev, err := l.history.Last(); err == nil {
		s.LastRetrain = ev
	}
	return s
}

// Run checks on every tick until ctx ends. It returns immediately when
// automatic retraining is disabled.
func (l *Learner) Run(ctx context.Context) {
	if !l.cfg.AutoRetrain || l.cfg.CheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(l.cfg.CheckInterval)
	defer ticker.Stop()
	l.log.Info("learner scheduler started",
		logger.String("category", "ml_training"),
		logger.Duration("interval", l.cfg.CheckInterval),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if res := l.CheckAndRetrain(ctx); res != nil && !res.Success {
				l.log.Warn("scheduled retraining failed",
					logger.String("category", "ml_training"),
					logger.String("error", res.Error),
				)
			}
		}
	}
}
