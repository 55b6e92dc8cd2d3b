package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	"FinSense/internal/services/sentiment"
	"FinSense/pkg/logger"
)

// Analyzer produces a verdict from bars of one timeframe.
type Analyzer interface {
	Analyze(symbol string, tf domrepo.Timeframe, bars []models.Bar) (*models.Verdict, error)
}

// PredictionRecorder stores a verdict as a prediction.
type PredictionRecorder interface {
	Store(ctx context.Context, v *models.Verdict) (string, error)
}

// AnalyzeUseCase fetches bars and runs the sentiment engine for one or
// several timeframes.
type AnalyzeUseCase struct {
	feed     domrepo.BarFeed
	engine   Analyzer
	recorder PredictionRecorder
	l        *logger.Logger
	timeout  time.Duration
	now      func() time.Time
}

func NewAnalyzeUseCase(feed domrepo.BarFeed, engine Analyzer, recorder PredictionRecorder, l *logger.Logger) *AnalyzeUseCase {
	if l == nil {
		l = logger.Nop()
	}
	return &AnalyzeUseCase{
		feed:     feed,
		engine:   engine,
		recorder: recorder,
		l:        l,
		timeout:  30 * time.Second,
		now:      time.Now,
	}
}

type AnalyzeParams struct {
	Symbol    string
	Timeframe string
	Bars      int
	Track     bool
}

type MultiTimeframeParams struct {
	Symbol     string
	Timeframes string
	Bars       int
	Track      bool
}

func (uc *AnalyzeUseCase) Analyze(ctx context.Context, p AnalyzeParams) (*models.Verdict, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	v, err := uc.analyzeOne(ctx, p.Symbol, domrepo.NormalizeTimeframe(p.Timeframe), p.Bars)
	if err != nil {
		return nil, err
	}
	if p.Track {
		uc.track(ctx, v)
	}
	return v, nil
}

// AnalyzeMultiTimeframe fetches every timeframe concurrently. A timeframe
// that fails is reported in Errors and left out of the agreement math.
func (uc *AnalyzeUseCase) AnalyzeMultiTimeframe(ctx context.Context, p MultiTimeframeParams) (*models.MultiTimeframeResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	tfs, err := domrepo.ParseTimeframes(p.Timeframes)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	verdicts := make([]*models.Verdict, len(tfs))
	errs := make(map[string]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range tfs {
		g.Go(func() error {
			v, err := uc.analyzeOne(gctx, p.Symbol, tf, p.Bars)
			if err != nil {
				mu.Lock()
				errs[string(tf)] = err.Error()
				mu.Unlock()
				return nil
			}
			verdicts[i] = v
			return nil
		})
	}
	_ = g.Wait()

	ok := make([]models.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v == nil {
			continue
		}
		if p.Track {
			uc.track(ctx, v)
		}
		ok = append(ok, *v)
	}
	if len(ok) == 0 {
		return nil, fmt.Errorf("analyze %s: no timeframe succeeded: %w", p.Symbol, domrepo.ErrDataUnavailable)
	}
	return sentiment.Combine(p.Symbol, ok, errs, uc.now()), nil
}

func (uc *AnalyzeUseCase) analyzeOne(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) (*models.Verdict, error) {
	bars, err := uc.feed.GetBars(ctx, symbol, tf, count)
	if err != nil {
		return nil, fmt.Errorf("get bars %s %s: %w", symbol, tf, err)
	}
	v, err := uc.engine.Analyze(symbol, tf, bars)
	if err != nil {
		return nil, fmt.Errorf("analyze %s %s: %w", symbol, tf, err)
	}
	return v, nil
}

// track stores the verdict. Storage failures are logged and leave the
// verdict without a prediction id.
func (uc *AnalyzeUseCase) track(ctx context.Context, v *models.Verdict) {
	if uc.recorder == nil {
		return
	}
	id, err := uc.recorder.Store(ctx, v)
	if err != nil {
		uc.l.Warn("track prediction failed",
			logger.String("symbol", v.Symbol),
			logger.String("timeframe", v.Timeframe),
			logger.Error(err),
		)
		return
	}
	v.PredictionID = id
}
