package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinSense/internal/domain/models"
	drepo "FinSense/internal/domain/repository"
	mid "FinSense/internal/middleware"
	"FinSense/pkg/logger"
)

// Verifier checks due predictions of a symbol against a price.
type Verifier interface {
	Verify(ctx context.Context, symbol string, price float64, lookback time.Duration) models.VerificationSummary
}

// QuoteProcessor records quotes in the price book and verifies due
// predictions, at most once per verifyEvery for each symbol.
type QuoteProcessor struct {
	book        *PriceBook
	verifier    Verifier
	metrics     drepo.Metrics
	l           *logger.Logger
	lookback    time.Duration
	verifyEvery time.Duration
	now         func() time.Time

	mu         sync.Mutex
	lastVerify map[string]time.Time
}

func NewQuoteProcessor(book *PriceBook, verifier Verifier, metrics drepo.Metrics, l *logger.Logger, lookback, verifyEvery time.Duration) *QuoteProcessor {
	if metrics == nil {
		metrics = drepo.NoopMetrics{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &QuoteProcessor{
		book:        book,
		verifier:    verifier,
		metrics:     metrics,
		l:           l,
		lookback:    lookback,
		verifyEvery: verifyEvery,
		now:         time.Now,
		lastVerify:  make(map[string]time.Time),
	}
}

func (p *QuoteProcessor) Process(ctx context.Context, q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	p.book.Update(*q)
	p.metrics.RecordLastPrice(q.Symbol, q.Price)

	if p.verifier == nil || !p.due(q.Symbol) {
		return nil
	}
	sum := p.verifier.Verify(ctx, q.Symbol, q.Price, p.lookback)
	if sum.Verified > 0 || sum.Failed > 0 {
		p.l.Info("quote verification done",
			logger.String("symbol", q.Symbol),
			logger.Float64("price", q.Price),
			logger.Int("verified", sum.Verified),
			logger.Int("failed", sum.Failed),
		)
	}
	return nil
}

func (p *QuoteProcessor) due(symbol string) bool {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastVerify[symbol]; ok && now.Sub(last) < p.verifyEvery {
		return false
	}
	p.lastVerify[symbol] = now
	return true
}

var _ mid.QuoteProc = (*QuoteProcessor)(nil)
