package usecase

import (
	"context"
	"time"

	"FinSense/pkg/logger"
)

// VerificationSweep periodically verifies due predictions of every symbol
// with a known last price.
type VerificationSweep struct {
	book     *PriceBook
	verifier Verifier
	lookback time.Duration
	interval time.Duration
	l        *logger.Logger
}

func NewVerificationSweep(book *PriceBook, verifier Verifier, lookback, interval time.Duration, l *logger.Logger) *VerificationSweep {
	if l == nil {
		l = logger.Nop()
	}
	return &VerificationSweep{book: book, verifier: verifier, lookback: lookback, interval: interval, l: l}
}

// SweepOnce returns how many predictions were verified.
func (s *VerificationSweep) SweepOnce(ctx context.Context) int {
	total := 0
	for _, q := range s.book.Snapshot() {
		if ctx.Err() != nil {
			break
		}
		sum := s.verifier.Verify(ctx, q.Symbol, q.Price, s.lookback)
		total += sum.Verified
	}
	return total
}

func (s *VerificationSweep) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepOnce(ctx); n > 0 {
				s.l.Info("verification sweep done", logger.Int("verified", n))
			}
		}
	}
}
