package usecase

import (
	"context"
	"fmt"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
)

// BarsUseCase serves raw bars from the feed.
type BarsUseCase struct {
	feed domrepo.BarFeed
}

func NewBarsUseCase(feed domrepo.BarFeed) *BarsUseCase {
	return &BarsUseCase{feed: feed}
}

type GetBarsParams struct {
	Symbol    string
	Timeframe string
	Count     int
}

type GetBarsResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Count     int          `json:"count"`
	Bars      []models.Bar `json:"bars"`
}

func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.Count <= 0 {
		p.Count = 500
	}
	if p.Count > 50000 {
		p.Count = 50000
	}
	tf := domrepo.NormalizeTimeframe(p.Timeframe)
	bars, err := uc.feed.GetBars(ctx, p.Symbol, tf, p.Count)
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	return &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(tf),
		Count:     len(bars),
		Bars:      bars,
	}, nil
}
