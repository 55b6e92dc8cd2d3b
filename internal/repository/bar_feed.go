package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	"FinSense/pkg/cache"
	xhttp "FinSense/pkg/http"
	applogger "FinSense/pkg/logger"
)

// HTTPBarFeed pulls bars from a market-data gateway:
// GET <base>/bars?symbol=EURUSD&timeframe=H1&count=500.
type HTTPBarFeed struct {
	base   string
	client *xhttp.Client
	l      *applogger.Logger
}

var _ domrepo.BarFeed = (*HTTPBarFeed)(nil)

func NewHTTPBarFeed(baseURL string, client *xhttp.Client, l *applogger.Logger) *HTTPBarFeed {
	if l == nil {
		l = applogger.Nop()
	}
	return &HTTPBarFeed{base: strings.TrimRight(baseURL, "/"), client: client, l: l}
}

type barDTO struct {
	Time       time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"tick_volume"`
	Spread     float64   `json:"spread"`
	RealVolume float64   `json:"real_volume"`
}

type barsResponse struct {
	Symbol string   `json:"symbol"`
	Bars   []barDTO `json:"bars"`
	Error  string   `json:"error,omitempty"`
}

func (f *HTTPBarFeed) GetBars(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, error) {
	start := time.Now()
	var resp barsResponse
	err := f.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    f.base + "/bars",
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"timeframe": {string(tf)},
			"count":     {strconv.Itoa(count)},
		},
	}, &resp)
	if err != nil {
		f.l.Error("bar feed request error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars %s %s: %w: %v", symbol, tf, domrepo.ErrDataUnavailable, err)
	}
	if resp.Error != "" || len(resp.Bars) == 0 {
		return nil, fmt.Errorf("get bars %s %s: %w: %s", symbol, tf, domrepo.ErrDataUnavailable, resp.Error)
	}

	out := make([]models.Bar, len(resp.Bars))
	for i, b := range resp.Bars {
		out[i] = models.Bar{
			Time:       b.Time.UTC(),
			Symbol:     symbol,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			Spread:     b.Spread,
			RealVolume: b.RealVolume,
		}
	}
	f.l.Debug("bar feed ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// CachedBarFeed memoizes another feed for a short TTL so repeated analysis of
// the same symbol does not hit the source each time.
type CachedBarFeed struct {
	next  domrepo.BarFeed
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

var _ domrepo.BarFeed = (*CachedBarFeed)(nil)

func NewCachedBarFeed(next domrepo.BarFeed, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedBarFeed {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedBarFeed{next: next, cache: c, ttl: ttl, l: l}
}

func (f *CachedBarFeed) GetBars(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, error) {
	if f.cache == nil || f.ttl <= 0 {
		return f.next.GetBars(ctx, symbol, tf, count)
	}
	key := cache.Key("bars", symbol, tf, count)
	var bars []models.Bar
	err := f.cache.Get(ctx, key, &bars)
	if err == nil && len(bars) > 0 {
		return bars, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		f.l.Warn("bar cache get failed", applogger.String("key", key), applogger.Error(err))
	}

	bars, err = f.next.GetBars(ctx, symbol, tf, count)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Set(ctx, key, bars, f.ttl); err != nil {
		f.l.Warn("bar cache set failed", applogger.String("key", key), applogger.Error(err))
	}
	return bars, nil
}
