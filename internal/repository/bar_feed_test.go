package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	"FinSense/pkg/cache"
	xhttp "FinSense/pkg/http"
)

func barServer(t *testing.T, hits *int32, body barsResponse, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/bars", r.URL.Path)
		assert.Equal(t, "EURUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "H1", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func threeBars() barsResponse {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var bars []barDTO
	for i := 0; i < 3; i++ {
		bars = append(bars, barDTO{Time: t0.Add(time.Duration(i) * time.Hour), Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Volume: 100})
	}
	return barsResponse{Symbol: "EURUSD", Bars: bars}
}

func TestHTTPBarFeed_GetBars(t *testing.T) {
	var hits int32
	srv := barServer(t, &hits, threeBars(), http.StatusOK)
	feed := NewHTTPBarFeed(srv.URL+"/", xhttp.NewClient(xhttp.WithTimeout(time.Second)), nil)

	bars, err := feed.GetBars(context.Background(), "EURUSD", domrepo.TFH1, 3)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "EURUSD", bars[0].Symbol)
	assert.Equal(t, 1.15, bars[2].Close)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
}

func TestHTTPBarFeed_EmptyIsUnavailable(t *testing.T) {
	var hits int32
	srv := barServer(t, &hits, barsResponse{Symbol: "EURUSD", Error: "symbol not found"}, http.StatusOK)
	feed := NewHTTPBarFeed(srv.URL, xhttp.NewClient(xhttp.WithTimeout(time.Second)), nil)

	_, err := feed.GetBars(context.Background(), "EURUSD", domrepo.TFH1, 3)
	assert.ErrorIs(t, err, domrepo.ErrDataUnavailable)
}

func TestHTTPBarFeed_ServerErrorIsUnavailable(t *testing.T) {
	var hits int32
	srv := barServer(t, &hits, barsResponse{}, http.StatusBadGateway)
	feed := NewHTTPBarFeed(srv.URL, xhttp.NewClient(xhttp.WithTimeout(time.Second), xhttp.WithRetries(1, time.Millisecond)), nil)

	_, err := feed.GetBars(context.Background(), "EURUSD", domrepo.TFH1, 3)
	assert.ErrorIs(t, err, domrepo.ErrDataUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

type countingFeed struct {
	calls int
	bars  []models.Bar
	err   error
}

func (f *countingFeed) GetBars(context.Context, string, domrepo.Timeframe, int) ([]models.Bar, error) {
	f.calls++
	return f.bars, f.err
}

func TestCachedBarFeed_ServesFromCache(t *testing.T) {
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	next := &countingFeed{bars: []models.Bar{{Symbol: "EURUSD", Close: 1.1, Time: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}}}
	feed := NewCachedBarFeed(next, mc, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bars, err := feed.GetBars(ctx, "EURUSD", domrepo.TFH1, 1)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, 1.1, bars[0].Close)
	}
	assert.Equal(t, 1, next.calls)

	_, err := feed.GetBars(ctx, "EURUSD", domrepo.TFH4, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedBarFeed_DoesNotCacheErrors(t *testing.T) {
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	next := &countingFeed{err: domrepo.ErrDataUnavailable}
	feed := NewCachedBarFeed(next, mc, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := feed.GetBars(context.Background(), "EURUSD", domrepo.TFH1, 1)
		assert.ErrorIs(t, err, domrepo.ErrDataUnavailable)
	}
	assert.Equal(t, 2, next.calls)
}
