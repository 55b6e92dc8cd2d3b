package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
)

type recordingProc struct {
	mu   sync.Mutex
	got  []*models.Quote
	fail int
}

func (r *recordingProc) Process(_ context.Context, q *models.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("downstream unavailable")
	}
	r.got = append(r.got, q)
	return nil
}

func (r *recordingProc) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func quote(sym string, price float64) *models.Quote {
	return &models.Quote{Symbol: sym, Price: price, Time: time.Unix(1700000000, 0)}
}

func TestQuotePipeline_Validation(t *testing.T) {
	p := NewQuotePipeline(&recordingProc{}, domrepo.NoopMetrics{})
	ctx := context.Background()

	assert.Error(t, p.Process(ctx, nil))
	assert.Error(t, p.Process(ctx, quote("", 1)))
	assert.Error(t, p.Process(ctx, quote("EURUSD", 0)))
	assert.Error(t, p.Process(ctx, &models.Quote{Symbol: "EURUSD", Price: 1}))
}

func TestQuotePipeline_ThrottlesPerSymbol(t *testing.T) {
	proc := &recordingProc{}
	now := time.Unix(1700000000, 0)
	p := NewQuotePipeline(proc, nil, WithMaxRPS(1), WithPipelineClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, quote("EURUSD", 1.08)))
	require.NoError(t, p.Process(ctx, quote("EURUSD", 1.09)))
	require.NoError(t, p.Process(ctx, quote("GBPUSD", 1.25)))
	assert.Equal(t, 2, proc.count())

	now = now.Add(1100 * time.Millisecond)
	require.NoError(t, p.Process(ctx, quote("EURUSD", 1.10)))
	assert.Equal(t, 3, proc.count())
}

func TestQuotePipeline_BuffersAndRetries(t *testing.T) {
	proc := &recordingProc{fail: 1}
	p := NewQuotePipeline(proc, nil, WithMaxRPS(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, quote("EURUSD", 1.08))
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	defer p.Stop()
	require.Eventually(t, func() bool { return proc.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestQuotePipeline_Transform(t *testing.T) {
	proc := &recordingProc{}
	p := NewQuotePipeline(proc, nil, WithTransform(func(q *models.Quote) *models.Quote {
		c := *q
		c.Symbol = "OANDA:" + q.Symbol
		return &c
	}))
	require.NoError(t, p.Process(context.Background(), quote("EURUSD", 1.08)))
	require.Equal(t, 1, proc.count())
	assert.Equal(t, "OANDA:EURUSD", proc.got[0].Symbol)
}
