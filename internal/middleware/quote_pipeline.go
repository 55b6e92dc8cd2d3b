package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	"FinSense/internal/service/ratelimit"
)

// QuoteProc is the downstream the pipeline feeds.
type QuoteProc interface {
	Process(ctx context.Context, q *models.Quote) error
}

// QuotePipeline sits between quote sources and the processor. It validates,
// throttles per symbol and buffers quotes the downstream rejected.
type QuotePipeline struct {
	proc      QuoteProc
	metrics   domrepo.Metrics
	limiter   *ratelimit.Limiter
	maxRPS    float64
	bufSize   int
	bufCh     chan *models.Quote
	transform func(*models.Quote) *models.Quote
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

type PipelineOption func(*QuotePipeline)

// WithMaxRPS caps accepted quotes per symbol per second.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *QuotePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

func WithBufferSize(n int) PipelineOption {
	return func(p *QuotePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform rewrites each quote before validation runs again.
func WithTransform(fn func(*models.Quote) *models.Quote) PipelineOption {
	return func(p *QuotePipeline) { p.transform = fn }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *QuotePipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewQuotePipeline(proc QuoteProc, metrics domrepo.Metrics, opts ...PipelineOption) *QuotePipeline {
	p := &QuotePipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  5,
		bufSize: 1000,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = domrepo.NoopMetrics{}
	}
	p.limiter = ratelimit.New(p.maxRPS, 1)
	p.bufCh = make(chan *models.Quote, p.bufSize)
	return p
}

// Start launches the retry loop for buffered quotes.
func (p *QuotePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case q := <-p.bufCh:
				if err := p.proc.Process(ctx, q); err != nil {
					p.metrics.RecordError("pipeline_flush")
					if backoff < 2*time.Second {
						backoff *= 2
					}
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
						return
					case <-p.stopCh:
						return
					}
					select {
					case p.bufCh <- q:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

func (p *QuotePipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Buffered returns the number of quotes waiting for a retry.
func (p *QuotePipeline) Buffered() int { return len(p.bufCh) }

// Process forwards q downstream. Throttled quotes are dropped without error.
func (p *QuotePipeline) Process(ctx context.Context, q *models.Quote) error {
	start := p.now()
	if err := validateQuote(q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		q = p.transform(q)
		if err := validateQuote(q); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.limiter.AllowAt(q.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, q); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- q:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateQuote(q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	if q.Symbol == "" {
		return fmt.Errorf("quote symbol is empty")
	}
	if q.Time.IsZero() {
		return fmt.Errorf("quote time is zero")
	}
	if q.Price <= 0 || math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
		return fmt.Errorf("quote price %v is invalid", q.Price)
	}
	if q.Volume < 0 {
		return fmt.Errorf("quote volume is negative")
	}
	return nil
}
