package usecase

import (
	"context"

	"FinSense/internal/domain/models"
	drepo "FinSense/internal/domain/repository"
	mid "FinSense/internal/middleware"
	"FinSense/pkg/logger"
)

// QuoteCollector pumps the live quote stream into the pipeline and
// reconnects when the stream fails.
type QuoteCollector struct {
	stream  drepo.QuoteStream
	pipe    *mid.QuotePipeline
	metrics drepo.Metrics
	l       *logger.Logger
}

func NewQuoteCollector(stream drepo.QuoteStream, pipe *mid.QuotePipeline, metrics drepo.Metrics, l *logger.Logger) *QuoteCollector {
	if metrics == nil {
		metrics = drepo.NoopMetrics{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &QuoteCollector{stream: stream, pipe: pipe, metrics: metrics, l: l}
}

func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Run blocks until ctx ends.
func (c *QuoteCollector) Run(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	defer c.pipe.Stop()
	defer c.stream.Close()

	for {
		qCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, qCh, errCh)
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.RecordError("stream")
		c.l.Warn("quote stream interrupted, reconnecting", logger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			c.l.Warn("quote stream reconnect failed", logger.Error(rerr))
		}
	}
}

func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan *models.Quote, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			errCh = nil
		case q, ok := <-qCh:
			if !ok {
				return nil
			}
			if err := c.pipe.Process(ctx, q); err != nil {
				c.l.Debug("quote rejected", logger.String("symbol", q.Symbol), logger.Error(err))
			}
		}
	}
}
