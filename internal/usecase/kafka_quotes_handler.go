package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinSense/internal/domain/models"
	drepo "FinSense/internal/domain/repository"
	mid "FinSense/internal/middleware"
	pkgkafka "FinSense/pkg/kafka"
)

// QuoteTicksHandler consumes quote ticks from Kafka and feeds the pipeline.
type QuoteTicksHandler struct {
	topic   string
	pipe    *mid.QuotePipeline
	metrics drepo.Metrics
}

func NewQuoteTicksHandler(topic string, pipe *mid.QuotePipeline, metrics drepo.Metrics) *QuoteTicksHandler {
	if metrics == nil {
		metrics = drepo.NoopMetrics{}
	}
	return &QuoteTicksHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *QuoteTicksHandler) Topic() string { return h.topic }

// tick accepts {symbol, t, c, v} with t in seconds or milliseconds.
type tick struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	C      float64 `json:"c"`
	V      float64 `json:"v"`
}

func decodeTick(b []byte) (*models.Quote, error) {
	var m tick
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode tick: %w", err)
	}
	ts := m.T
	if ts > 1e11 {
		ts /= 1000
	}
	return &models.Quote{Symbol: m.Symbol, Price: m.C, Volume: m.V, Time: time.Unix(ts, 0).UTC()}, nil
}

// Handle drops malformed and invalid ticks after counting them; retrying
// them would never succeed. Downstream failures are returned for retry.
func (h *QuoteTicksHandler) Handle(ctx context.Context, b []byte) error {
	q, err := decodeTick(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return nil
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(q.Time).Seconds())
	if err := validateTick(q); err != nil {
		h.metrics.RecordError("consumer_invalid")
		return nil
	}
	return h.pipe.Process(ctx, q)
}

func validateTick(q *models.Quote) error {
	if q.Symbol == "" || q.Price <= 0 || q.Time.Unix() <= 0 {
		return fmt.Errorf("invalid tick for %q", q.Symbol)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*QuoteTicksHandler)(nil)
