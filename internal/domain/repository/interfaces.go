package repository

import (
	"context"
	"time"

	"FinSense/internal/domain/models"
)

// BarFeed provides ordered historical bars (oldest first).
type BarFeed interface {
	GetBars(ctx context.Context, symbol string, tf Timeframe, count int) ([]models.Bar, error)
}

// PredictionStore persists predictions. VerifyPrediction must be a conditional
// write: it fails with ErrAlreadyVerified when the row is already verified.
type PredictionStore interface {
	Init(ctx context.Context) error
	CreatePrediction(ctx context.Context, p *models.Prediction) error
	// GetPredictions returns matches newest first.
	GetPredictions(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error)
	CountPredictions(ctx context.Context, f models.PredictionFilter) (int, error)
	VerifyPrediction(ctx context.Context, id string, v models.Verification) error
	Health(ctx context.Context) error
	Close() error
}

// ModelRegistry records trained model versions in the persistence layer.
type ModelRegistry interface {
	CreateModelVersion(ctx context.Context, meta models.ModelMetadata) error
	ListModelVersions(ctx context.Context) ([]models.ModelMetadata, error)
}

// EventPublisher emits domain events (prediction created/verified, model retrained).
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload interface{}) error
	Close() error
}

// Locker guards a critical section across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// QuoteStream delivers live last-price updates.
type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordPrediction(symbol, timeframe, sentiment string)
	RecordVerification(symbol string, correct bool)
	RecordAnalysisMode(mode string)
	RecordTraining(trigger string, success bool, seconds float64)
	RecordModelAccuracy(version string, accuracy float64)
	RecordAccuracy(symbol, window string, accuracy float64)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordPrediction(string, string, string) {}
func (NoopMetrics) RecordVerification(string, bool) {}
func (NoopMetrics) RecordAnalysisMode(string) {}
func (NoopMetrics) RecordTraining(string, bool, float64) {}
func (NoopMetrics) RecordModelAccuracy(string, float64) {}
func (NoopMetrics) RecordAccuracy(string, string, float64) {}
func (NoopMetrics) RecordError(string) {}
func (NoopMetrics) RecordLastPrice(string, float64) {}
func (NoopMetrics) RecordLatency(string, float64) {}

var _ Metrics = NoopMetrics{}
