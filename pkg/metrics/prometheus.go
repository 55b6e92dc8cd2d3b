package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions   *prometheus.CounterVec
	verifications *prometheus.CounterVec
	analysisMode  *prometheus.CounterVec
	trainings     *prometheus.CounterVec
	trainSeconds  *prometheus.HistogramVec
	modelAccuracy *prometheus.GaugeVec
	accuracy      *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

var (
	shared     *Recorder
	sharedOnce sync.Once
)

// New returns the process-wide recorder. Collectors register with the default
// registry once, so repeated calls share them.
func New() *Recorder {
	sharedOnce.Do(func() {
		shared = newRecorder(promauto.With(prometheus.DefaultRegisterer))
	})
	return shared
}

// NewWithRegistry registers a fresh set of collectors on reg. Tests use it
// with a private registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	return newRecorder(promauto.With(reg))
}

func newRecorder(f promauto.Factory) *Recorder {
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsense_predictions_total",
				Help: "Predictions stored, by symbol, timeframe and sentiment",
			},
			[]string{"symbol", "timeframe", "sentiment"},
		),
		verifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsense_verifications_total",
				Help: "Predictions verified against a later price",
			},
			[]string{"symbol", "correct"},
		),
		analysisMode: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsense_analysis_mode_total",
				Help: "Analyses by mode (ml or rules)",
			},
			[]string{"mode"},
		),
		trainings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsense_trainings_total",
				Help: "Training runs by trigger and outcome",
			},
			[]string{"trigger", "success"},
		),
		trainSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsense_training_duration_seconds",
				Help:    "Wall time of a training run",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"trigger"},
		),
		modelAccuracy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsense_model_test_accuracy",
				Help: "Holdout accuracy of a loaded model version",
			},
			[]string{"version"},
		),
		accuracy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsense_prediction_accuracy",
				Help: "Verified prediction accuracy over a window",
			},
			[]string{"symbol", "window"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsense_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsense_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsense_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordPrediction(symbol, timeframe, sentiment string) {
	r.predictions.WithLabelValues(symbol, timeframe, sentiment).Inc()
}

func (r *Recorder) RecordVerification(symbol string, correct bool) {
	r.verifications.WithLabelValues(symbol, strconv.FormatBool(correct)).Inc()
}

func (r *Recorder) RecordAnalysisMode(mode string) {
	r.analysisMode.WithLabelValues(mode).Inc()
}

// RecordTraining counts a run and observes its duration.
func (r *Recorder) RecordTraining(trigger string, success bool, seconds float64) {
	r.trainings.WithLabelValues(trigger, strconv.FormatBool(success)).Inc()
	r.trainSeconds.WithLabelValues(trigger).Observe(seconds)
}

func (r *Recorder) RecordModelAccuracy(version string, accuracy float64) {
	r.modelAccuracy.WithLabelValues(version).Set(accuracy)
}

func (r *Recorder) RecordAccuracy(symbol, window string, accuracy float64) {
	if symbol == "" {
		symbol = "all"
	}
	r.accuracy.WithLabelValues(symbol, window).Set(accuracy)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
