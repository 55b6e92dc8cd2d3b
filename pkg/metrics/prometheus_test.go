package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSense/internal/domain/repository"
	"FinSense/pkg/metrics"
)

var _ repository.Metrics = (*metrics.Recorder)(nil)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.NewWithRegistry(reg)

	r.RecordPrediction("EURUSD", "H1", "BULLISH")
	r.RecordPrediction("EURUSD", "H1", "BULLISH")
	r.RecordVerification("EURUSD", true)
	r.RecordTraining("manual", true, 12)
	r.RecordAccuracy("", "7d", 0.61)
	r.RecordLastPrice("EURUSD", 1.0856)

	n, err := testutil.GatherAndCount(reg, "finsense_predictions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expected := `
# HELP finsense_prediction_accuracy Verified prediction accuracy over a window
# TYPE finsense_prediction_accuracy gauge
finsense_prediction_accuracy{symbol="all",window="7d"} 0.61
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "finsense_prediction_accuracy"))
}

func TestNew_Shared(t *testing.T) {
	assert.Same(t, metrics.New(), metrics.New())
}
