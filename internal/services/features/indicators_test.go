package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
)

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, 4.0, out[4], 1e-12)
}

func TestEMA_SeedsWithSMA(t *testing.T) {
	out := EMA([]float64{2, 4, 6, 8}, 3)
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 4.0, out[2], 1e-12)
	// k = 0.5
	assert.InDelta(t, 6.0, out[3], 1e-12)
}

func TestRSI_Extremes(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = float64(i + 1)
	}
	rsi := RSI(up, 14)
	assert.True(t, math.IsNaN(rsi[13]))
	assert.Equal(t, 100.0, rsi[14])
	assert.Equal(t, 100.0, rsi[29])
}

func TestMACD_Warmup(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		x[i] = 1 + float64(i)*0.01
	}
	line, sig, hist := MACD(x, 12, 26, 9)
	assert.True(t, math.IsNaN(line[24]))
	assert.False(t, math.IsNaN(line[25]))
	assert.True(t, math.IsNaN(sig[32]))
	assert.False(t, math.IsNaN(sig[33]))
	assert.False(t, math.IsNaN(hist[33]))
}

func TestADX_Warmup(t *testing.T) {
	n := 40
	high, low, close := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		close[i] = 10 + float64(i)
		high[i] = close[i] + 0.5
		low[i] = close[i] - 0.5
	}
	adx, plus, minus := ADX(high, low, close, 14)
	assert.True(t, math.IsNaN(plus[13]))
	assert.False(t, math.IsNaN(plus[14]))
	assert.True(t, math.IsNaN(adx[26]))
	assert.False(t, math.IsNaN(adx[27]))
	assert.Greater(t, plus[30], minus[30])
	assert.InDelta(t, 100.0, adx[30], 1e-9)
}

func TestOBVAndPctChange(t *testing.T) {
	obv := OBV([]float64{1, 2, 2, 1}, []float64{10, 20, 30, 40})
	assert.Equal(t, []float64{0, 20, 20, -20}, obv)

	pc := PctChange([]float64{0, 5, 10}, 1)
	assert.Equal(t, 0.0, pc[1])
	assert.InDelta(t, 1.0, pc[2], 1e-12)
}

func TestRealizedVolatility(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0.1}, 5, 252))
	flat := []float64{0.01, 0.01, 0.01, 0.01}
	assert.InDelta(t, 0.0, RealizedVolatility(flat, 4, 252), 1e-9)
	assert.Equal(t, 52.0, BarsPerYear(repository.TFW1))
	assert.Equal(t, 6240.0, BarsPerYear(repository.TFH1))
}

func TestLogReturns(t *testing.T) {
	bars := []models.Bar{{Close: 100}, {Close: 110}, {Close: 0}, {Close: 120}}
	r := LogReturns(bars)
	require.Len(t, r, 3)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Equal(t, 0.0, r[1])
	assert.Equal(t, 0.0, r[2])
	assert.Nil(t, LogReturns(bars[:1]))
}
