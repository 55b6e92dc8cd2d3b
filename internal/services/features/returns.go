package features

import (
	"math"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
)

// FX trades about 260 days a year around the clock.
const tradingYear = 260 * 24 * time.Hour

// LogReturns returns ln(C_t / C_t-1) for consecutive closes. A pair with a
// non-positive close yields 0.
func LogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, len(bars)-1)
	for i := range out {
		prev, cur := bars[i].Close, bars[i+1].Close
		if prev > 0 && cur > 0 {
			out[i] = math.Log(cur / prev)
		}
	}
	return out
}

// RealizedVolatility is the annualized sample deviation of the last window
// returns, or 0 when there are fewer.
func RealizedVolatility(returns []float64, window int, barsPerYear float64) float64 {
	if window < 2 || len(returns) < window {
		return 0
	}
	tail := returns[len(returns)-window:]
	var mean float64
	for _, r := range tail {
		mean += r
	}
	mean /= float64(window)
	var ss float64
	for _, r := range tail {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(window-1) * barsPerYear)
}

// BarsPerYear converts a timeframe to its annualization factor. Weekly and
// longer bars count 52 per year.
func BarsPerYear(tf repository.Timeframe) float64 {
	d := tf.BarDuration()
	if d <= 0 {
		d = time.Hour
	}
	if d >= 7*24*time.Hour {
		return 52
	}
	return float64(tradingYear / d)
}
