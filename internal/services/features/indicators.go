package features

import "math"

// Series helpers. Every function returns a slice aligned with its input;
// positions inside the warm-up period hold NaN.

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SMA is the simple moving average; defined from index period-1.
func SMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 || len(x) < period {
		return out
	}
	sum := 0.0
	for i, v := range x {
		sum += v
		if i >= period {
			sum -= x[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is seeded with the SMA of the first period defined values.
func EMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	start := 0
	for start < len(x) && !defined(x[start]) {
		start++
	}
	if len(x)-start < period {
		return out
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += x[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev
	for i := start + period; i < len(x); i++ {
		prev = x[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// RollingStd is the population standard deviation over a window.
func RollingStd(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 || len(x) < period {
		return out
	}
	for i := period - 1; i < len(x); i++ {
		mean := 0.0
		for j := i - period + 1; j <= i; j++ {
			mean += x[j]
		}
		mean /= float64(period)
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := x[j] - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out
}

// RSI uses Wilder smoothing; defined from index period.
func RSI(close []float64, period int) []float64 {
	out := nanSlice(len(close))
	if period <= 0 || len(close) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(close); i++ {
		d := close[i] - close[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the macd line, its signal line and the histogram.
func MACD(close []float64, fast, slow, signal int) (line, sig, hist []float64) {
	emaFast := EMA(close, fast)
	emaSlow := EMA(close, slow)
	line = nanSlice(len(close))
	for i := range close {
		if defined(emaFast[i]) && defined(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}
	sig = EMA(line, signal)
	hist = nanSlice(len(close))
	for i := range close {
		if defined(line[i]) && defined(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return line, sig, hist
}

// TrueRange is defined for every bar; the first bar uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		hl := high[i] - low[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// wilder smooths x[from:] with Wilder's method, seeding with the mean of the
// first period values. Defined from index from+period-1.
func wilder(x []float64, from, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 || len(x)-from < period {
		return out
	}
	sum := 0.0
	for i := from; i < from+period; i++ {
		sum += x[i]
	}
	prev := sum / float64(period)
	out[from+period-1] = prev
	for i := from + period; i < len(x); i++ {
		prev = (prev*float64(period-1) + x[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// ATR is the Wilder average of the true range over bars 1..n; defined from index period.
func ATR(high, low, close []float64, period int) []float64 {
	return wilder(TrueRange(high, low, close), 1, period)
}

// ADX returns adx, +DI and -DI. DI values are defined from index period,
// adx from index 2*period-1.
func ADX(high, low, close []float64, period int) (adx, plusDI, minusDI []float64) {
	n := len(close)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	atr := ATR(high, low, close, period)
	sPlus := wilder(plusDM, 1, period)
	sMinus := wilder(minusDM, 1, period)

	plusDI = nanSlice(n)
	minusDI = nanSlice(n)
	dx := nanSlice(n)
	for i := 0; i < n; i++ {
		if !defined(atr[i]) {
			continue
		}
		if atr[i] == 0 {
			plusDI[i], minusDI[i], dx[i] = 0, 0, 0
			continue
		}
		plusDI[i] = 100 * sPlus[i] / atr[i]
		minusDI[i] = 100 * sMinus[i] / atr[i]
		total := plusDI[i] + minusDI[i]
		if total == 0 {
			dx[i] = 0
		} else {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / total
		}
	}
	adx = wilder(dx, period, period)
	return adx, plusDI, minusDI
}

// OBV is on-balance volume starting at zero.
func OBV(close, volume []float64) []float64 {
	out := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + volume[i]
		case close[i] < close[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// MFI is the money flow index; defined from index period.
func MFI(high, low, close, volume []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period <= 0 || n <= period {
		return out
	}
	tp := make([]float64, n)
	for i := range close {
		tp[i] = (high[i] + low[i] + close[i]) / 3
	}
	for i := period; i < n; i++ {
		var pos, neg float64
		for j := i - period + 1; j <= i; j++ {
			flow := tp[j] * volume[j]
			switch {
			case tp[j] > tp[j-1]:
				pos += flow
			case tp[j] < tp[j-1]:
				neg += flow
			}
		}
		switch {
		case neg == 0 && pos == 0:
			out[i] = 50
		case neg == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+pos/neg)
		}
	}
	return out
}

// PctChange is x[i]/x[i-lag] - 1; zero when the base is zero.
func PctChange(x []float64, lag int) []float64 {
	out := nanSlice(len(x))
	for i := lag; i < len(x); i++ {
		if x[i-lag] == 0 {
			out[i] = 0
			continue
		}
		out[i] = x[i]/x[i-lag] - 1
	}
	return out
}

// RollingMax and RollingMin are defined from index period-1.
func RollingMax(x []float64, period int) []float64 {
	return rollingExtreme(x, period, func(a, b float64) bool { return a > b })
}

func RollingMin(x []float64, period int) []float64 {
	return rollingExtreme(x, period, func(a, b float64) bool { return a < b })
}

func rollingExtreme(x []float64, period int, better func(a, b float64) bool) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(x); i++ {
		best := x[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if better(x[j], best) {
				best = x[j]
			}
		}
		out[i] = best
	}
	return out
}

// safeDiv returns 0 when the denominator is zero.
func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
