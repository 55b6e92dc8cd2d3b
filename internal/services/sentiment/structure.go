package sentiment

import "FinSense/internal/domain/models"

// swingPoints returns indices of bars whose high (low) is the extreme of the
// surrounding lookback bars on both sides.
func swingPoints(bars []models.Bar, lookback int) (highs, lows []int) {
	for i := lookback; i < len(bars)-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if bars[j].High > bars[i].High {
				isHigh = false
			}
			if bars[j].Low < bars[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}
	return highs, lows
}

// swingStructure compares the last two swing highs and lows.
// Higher highs with higher lows is +1, lower highs with lower lows is -1.
func swingStructure(bars []models.Bar) (float64, string) {
	highs, lows := swingPoints(bars, 3)
	if len(highs) < 2 || len(lows) < 2 {
		return 0, "not enough swings"
	}
	h1, h2 := bars[highs[len(highs)-2]].High, bars[highs[len(highs)-1]].High
	l1, l2 := bars[lows[len(lows)-2]].Low, bars[lows[len(lows)-1]].Low
	switch {
	case h2 > h1 && l2 > l1:
		return 1, "higher highs and higher lows"
	case h2 < h1 && l2 < l1:
		return -1, "lower highs and lower lows"
	case h2 > h1 || l2 > l1:
		return 0.3, "mixed structure leaning up"
	case h2 < h1 || l2 < l1:
		return -0.3, "mixed structure leaning down"
	default:
		return 0, "flat structure"
	}
}

type orderBlock struct {
	bullish   bool
	high, low float64
	index     int
	mitigated bool
}

// obMovePct is the follow-through, in percent, that qualifies a candle as an order block.
const obMovePct = 1.0

// detectOrderBlocks finds the last opposite candle before a strong move in the
// most recent 100 bars. A bullish block is a bearish candle followed by a rally.
func detectOrderBlocks(bars []models.Bar, price float64) []orderBlock {
	from := len(bars) - 100
	if from < 0 {
		from = 0
	}
	var out []orderBlock
	for i := from; i < len(bars)-1; i++ {
		c := bars[i]
		maxHigh, minLow := c.High, c.Low
		for j := i + 1; j < i+4 && j < len(bars); j++ {
			if bars[j].High > maxHigh {
				maxHigh = bars[j].High
			}
			if bars[j].Low < minLow {
				minLow = bars[j].Low
			}
		}
		if c.Close < c.Open && c.High > 0 {
			if (maxHigh-c.High)/c.High*100 >= obMovePct {
				out = append(out, orderBlock{bullish: true, high: c.High, low: c.Low, index: i, mitigated: price < c.Low})
			}
		}
		if c.Close > c.Open && c.Low > 0 {
			if (c.Low-minLow)/c.Low*100 >= obMovePct {
				out = append(out, orderBlock{bullish: false, high: c.High, low: c.Low, index: i, mitigated: price > c.High})
			}
		}
	}
	return out
}

// orderBlockVote is +1 inside an unmitigated bullish block and -1 inside a bearish one.
func orderBlockVote(bars []models.Bar, price float64) (float64, string) {
	blocks := detectOrderBlocks(bars, price)
	for i := len(blocks) - 1; i >= 0; i-- {
		ob := blocks[i]
		if ob.mitigated || price < ob.low || price > ob.high {
			continue
		}
		if ob.bullish {
			return 1, "price inside bullish order block"
		}
		return -1, "price inside bearish order block"
	}
	return 0, "no active order block"
}
