package sentiment

import (
	"fmt"
	"sort"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
)

// Combine measures agreement across per-timeframe verdicts and derives the
// dominant call. Ties for the plurality resolve to NEUTRAL.
func Combine(symbol string, verdicts []models.Verdict, errs map[string]string, now time.Time) *models.MultiTimeframeResult {
	res := &models.MultiTimeframeResult{
		Symbol:     symbol,
		Dominant:   models.Neutral,
		Counts:     map[models.Sentiment]int{models.Bullish: 0, models.Bearish: 0, models.Neutral: 0},
		Timeframes: append([]models.Verdict(nil), verdicts...),
		AnalyzedAt: now,
	}
	if len(errs) > 0 {
		res.Errors = errs
	}
	sort.SliceStable(res.Timeframes, func(i, j int) bool {
		return rank(res.Timeframes[i].Timeframe) < rank(res.Timeframes[j].Timeframe)
	})
	n := len(res.Timeframes)
	if n == 0 {
		res.Suggestions = []string{"no timeframe could be analyzed"}
		return res
	}

	for _, v := range res.Timeframes {
		res.Counts[v.Sentiment]++
	}
	best, tie := 0, false
	for _, s := range []models.Sentiment{models.Bullish, models.Bearish, models.Neutral} {
		c := res.Counts[s]
		switch {
		case c > best:
			best, tie = c, false
			res.Dominant = s
		case c == best:
			tie = true
		}
	}
	if tie {
		res.Dominant = models.Neutral
	}
	res.AlignmentScore = float64(best) / float64(n)
	res.Aligned = res.AlignmentScore > 0.5

	var num, den float64
	for _, v := range res.Timeframes {
		if v.Sentiment != res.Dominant {
			continue
		}
		w := weight(v.Timeframe)
		num += w * v.Confidence
		den += w
	}
	if den > 0 {
		res.OverallConfidence = num / den
	} else {
		// the tie resolved to NEUTRAL but no timeframe was neutral
		for _, v := range res.Timeframes {
			w := weight(v.Timeframe)
			num += w * v.Confidence
			den += w
		}
		res.OverallConfidence = num / den * res.AlignmentScore
	}

	res.Suggestions = suggestions(res, best, n)
	return res
}

func rank(tf string) int {
	return repository.Timeframe(tf).Rank()
}

func weight(tf string) float64 {
	if r := rank(tf); r > 0 {
		return float64(r)
	}
	return 1
}

func suggestions(res *models.MultiTimeframeResult, best, n int) []string {
	var out []string
	switch {
	case res.AlignmentScore == 1 && n > 1:
		out = append(out, fmt.Sprintf("all %d timeframes agree on %s: higher conviction setup", n, res.Dominant))
	case res.AlignmentScore == 1:
		out = append(out, "single timeframe analyzed: confirm on a higher timeframe")
	case res.Aligned:
		out = append(out, fmt.Sprintf("%d of %d timeframes are %s: trade with caution and tighter risk", best, n, res.Dominant))
	default:
		out = append(out, "mixed signals with no majority: consider standing aside")
	}
	if res.Dominant == models.Neutral {
		out = append(out, "dominant view is neutral: wait for a clearer signal")
	}
	highest := res.Timeframes[n-1]
	if n > 1 && highest.Sentiment != res.Dominant {
		out = append(out, fmt.Sprintf("highest timeframe %s is %s, against the dominant view", highest.Timeframe, highest.Sentiment))
	}
	return out
}
