package sentiment

import (
	"fmt"
	"math"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/internal/services/features"
	"FinSense/internal/services/modelmgr"
	"FinSense/pkg/logger"
)

// Predictor serves the active model.
type Predictor interface {
	Predict(table *features.Table, withProba bool) (*modelmgr.Output, error)
}

// Option configures Engine.
type Option func(*Config)

// Config holds source weights, the decision threshold and confidence ceilings.
type Config struct {
	TechnicalWeight     float64
	StructureWeight     float64
	MLWeight            float64
	RuleTechnicalWeight float64
	RuleStructureWeight float64
	Threshold           float64
	EnsembleCeiling     float64
	RuleCeiling         float64
}

func DefaultConfig() Config {
	return Config{
		TechnicalWeight:     0.40,
		StructureWeight:     0.25,
		MLWeight:            0.35,
		RuleTechnicalWeight: 0.60,
		RuleStructureWeight: 0.40,
		Threshold:           0.1,
		EnsembleCeiling:     0.95,
		RuleCeiling:         0.75,
	}
}

// WithThreshold sets the score magnitude needed for a directional verdict.
func WithThreshold(t float64) Option {
	return func(c *Config) {
		if t > 0 {
			c.Threshold = t
		}
	}
}

// Engine turns bars into a sentiment verdict for one timeframe.
type Engine struct {
	cfg       Config
	engineer  *features.Engineer
	predictor Predictor
	metrics   repository.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func NewEngine(engineer *features.Engineer, predictor Predictor, metrics repository.Metrics, l *logger.Logger, opts ...Option) *Engine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if l == nil {
		l = logger.Nop()
	}
	if metrics == nil {
		metrics = repository.NoopMetrics{}
	}
	return &Engine{cfg: cfg, engineer: engineer, predictor: predictor, metrics: metrics, log: l, now: time.Now}
}

// Analyze produces a verdict from the latest bar of the series.
func (e *Engine) Analyze(symbol string, tf repository.Timeframe, bars []models.Bar) (*models.Verdict, error) {
	table, err := e.engineer.Create(bars)
	if err != nil {
		return nil, fmt.Errorf("analyze %s %s: %w", symbol, tf, err)
	}
	last := table.Last()
	lastBar := bars[len(bars)-1]

	tech := technicalVotes(table, lastBar.Close)
	swingVote, swingDetail := swingStructure(bars)
	obVote, obDetail := orderBlockVote(bars, lastBar.Close)
	structure := []models.Factor{
		factor("structure", "swing_structure", swingVote, swingDetail),
		factor("structure", "order_block", obVote, obDetail),
		trendStrengthVote(last["trend_strength"]),
	}

	v := &models.Verdict{
		Symbol:     symbol,
		Timeframe:  string(tf),
		Price:      lastBar.Close,
		BarTime:    lastBar.Time,
		AnalyzedAt: e.now(),
		Mode:       models.ModeRuleBased,
	}

	weights := map[string]float64{
		"technical": e.cfg.RuleTechnicalWeight,
		"structure": e.cfg.RuleStructureWeight,
	}
	ceiling := e.cfg.RuleCeiling
	factors := append(tech, structure...)

	if mlFactor, version, ok := e.mlVote(symbol, tf, table); ok {
		v.Mode = models.ModeEnsemble
		v.ModelVersion = version
		p := mlFactor.Vote/2 + 0.5
		v.ProbUp = &p
		factors = append(factors, mlFactor)
		weights = map[string]float64{
			"technical": e.cfg.TechnicalWeight,
			"structure": e.cfg.StructureWeight,
			"ml":        e.cfg.MLWeight,
		}
		ceiling = e.cfg.EnsembleCeiling
	}
	v.Factors = factors
	e.metrics.RecordAnalysisMode(string(v.Mode))

	v.Score = weightedScore(factors, weights)
	v.Sentiment = classify(v.Score, e.cfg.Threshold)
	agreement := agreementShare(factors, weights, v.Sentiment, e.cfg.Threshold)
	strength := math.Abs(v.Score)
	if v.Sentiment == models.Neutral {
		strength = 1 - math.Abs(v.Score)/e.cfg.Threshold
	}
	v.Confidence = math.Min(ceiling, clamp(0.5*agreement+0.5*strength, 0, 1))

	vol := features.RealizedVolatility(features.LogReturns(bars), 20, features.BarsPerYear(tf))
	v.Risk = riskLevel(last["atr_pct"], vol, last["adx"])
	v.Insights = insights(v, last, vol)

	e.log.Debug("sentiment analyzed",
		logger.String("category", "sentiment"),
		logger.String("symbol", symbol),
		logger.String("timeframe", string(tf)),
		logger.String("sentiment", string(v.Sentiment)),
		logger.Float64("confidence", v.Confidence),
		logger.Float64("score", v.Score),
		logger.String("mode", string(v.Mode)),
	)
	return v, nil
}

func (e *Engine) mlVote(symbol string, tf repository.Timeframe, table *features.Table) (models.Factor, string, bool) {
	if e.predictor == nil {
		e.warnRuleBased(symbol, tf, repository.ErrModelNotLoaded)
		return models.Factor{}, "", false
	}
	out, err := e.predictor.Predict(table.Tail(1), true)
	if err != nil || len(out.Proba) == 0 {
		if err == nil {
			err = fmt.Errorf("empty prediction")
		}
		e.warnRuleBased(symbol, tf, err)
		return models.Factor{}, "", false
	}
	p := out.Proba[len(out.Proba)-1][1]
	return models.Factor{
		Source: "ml",
		Name:   "ensemble",
		Vote:   clamp((p-0.5)*2, -1, 1),
		Detail: fmt.Sprintf("p(up)=%.3f", p),
	}, out.Version, true
}

func (e *Engine) warnRuleBased(symbol string, tf repository.Timeframe, err error) {
	e.log.Warn("model unavailable, using rule-based analysis",
		logger.String("category", "sentiment"),
		logger.String("symbol", symbol),
		logger.String("timeframe", string(tf)),
		logger.Error(err),
	)
}

func factor(source, name string, vote float64, detail string) models.Factor {
	return models.Factor{Source: source, Name: name, Vote: vote, Detail: detail}
}

func technicalVotes(t *features.Table, price float64) []models.Factor {
	last := t.Last()
	var out []models.Factor

	rsi := last["rsi"]
	switch {
	case rsi >= 70:
		out = append(out, factor("technical", "rsi", -0.5, fmt.Sprintf("overbought %.1f", rsi)))
	case rsi <= 30:
		out = append(out, factor("technical", "rsi", 0.5, fmt.Sprintf("oversold %.1f", rsi)))
	default:
		out = append(out, factor("technical", "rsi", clamp((rsi-50)/20, -1, 1), fmt.Sprintf("%.1f", rsi)))
	}

	hist := last["macd_hist"]
	macdVote := sign(hist) * 0.6
	detail := fmt.Sprintf("histogram %.5f", hist)
	if n := t.Len(); n >= 2 {
		prev, _ := t.Value(n-2, "macd_hist")
		if sign(prev) != sign(hist) && hist != 0 {
			macdVote = sign(hist)
			detail = "fresh signal cross, " + detail
		}
	}
	out = append(out, factor("technical", "macd", macdVote, detail))

	ema20, ema50, sma200 := last["ema_20"], last["ema_50"], last["sma_200"]
	var stack float64
	var stackDetail string
	switch {
	case price > ema20 && ema20 > ema50 && ema50 > sma200:
		stack, stackDetail = 1, "price > ema20 > ema50 > sma200"
	case price < ema20 && ema20 < ema50 && ema50 < sma200:
		stack, stackDetail = -1, "price < ema20 < ema50 < sma200"
	case ema20 > ema50:
		stack, stackDetail = 0.5, "ema20 above ema50"
	case ema20 < ema50:
		stack, stackDetail = -0.5, "ema20 below ema50"
	default:
		stackDetail = "flat averages"
	}
	out = append(out, factor("technical", "ma_stack", stack, stackDetail))

	adx, plus, minus := last["adx"], last["plus_di"], last["minus_di"]
	var trend float64
	switch {
	case adx >= 25:
		trend = sign(plus - minus)
	case adx >= 20:
		trend = 0.5 * sign(plus-minus)
	}
	out = append(out, factor("technical", "adx_di", trend, fmt.Sprintf("adx %.1f +di %.1f -di %.1f", adx, plus, minus)))

	mfi := last["mfi"]
	switch {
	case mfi >= 80:
		out = append(out, factor("technical", "mfi", -0.5, fmt.Sprintf("overbought %.1f", mfi)))
	case mfi <= 20:
		out = append(out, factor("technical", "mfi", 0.5, fmt.Sprintf("oversold %.1f", mfi)))
	default:
		out = append(out, factor("technical", "mfi", clamp((mfi-50)/60, -1, 1), fmt.Sprintf("%.1f", mfi)))
	}

	pc5 := last["price_change_5"]
	out = append(out, factor("technical", "momentum_5", clamp(pc5/0.005, -1, 1), fmt.Sprintf("%.3f%%", pc5*100)))
	return out
}

func trendStrengthVote(ts float64) models.Factor {
	return factor("structure", "trend_strength", clamp(ts/0.01, -1, 1), fmt.Sprintf("%.3f%% over 20 bars", ts*100))
}

// weightedScore averages votes within each source, then combines sources by weight.
func weightedScore(factors []models.Factor, weights map[string]float64) float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, f := range factors {
		sums[f.Source] += f.Vote
		counts[f.Source]++
	}
	var score, total float64
	for source, w := range weights {
		if counts[source] == 0 {
			continue
		}
		score += w * sums[source] / float64(counts[source])
		total += w
	}
	if total == 0 {
		return 0
	}
	return clamp(score/total, -1, 1)
}

func classify(score, threshold float64) models.Sentiment {
	switch {
	case score > threshold:
		return models.Bullish
	case score < -threshold:
		return models.Bearish
	default:
		return models.Neutral
	}
}

// agreementShare is the weighted share of votes that point the same way as the verdict.
// Each vote carries its source weight split evenly across that source's votes.
func agreementShare(factors []models.Factor, weights map[string]float64, s models.Sentiment, threshold float64) float64 {
	counts := map[string]int{}
	for _, f := range factors {
		counts[f.Source]++
	}
	var agree, total float64
	for _, f := range factors {
		w := weights[f.Source]
		if w == 0 {
			continue
		}
		w /= float64(counts[f.Source])
		total += w
		if classify(f.Vote, threshold) == s {
			agree += w
		}
	}
	if total == 0 {
		return 0
	}
	return agree / total
}

func riskLevel(atrPct, vol, adx float64) models.RiskLevel {
	points := 0
	switch {
	case atrPct > 0.01:
		points += 2
	case atrPct > 0.005:
		points++
	}
	switch {
	case vol > 0.20:
		points += 2
	case vol > 0.12:
		points++
	}
	if adx > 0 && adx < 15 {
		points++
	}
	switch {
	case points >= 3:
		return models.RiskHigh
	case points >= 1:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func insights(v *models.Verdict, last map[string]float64, vol float64) []string {
	var out []string
	if v.Mode == models.ModeRuleBased {
		out = append(out, "no trained model loaded: rule-based analysis only, confidence capped")
	}
	if adx := last["adx"]; adx >= 25 {
		out = append(out, fmt.Sprintf("strong trend in place (ADX %.1f)", adx))
	} else if adx < 20 {
		out = append(out, fmt.Sprintf("weak or ranging market (ADX %.1f)", adx))
	}
	if rsi := last["rsi"]; rsi >= 70 {
		out = append(out, fmt.Sprintf("RSI overbought at %.1f", rsi))
	} else if rsi <= 30 {
		out = append(out, fmt.Sprintf("RSI oversold at %.1f", rsi))
	}
	for _, f := range v.Factors {
		if f.Name == "order_block" && f.Vote != 0 {
			out = append(out, f.Detail)
		}
	}
	if v.Risk == models.RiskHigh {
		out = append(out, fmt.Sprintf("elevated volatility (%.1f%% annualized): reduce position size", vol*100))
	}
	if v.Sentiment == models.Neutral {
		out = append(out, "signals are mixed: no directional edge")
	}
	return out
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
