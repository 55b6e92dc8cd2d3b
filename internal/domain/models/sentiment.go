package models

import (
	"fmt"
	"strings"
	"time"
)

type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
)

// ParseSentiment accepts any casing of the three sentiment names.
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(strings.ToUpper(strings.TrimSpace(s))) {
	case Bullish:
		return Bullish, nil
	case Bearish:
		return Bearish, nil
	case Neutral:
		return Neutral, nil
	default:
		return "", fmt.Errorf("unknown sentiment %q", s)
	}
}

// Direction returns +1 for bullish, -1 for bearish and 0 otherwise.
func (s Sentiment) Direction() int {
	switch s {
	case Bullish:
		return 1
	case Bearish:
		return -1
	default:
		return 0
	}
}

func (s Sentiment) Valid() bool {
	return s == Bullish || s == Bearish || s == Neutral
}

type AnalysisMode string

const (
	ModeEnsemble  AnalysisMode = "ensemble"
	ModeRuleBased AnalysisMode = "rule_based"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Factor is a single vote that contributed to a verdict.
// Vote is in [-1, 1]; positive values are bullish.
type Factor struct {
	Source string  `json:"source"` // technical, structure, ml
	Name   string  `json:"name"`
	Vote   float64 `json:"vote"`
	Detail string  `json:"detail,omitempty"`
}

// Verdict is the sentiment call for one symbol on one timeframe.
type Verdict struct {
	Symbol       string       `json:"symbol"`
	Timeframe    string       `json:"timeframe"`
	Sentiment    Sentiment    `json:"sentiment"`
	Confidence   float64      `json:"confidence"`
	Score        float64      `json:"score"`
	Mode         AnalysisMode `json:"mode"`
	Factors      []Factor     `json:"factors"`
	Risk         RiskLevel    `json:"risk_level"`
	Insights     []string     `json:"insights"`
	ModelVersion string       `json:"model_version,omitempty"`
	ProbUp       *float64     `json:"prob_up,omitempty"`
	Price        float64      `json:"price"`
	BarTime      time.Time    `json:"bar_time"`
	AnalyzedAt   time.Time    `json:"analyzed_at"`
	PredictionID string       `json:"prediction_id,omitempty"`
}

// MultiTimeframeResult is the agreement view across several timeframes.
type MultiTimeframeResult struct {
	Symbol            string            `json:"symbol"`
	Dominant          Sentiment         `json:"dominant_sentiment"`
	AlignmentScore    float64           `json:"alignment_score"`
	Aligned           bool              `json:"aligned"`
	OverallConfidence float64           `json:"overall_confidence"`
	Counts            map[Sentiment]int `json:"counts"`
	Suggestions       []string          `json:"suggestions"`
	Timeframes        []Verdict         `json:"timeframes"`
	Errors            map[string]string `json:"errors,omitempty"`
	AnalyzedAt        time.Time         `json:"analyzed_at"`
}
