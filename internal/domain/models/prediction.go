package models

import "time"

// Prediction is a stored sentiment call and its verification state.
// Outcome fields are zero until Verified is true.
type Prediction struct {
	ID           string    `json:"id" db:"id"`
	Symbol       string    `json:"symbol" db:"symbol"`
	Timeframe    string    `json:"timeframe" db:"timeframe"`
	Sentiment    Sentiment `json:"sentiment" db:"sentiment"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	Price        float64   `json:"price" db:"price"`
	ModelVersion string    `json:"model_version" db:"model_version"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	Verified        bool       `json:"verified" db:"verified"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	ActualSentiment Sentiment  `json:"actual_sentiment,omitempty" db:"actual_sentiment"`
	VerifyPrice     float64    `json:"verify_price,omitempty" db:"verify_price"`
	ChangePct       float64    `json:"change_pct,omitempty" db:"change_pct"`
	Correct         bool       `json:"correct" db:"correct"`
}

// Verification carries the realized outcome for a prediction.
type Verification struct {
	ActualSentiment Sentiment
	Price           float64
	ChangePct       float64
	Correct         bool
	VerifiedAt      time.Time
}

// Apply copies the outcome onto the prediction and marks it verified.
func (p *Prediction) Apply(v Verification) {
	at := v.VerifiedAt
	p.Verified = true
	p.VerifiedAt = &at
	p.ActualSentiment = v.ActualSentiment
	p.VerifyPrice = v.Price
	p.ChangePct = v.ChangePct
	p.Correct = v.Correct
}

// PredictionFilter selects predictions. Zero values mean "no constraint".
type PredictionFilter struct {
	Symbol        string
	Verified      *bool
	CreatedSince  time.Time
	VerifiedSince time.Time
	Limit         int
}

// Match reports whether p satisfies every constraint except Limit.
func (f PredictionFilter) Match(p *Prediction) bool {
	if f.Symbol != "" && p.Symbol != f.Symbol {
		return false
	}
	if f.Verified != nil && p.Verified != *f.Verified {
		return false
	}
	if !f.CreatedSince.IsZero() && p.CreatedAt.Before(f.CreatedSince) {
		return false
	}
	if !f.VerifiedSince.IsZero() {
		if p.VerifiedAt == nil || p.VerifiedAt.Before(f.VerifiedSince) {
			return false
		}
	}
	return true
}

func Unverified(symbol string) PredictionFilter {
	v := false
	return PredictionFilter{Symbol: symbol, Verified: &v}
}

func VerifiedSince(symbol string, since time.Time) PredictionFilter {
	v := true
	return PredictionFilter{Symbol: symbol, Verified: &v, VerifiedSince: since}
}

// VerificationSummary reports the outcome of one verification pass.
type VerificationSummary struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Checked   int     `json:"checked"`
	Verified  int     `json:"verified"`
	Correct   int     `json:"correct"`
	Skipped   int     `json:"skipped"`
	Conflicts int     `json:"conflicts"`
	Failed    int     `json:"failed"`
}

type SentimentAccuracy struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// AccuracyWindow aggregates verified predictions over a time span.
type AccuracyWindow struct {
	Symbol      string                          `json:"symbol,omitempty"`
	Total       int                             `json:"total"`
	Correct     int                             `json:"correct"`
	Incorrect   int                             `json:"incorrect"`
	Accuracy    float64                         `json:"accuracy"`
	BySentiment map[Sentiment]SentimentAccuracy `json:"by_sentiment"`
	PeriodDays  int                             `json:"period_days"`
}

// RetrainRecommendation is the tracker's opinion on retraining.
type RetrainRecommendation struct {
	ShouldRetrain bool           `json:"should_retrain"`
	Reasons       []string       `json:"reasons"`
	Accuracy      AccuracyWindow `json:"accuracy"`
	Unverified    int            `json:"unverified"`
}
