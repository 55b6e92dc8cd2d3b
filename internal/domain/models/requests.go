package models

// Requests for the HTTP endpoints. Defined in domain for consistency and reuse.

type SentimentRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"tf" json:"tf" default:"H1" validate:"oneof=M1 M5 M15 M30 H1 H4 D1 W1"`
	Bars      int    `query:"bars" json:"bars" default:"500" validate:"gte=200,lte=10000"`
	Track     bool   `query:"track" json:"track"`
}

type MultiTimeframeRequest struct {
	Symbol     string `query:"symbol" json:"symbol" validate:"required"`
	Timeframes string `query:"tfs" json:"tfs" default:"M15,H1,H4" validate:"required"`
	Bars       int    `query:"bars" json:"bars" default:"500" validate:"gte=200,lte=10000"`
	Track      bool   `query:"track" json:"track"`
}

type PredictionsRequest struct {
	Symbol   string `query:"symbol" json:"symbol"`
	Verified string `query:"verified" json:"verified" validate:"omitempty,oneof=true false"`
	Limit    int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type VerifyRequest struct {
	Symbol        string  `json:"symbol" validate:"required"`
	Price         float64 `json:"price" validate:"gt=0"`
	LookbackHours *int    `json:"lookback_hours" default:"192" validate:"omitempty,gte=0,lte=8760"`
}

type AccuracyRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Days   int    `query:"days" json:"days" default:"7" validate:"gte=1,lte=365"`
}

type RetrainRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe" validate:"omitempty,oneof=M1 M5 M15 M30 H1 H4 D1 W1"`
	Bars      int    `json:"bars" validate:"omitempty,gte=300,lte=100000"`
	Tuning    bool   `json:"tuning"`
}

type BarsRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"tf" json:"tf" default:"H1" validate:"oneof=M1 M5 M15 M30 H1 H4 D1 W1"`
	Count     int    `query:"count" json:"count" default:"500" validate:"gte=1,lte=50000"`
}
