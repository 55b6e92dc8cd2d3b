package models

import "time"

// Bar represents an OHLCV record at a fixed granularity.
// Spread and RealVolume are optional and zero when the feed does not provide them.
type Bar struct {
	Time       time.Time `json:"time"`
	Symbol     string    `json:"symbol,omitempty"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	Spread     float64   `json:"spread,omitempty"`
	RealVolume float64   `json:"real_volume,omitempty"`
}

// Quote is a last-price update for a symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume,omitempty"`
	Time   time.Time `json:"time"`
}
