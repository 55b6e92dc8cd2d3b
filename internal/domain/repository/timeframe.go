package repository

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe represents bar granularity buckets.
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
	TFW1  Timeframe = "W1"
)

type timeframeSpec struct {
	rank   int
	bar    time.Duration
	window time.Duration // default verification delay
}

var timeframeSpecs = map[Timeframe]timeframeSpec{
	TFM1:  {1, time.Minute, 15 * time.Minute},
	TFM5:  {2, 5 * time.Minute, 30 * time.Minute},
	TFM15: {3, 15 * time.Minute, time.Hour},
	TFM30: {4, 30 * time.Minute, 2 * time.Hour},
	TFH1:  {5, time.Hour, 4 * time.Hour},
	TFH4:  {6, 4 * time.Hour, 12 * time.Hour},
	TFD1:  {7, 24 * time.Hour, 24 * time.Hour},
	TFW1:  {8, 7 * 24 * time.Hour, 168 * time.Hour},
}

// DefaultVerificationWindow applies to timeframes without an entry.
const DefaultVerificationWindow = 4 * time.Hour

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeSpecs[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TFH1 }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// ParseTimeframes parses a comma separated list such as "M15,H1,H4".
// Duplicates are dropped and unknown names are an error.
func ParseTimeframes(s string) ([]Timeframe, error) {
	seen := make(map[Timeframe]bool)
	var out []Timeframe
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		tf := Timeframe(part)
		if !IsValidTimeframe(tf) {
			return nil, fmt.Errorf("unknown timeframe %q", part)
		}
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no timeframes given")
	}
	return out, nil
}

// Rank orders timeframes from M1 (1) to W1 (8). Unknown timeframes rank 0.
func (tf Timeframe) Rank() int { return timeframeSpecs[tf].rank }

// BarDuration is the length of one bar.
func (tf Timeframe) BarDuration() time.Duration { return timeframeSpecs[tf].bar }

// VerificationWindow is how long a prediction on tf must age before it can be verified.
func (tf Timeframe) VerificationWindow() time.Duration {
	if s, ok := timeframeSpecs[tf]; ok {
		return s.window
	}
	return DefaultVerificationWindow
}

func (tf Timeframe) String() string { return string(tf) }
