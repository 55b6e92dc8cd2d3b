package ml

import (
	"fmt"
	"math"
)

// minStd replaces degenerate standard deviations so constant columns scale to zero.
const minStd = 1e-10

// StandardScaler applies a per-column z-score learned from training rows.
type StandardScaler struct {
	Names []string  `json:"feature_names"`
	Mean  []float64 `json:"mean"`
	Std   []float64 `json:"std"`
}

// FitScaler learns column means and population standard deviations.
func FitScaler(names []string, rows [][]float64) (*StandardScaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("fit scaler: no rows")
	}
	cols := len(rows[0])
	s := &StandardScaler{
		Names: append([]string(nil), names...),
		Mean:  make([]float64, cols),
		Std:   make([]float64, cols),
	}
	n := float64(len(rows))
	for _, row := range rows {
		for c, v := range row {
			s.Mean[c] += v
		}
	}
	for c := range s.Mean {
		s.Mean[c] /= n
	}
	for _, row := range rows {
		for c, v := range row {
			d := v - s.Mean[c]
			s.Std[c] += d * d
		}
	}
	for c := range s.Std {
		s.Std[c] = math.Sqrt(s.Std[c] / n)
		if s.Std[c] < minStd {
			s.Std[c] = 1
		}
	}
	return s, nil
}

// Transform returns scaled copies of rows.
func (s *StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for r, row := range rows {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("scaler transform: row %d has %d columns, want %d", r, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for c, v := range row {
			scaled[c] = (v - s.Mean[c]) / s.Std[c]
		}
		out[r] = scaled
	}
	return out, nil
}
