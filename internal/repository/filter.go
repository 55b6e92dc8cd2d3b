package repository

import (
	"fmt"
	"strings"

	"FinSense/internal/domain/models"
)

// predicateBuilder renders a PredictionFilter into a WHERE clause. placeholder
// returns the bind marker for the n-th argument (1-based).
func predicateBuilder(f models.PredictionFilter, placeholder func(n int) string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(expr string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, placeholder(len(args))))
	}
	if f.Symbol != "" {
		add("symbol = %s", f.Symbol)
	}
	if f.Verified != nil {
		add("verified = %s", *f.Verified)
	}
	if !f.CreatedSince.IsZero() {
		add("created_at >= %s", f.CreatedSince.UTC())
	}
	if !f.VerifiedSince.IsZero() {
		add("verified_at >= %s", f.VerifiedSince.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func question(int) string { return "?" }
