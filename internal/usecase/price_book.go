package usecase

import (
	"sort"
	"sync"

	"FinSense/internal/domain/models"
)

// PriceBook keeps the latest quote per symbol.
type PriceBook struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
}

func NewPriceBook() *PriceBook {
	return &PriceBook{quotes: make(map[string]models.Quote)}
}

// Update stores q unless an equal or newer quote is already known.
func (b *PriceBook) Update(q models.Quote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.quotes[q.Symbol]; ok && !q.Time.After(cur.Time) {
		return false
	}
	b.quotes[q.Symbol] = q
	return true
}

func (b *PriceBook) Last(symbol string) (models.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	return q, ok
}

// Snapshot returns every known quote ordered by symbol.
func (b *PriceBook) Snapshot() []models.Quote {
	b.mu.RLock()
	out := make([]models.Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		out = append(out, q)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
