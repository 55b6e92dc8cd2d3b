package learner

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"FinSense/internal/domain/models"
)

const historyFile = "retraining_history.jsonl"

// ErrNoHistory is returned by Last when nothing has been recorded yet.
var ErrNoHistory = errors.New("no retraining history")

// History is the append-only retraining log, one JSON object per line.
type History struct {
	path string
	mu   sync.Mutex
}

func NewHistory(dir string) *History {
	return &History{path: filepath.Join(dir, historyFile)}
}

func (h *History) Path() string { return h.path }

func (h *History) Append(ev models.RetrainEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append history: %w", err)
	}
	return f.Close()
}

// Entries returns every readable entry, oldest first. Corrupt lines are skipped.
func (h *History) Entries() ([]models.RetrainEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var out []models.RetrainEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev models.RetrainEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}

func (h *History) Last() (*models.RetrainEvent, error) {
	entries, err := h.Entries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoHistory
	}
	return &entries[len(entries)-1], nil
}
