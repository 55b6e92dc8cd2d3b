package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches []LogBatch
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, value.(LogBatch))
	return nil
}

func (p *capturePublisher) entries() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b.Entries...)
	}
	return out
}

func TestCollector_FoldsRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	c := l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "finsense.logs",
		Source:         "finsense",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("bar feed request error", String("symbol", "EURUSD"))
	}
	l.Error("persist prediction failed")
	l.Warn("not collected")
	c.Flush()

	entries := pub.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "finsense.logs", pub.topic)
	byMsg := make(map[string]AggregatedLogEntry)
	for _, e := range entries {
		byMsg[e.Message] = e
	}
	feed := byMsg["bar feed request error"]
	assert.Equal(t, 3, feed.Count)
	assert.Equal(t, "EURUSD", feed.Fields["symbol"])
	assert.Contains(t, feed.Caller, "logger_test.go")
	assert.Equal(t, 1, byMsg["persist prediction failed"].Count)

	l.RemoveCollector()
}

func TestCollector_ThresholdFlushAndClose(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub, IncludeWarn: true})

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("warn", "b", nil, "x.go:2")
	c.AddLog("error", "c", nil, "x.go:3")
	c.Close()

	assert.Len(t, pub.entries(), 3)
	c.Close()
}

func TestCollector_StoresErrorText(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	c := l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	defer l.RemoveCollector()

	l.Error("clickhouse insert failed", Error(errors.New("timeout")), Duration("took", 1500*time.Millisecond))
	c.Flush()

	entries := pub.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "timeout", entries[0].Fields["error"])
	assert.Equal(t, int64(1500), entries[0].Fields["took"])
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)

	l, err := New(&Config{Level: "warn", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	l.Info("dropped below warn")
}

func TestTrimModulePath(t *testing.T) {
	assert.Equal(t, "internal/services/tracker/tracker.go", trimModulePath("/src/finsense/internal/services/tracker/tracker.go"))
	assert.Equal(t, "main.go", trimModulePath("/tmp/main.go"))
}
