package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string `json:"symbol"`
	Bars   int    `json:"bars"`
}

func TestParsePayload(t *testing.T) {
	want := payload{Symbol: "EURUSD", Bars: 5000}

	got, err := ParsePayload[payload](want)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	got, err = ParsePayload[payload](&want)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	got, err = ParsePayload[payload](map[string]interface{}{"symbol": "EURUSD", "bars": 5000})
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	raw, _ := json.Marshal(want)
	got, err = ParsePayload[payload](json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	_, err = ParsePayload[payload](json.RawMessage(`{"bars":"many"}`))
	assert.Error(t, err)

	_, err = ParsePayload[payload](42)
	assert.Error(t, err)
}

func TestMessage_PayloadSurvivesEnvelope(t *testing.T) {
	body, _ := json.Marshal(payload{Symbol: "GBPUSD", Bars: 800})
	data, err := json.Marshal(Message{ID: "m1", Type: "model.retrain", Payload: body})
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	got, err := ParsePayload[payload](msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, "GBPUSD", got.Symbol)
	assert.Equal(t, 800, got.Bars)
}

func TestRetryAt_BacksOffThenGivesUp(t *testing.T) {
	cfg := (&QueueConfig{RetryLimit: 2, RetryDelay: 30 * time.Second}).withDefaults()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	at, ok := cfg.retryAt(Message{Attempts: 1}, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(30*time.Second), at)

	at, ok = cfg.retryAt(Message{Attempts: 2}, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), at)

	_, ok = cfg.retryAt(Message{Attempts: 3}, now)
	assert.False(t, ok)
}

func TestQueueConfig_Defaults(t *testing.T) {
	cfg := (*QueueConfig)(nil).withDefaults()
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.RetryDelay)
}

type noopJob struct{}

func (noopJob) Name() string                               { return "noop" }
func (noopJob) Type() string                               { return "test.noop" }
func (noopJob) Handle(context.Context, interface{}) error { return nil }

func TestRedisQueue_Keys(t *testing.T) {
	q := NewRedisConsumer(nil, nil, nil, []Job{noopJob{}, noopJob{}}, WithKeyPrefix("fs"))
	assert.Equal(t, "fs:jobs", q.pendingKey())
	assert.Equal(t, "fs:jobs:retry", q.retryKey())
	assert.Equal(t, "fs:jobs:dead", q.deadKey())
	assert.Len(t, q.jobs, 1)

	err := q.Enqueue(context.Background(), "test.unknown", nil)
	assert.ErrorContains(t, err, "no job registered")

	p := NewRedisPublisher(nil, nil)
	assert.Equal(t, "finsense:jobs", p.pendingKey())
	assert.Error(t, p.Start())
}
