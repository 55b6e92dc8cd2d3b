package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_PerKeyBuckets(t *testing.T) {
	l := New(2, 1)
	now := time.Unix(1700000000, 0)

	assert.True(t, l.AllowAt("EURUSD", now))
	assert.False(t, l.AllowAt("EURUSD", now.Add(100*time.Millisecond)))
	assert.True(t, l.AllowAt("GBPUSD", now), "keys have independent buckets")
	assert.True(t, l.AllowAt("EURUSD", now.Add(600*time.Millisecond)))
	assert.Equal(t, 2, l.Keys())
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 0)
	now := time.Now()
	for i := 0; i < 100; i++ {
		assert.True(t, l.AllowAt("x", now))
	}
	assert.Zero(t, l.Keys())
}
