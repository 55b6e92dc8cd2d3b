package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	s := defaultSettings()
	for _, opt := range []ClientOption{
		WithHost("ch.local"),
		WithPort(8123),
		WithDatabase(""),
		WithCredentials("", "secret"),
		WithHTTP(true),
		WithAsyncInsert(true, false),
		WithMaxExecutionTime(90 * time.Second),
		WithTimeouts(0, 30*time.Second, time.Second),
	} {
		opt(s)
	}

	assert.Equal(t, "ch.local:8123", s.addr())
	assert.Equal(t, "finsense", s.opts.Auth.Database)
	assert.Equal(t, "default", s.opts.Auth.Username)
	assert.Equal(t, "secret", s.opts.Auth.Password)
	assert.Equal(t, ch.HTTP, s.opts.Protocol)
	assert.Equal(t, ch.CompressionGZIP, s.opts.Compression.Method)
	assert.Equal(t, 1, s.opts.Settings["async_insert"])
	assert.NotContains(t, s.opts.Settings, "wait_for_async_insert")
	assert.Equal(t, 90, s.opts.Settings["max_execution_time"])
	assert.Equal(t, 5*time.Second, s.opts.DialTimeout)
	assert.Equal(t, 30*time.Second, s.opts.ReadTimeout)
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(WithDatabase("finsense"))
	assert.Error(t, err)
}
