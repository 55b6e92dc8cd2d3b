package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: test
server:
  port: 9090
tracker:
  verification_windows:
    H1: 6h
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 30*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, "badger", c.Storage.Backend)
	assert.Equal(t, 0.05, c.Tracker.OutcomeThresholdPct)
	assert.Equal(t, 192*time.Hour, c.Tracker.Lookback)
	assert.Equal(t, 6*time.Hour, c.Tracker.VerificationWindows["H1"])
	assert.Equal(t, time.Hour, c.Learning.CheckInterval)
	assert.Equal(t, 30*time.Minute, c.Learning.TrainTimeout)
	assert.Equal(t, "M15,H1,H4", c.Sentiment.Timeframes)
	assert.Equal(t, 0.6, c.Trainer.Weights.Boosting)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"backend":  "storage:\n  backend: mongo\n",
		"postgres": "storage:\n  backend: postgres\n",
		"stream":   "stream:\n  enabled: true\n",
		"queue":    "queue:\n  enabled: true\n",
		"kafka":    "kafka:\n  enabled: true\n",
		"testsize": "trainer:\n  test_size: 1.5\n",
		"chlock":   "storage:\n  backend: clickhouse\nredis:\n  enabled: false\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ClickHouseBackendWithRedis(t *testing.T) {
	c, err := Load(writeConfig(t, "storage:\n  backend: clickhouse\nredis:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", c.Storage.Backend)
	assert.True(t, c.Redis.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FINSENSE_STORAGE_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/finsense")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("SYMBOLS", "EURUSD,GBPUSD")

	c := Default()
	require.NoError(t, c.applyEnv())
	require.NoError(t, c.Validate())

	assert.Equal(t, "postgres", c.Storage.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "redis:6380", c.RedisAddr())
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, c.Stream.Symbols)
}

func TestApplyEnv_BadRedisPort(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:abc")
	assert.Error(t, Default().applyEnv())
}
