package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(WithCompression("zstd"))
	assert.Error(t, err)
}

func TestNewProducer_AppliesOptions(t *testing.T) {
	p, err := NewProducer(
		WithBrokers([]string{"b1:9092", "b2:9092"}),
		WithCompression("lz4"),
		WithRequiredAcks(1),
		WithBatchTimeout(50*time.Millisecond),
		WithMaxAttempts(0),
		WithHashByKey(false),
	)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "lz4", p.comp)
	assert.Equal(t, kafka.RequireOne, p.writer.RequiredAcks)
	assert.Equal(t, 50*time.Millisecond, p.writer.BatchTimeout)
	assert.Equal(t, 3, p.writer.MaxAttempts)
	assert.IsType(t, &kafka.LeastBytes{}, p.writer.Balancer)
	assert.Equal(t, kafka.Lz4, p.writer.Compression)
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"bars": 500})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bars":500}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}
