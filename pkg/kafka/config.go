package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption tunes the kafka-go writer behind a Producer. Zero or empty
// arguments leave the default in place.
type ProducerOption func(*producerSettings)

type producerSettings struct {
	brokers     []string
	compression string
	writer      *kafka.Writer
}

func defaultProducerSettings() *producerSettings {
	return &producerSettings{
		compression: "snappy",
		writer: &kafka.Writer{
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
			BatchSize:    100,
			BatchBytes:   1 << 20,
			BatchTimeout: 200 * time.Millisecond,
		},
	}
}

func WithBrokers(brokers []string) ProducerOption {
	return func(s *producerSettings) { s.brokers = brokers }
}

// WithCompression accepts gzip, snappy, lz4 or zstd.
func WithCompression(codec string) ProducerOption {
	return func(s *producerSettings) {
		if codec != "" {
			s.compression = codec
		}
	}
}

// WithRequiredAcks takes -1 for all in-sync replicas, 0 or 1.
func WithRequiredAcks(acks int) ProducerOption {
	return func(s *producerSettings) { s.writer.RequiredAcks = kafka.RequiredAcks(acks) }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(s *producerSettings) {
		if n > 0 {
			s.writer.MaxAttempts = n
		}
	}
}

func WithBatchSize(size int) ProducerOption {
	return func(s *producerSettings) {
		if size > 0 {
			s.writer.BatchSize = size
		}
	}
}

// WithBatchTimeout is the linger before a partial batch is sent.
func WithBatchTimeout(linger time.Duration) ProducerOption {
	return func(s *producerSettings) {
		if linger > 0 {
			s.writer.BatchTimeout = linger
		}
	}
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(s *producerSettings) {
		if write > 0 {
			s.writer.WriteTimeout = write
		}
		if read > 0 {
			s.writer.ReadTimeout = read
		}
	}
}

// WithAsync makes Publish return before the broker acknowledges.
func WithAsync(async bool) ProducerOption {
	return func(s *producerSettings) { s.writer.Async = async }
}

// WithHashByKey keeps every event of one symbol on one partition. Without
// it batches go to the partition with the fewest bytes.
func WithHashByKey(hash bool) ProducerOption {
	return func(s *producerSettings) {
		if hash {
			s.writer.Balancer = &kafka.Hash{}
		} else {
			s.writer.Balancer = &kafka.LeastBytes{}
		}
	}
}

func WithAutoCreateTopics(enabled bool) ProducerOption {
	return func(s *producerSettings) { s.writer.AllowAutoTopicCreation = enabled }
}
