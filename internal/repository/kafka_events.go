package repository

import (
	"context"
	"strings"
	"time"

	"FinSense/internal/domain/repository"
	pkgkafka "FinSense/pkg/kafka"
)

// Event is the envelope written to Kafka for every domain event.
type Event struct {
	Type    string      `json:"type"`
	Key     string      `json:"key"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// KafkaPublisher routes prediction events and model events to separate topics.
type KafkaPublisher struct {
	producer         *pkgkafka.Producer
	predictionsTopic string
	modelTopic       string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, predictionsTopic, modelTopic string) *KafkaPublisher {
	return &KafkaPublisher{
		producer:         producer,
		predictionsTopic: predictionsTopic,
		modelTopic:       modelTopic,
	}
}

func (p *KafkaPublisher) topicFor(eventType string) string {
	if strings.HasPrefix(eventType, "prediction.") {
		return p.predictionsTopic
	}
	return p.modelTopic
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, key string, payload interface{}) error {
	return p.producer.PublishBatch(ctx, p.topicFor(eventType), []pkgkafka.Message{{
		Key:     []byte(key),
		Value:   Event{Type: eventType, Key: key, Time: time.Now().UTC(), Payload: payload},
		Headers: map[string]string{"event_type": eventType},
	}})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ repository.EventPublisher = (*KafkaPublisher)(nil)
