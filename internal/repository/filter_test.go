package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"FinSense/internal/domain/models"
)

func TestPredicateBuilder(t *testing.T) {
	where, args := predicateBuilder(models.PredictionFilter{}, dollar)
	assert.Empty(t, where)
	assert.Empty(t, args)

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600))
	f := models.VerifiedSince("EURUSD", since)

	where, args = predicateBuilder(f, dollar)
	assert.Equal(t, " WHERE symbol = $1 AND verified = $2 AND verified_at >= $3", where)
	assert.Equal(t, []interface{}{"EURUSD", true, since.UTC()}, args)

	where, _ = predicateBuilder(f, question)
	assert.Equal(t, " WHERE symbol = ? AND verified = ? AND verified_at >= ?", where)
}

func TestKafkaPublisher_TopicRouting(t *testing.T) {
	p := NewKafkaPublisher(nil, "finsense.predictions", "finsense.model-events")
	assert.Equal(t, "finsense.predictions", p.topicFor("prediction.created"))
	assert.Equal(t, "finsense.predictions", p.topicFor("prediction.verified"))
	assert.Equal(t, "finsense.model-events", p.topicFor("model.retrained"))
	assert.NoError(t, p.Close())
}
