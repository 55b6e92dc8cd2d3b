package usecase

import (
	"context"
	"fmt"

	"FinSense/internal/domain/models"
	"FinSense/pkg/logger"
	"FinSense/pkg/queue"
)

const RetrainJobType = "model.retrain"

// RetrainJob runs queued retraining requests. A failed run is returned as an
// error so the queue retries it and finally dead-letters it.
type RetrainJob struct {
	retrainer Retrainer
	l         *logger.Logger
}

func NewRetrainJob(retrainer Retrainer, l *logger.Logger) *RetrainJob {
	if l == nil {
		l = logger.Nop()
	}
	return &RetrainJob{retrainer: retrainer, l: l}
}

func (j *RetrainJob) Name() string { return "retrain" }

func (j *RetrainJob) Type() string { return RetrainJobType }

func (j *RetrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[models.RetrainParams](payload)
	if err != nil {
		return fmt.Errorf("parse retrain payload: %w", err)
	}
	res := j.retrainer.ExecuteRetraining(ctx, *p, nil)
	if !res.Success {
		return fmt.Errorf("queued retraining failed: %s", res.Error)
	}
	j.l.Info("queued retraining done",
		logger.String("category", "ml_training"),
		logger.String("version", res.Version),
		logger.Float64("accuracy", res.TestAccuracy),
	)
	return nil
}

var _ queue.Job = (*RetrainJob)(nil)
