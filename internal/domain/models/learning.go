package models

import "time"

type RetrainTrigger string

const (
	TriggerAutomatic RetrainTrigger = "automatic"
	TriggerManual    RetrainTrigger = "manual"
	TriggerSetup     RetrainTrigger = "setup"
)

// RetrainDecision combines accuracy- and age-based reasons to retrain.
type RetrainDecision struct {
	ShouldRetrain     bool                  `json:"should_retrain"`
	Reasons           []string              `json:"reasons"`
	Recommendation    RetrainRecommendation `json:"recommendation"`
	ActiveVersion     string                `json:"active_version,omitempty"`
	LastTraining      *time.Time            `json:"last_training,omitempty"`
	DaysSinceTraining float64               `json:"days_since_training"`
	CheckedAt         time.Time             `json:"checked_at"`
}

type RetrainParams struct {
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	Bars      int            `json:"bars"`
	Tuning    bool           `json:"tuning"`
	Trigger   RetrainTrigger `json:"trigger"`
}

// RetrainResult never carries a Go error; failures are described by Error.
type RetrainResult struct {
	Success         bool           `json:"success"`
	Version         string         `json:"version,omitempty"`
	Symbol          string         `json:"symbol"`
	Timeframe       string         `json:"timeframe"`
	Trigger         RetrainTrigger `json:"trigger"`
	TestAccuracy    float64        `json:"accuracy"`
	CVScore         float64        `json:"cv_score"`
	PreviousVersion string         `json:"previous_version,omitempty"`
	Improvement     *float64       `json:"improvement,omitempty"`
	TrainingSamples int            `json:"training_samples"`
	Duration        time.Duration  `json:"duration"`
	StartedAt       time.Time      `json:"started_at"`
	Error           string         `json:"error,omitempty"`
}

// RetrainEvent is one line of the append-only retraining history.
type RetrainEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Accuracy  float64        `json:"accuracy"`
	CVScore   float64        `json:"cv_score"`
	Trigger   RetrainTrigger `json:"trigger"`
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	Samples   int            `json:"training_samples"`
}

type LearningStats struct {
	Accuracy7d         float64            `json:"accuracy_7d"`
	Accuracy30d        float64            `json:"accuracy_30d"`
	Predictions7d      int                `json:"predictions_7d"`
	Predictions30d     int                `json:"predictions_30d"`
	LastTraining       *time.Time         `json:"last_training,omitempty"`
	TrainingTimeSource TrainingTimeSource `json:"training_time_source"`
	DaysSinceTraining  float64            `json:"days_since_training"`
	ModelVersions      int                `json:"model_versions"`
	LatestVersion      string             `json:"latest_version,omitempty"`
	ActiveVersion      string             `json:"active_version,omitempty"`
	AutoRetrainEnabled bool               `json:"auto_retrain_enabled"`
	LastRetrain        *RetrainEvent      `json:"last_retrain,omitempty"`
}

// SetupRecord is written once after the initial training succeeds.
type SetupRecord struct {
	Symbol          string    `json:"symbol"`
	Timeframe       string    `json:"timeframe"`
	NumBars         int       `json:"num_bars"`
	ModelVersion    string    `json:"model_version"`
	Accuracy        float64   `json:"accuracy"`
	CVScore         float64   `json:"cv_score"`
	TrainingSamples int       `json:"training_samples"`
	CompletedAt     time.Time `json:"completed_at"`
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Done reports whether the status is terminal.
func (s TaskStatus) Done() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCancelled
}

// Task is a background retraining run.
type Task struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Status     TaskStatus     `json:"status"`
	Stage      string         `json:"stage,omitempty"`
	Progress   float64        `json:"progress"`
	Params     RetrainParams  `json:"params"`
	Result     *RetrainResult `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
