package models

import "time"

// ModelMetadata is the JSON sidecar written next to each model version.
type ModelMetadata struct {
	Version           string             `json:"version"`
	TrainingDate      time.Time          `json:"training_date"`
	TrainingSamples   int                `json:"training_samples"`
	TestSamples       int                `json:"test_samples"`
	TrainingDuration  float64            `json:"training_duration"`
	TrainAccuracy     float64            `json:"train_accuracy"`
	TestAccuracy      float64            `json:"test_accuracy"`
	CVMean            float64            `json:"cv_mean"`
	CVStd             float64            `json:"cv_std"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	FeatureNames      []string           `json:"feature_names"`
	FeatureSchema     int                `json:"feature_schema"`
	Params            map[string]float64 `json:"params,omitempty"`
	Symbol            string             `json:"symbol,omitempty"`
	Timeframe         string             `json:"timeframe,omitempty"`
}

// ModelVersion is a listed version with its active flag.
type ModelVersion struct {
	ModelMetadata
	Active bool `json:"active"`
}

// TrainingResult is the evaluation report returned by the trainer.
type TrainingResult struct {
	Version           string             `json:"version"`
	TrainAccuracy     float64            `json:"train_accuracy"`
	TestAccuracy      float64            `json:"test_accuracy"`
	CVMean            float64            `json:"cv_mean"`
	CVStd             float64            `json:"cv_std"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	TrainingSamples   int                `json:"training_samples"`
	TestSamples       int                `json:"test_samples"`
	Duration          time.Duration      `json:"training_duration"`
	TrainedAt         time.Time          `json:"training_date"`
	Params            map[string]float64 `json:"params,omitempty"`
}

type TrainingTimeSource string

const (
	TrainingTimeMetadata  TrainingTimeSource = "metadata"
	TrainingTimeFileMtime TrainingTimeSource = "file_mtime"
	TrainingTimeNone      TrainingTimeSource = "none"
)
