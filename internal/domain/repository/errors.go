package repository

import "errors"

var (
	ErrDataUnavailable          = errors.New("data unavailable")
	ErrInsufficientTrainingData = errors.New("insufficient training data")
	ErrModelNotLoaded           = errors.New("model not loaded")
	ErrPersistenceFailure       = errors.New("persistence failure")
	ErrAlreadyVerified          = errors.New("prediction already verified")
	ErrPredictionNotFound       = errors.New("prediction not found")
	ErrVersionExists            = errors.New("model version already exists")
)
