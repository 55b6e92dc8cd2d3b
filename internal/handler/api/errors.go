package api

import (
	"errors"

	domrepo "FinSense/internal/domain/repository"
	"FinSense/internal/usecase"
	xhttp "FinSense/pkg/http"
)

// toAppError maps domain failures onto HTTP statuses. Errors that already are
// an *AppError pass through.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, domrepo.ErrDataUnavailable):
		return xhttp.NotFoundError("market data unavailable").WithError(err)
	case errors.Is(err, domrepo.ErrPredictionNotFound):
		return xhttp.NotFoundError("prediction not found").WithError(err)
	case errors.Is(err, usecase.ErrTaskNotFound):
		return xhttp.NotFoundError("task not found").WithError(err)
	case errors.Is(err, domrepo.ErrInsufficientTrainingData):
		return xhttp.UnprocessableError("not enough training data").WithError(err)
	case errors.Is(err, domrepo.ErrModelNotLoaded):
		return xhttp.ConflictError("model not loaded").WithError(err)
	case errors.Is(err, domrepo.ErrAlreadyVerified):
		return xhttp.ConflictError("prediction already verified").WithError(err)
	case errors.Is(err, domrepo.ErrVersionExists):
		return xhttp.ConflictError("model version already exists").WithError(err)
	case errors.Is(err, usecase.ErrTaskRunning):
		return xhttp.ConflictError("a retrain task is already running").WithError(err)
	case errors.Is(err, usecase.ErrTaskFinished):
		return xhttp.ConflictError("task already finished").WithError(err)
	case errors.Is(err, domrepo.ErrPersistenceFailure):
		return xhttp.ServiceUnavailableError("storage unavailable").WithError(err)
	}
	return xhttp.InternalError("internal error").WithError(err)
}
