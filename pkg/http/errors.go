package http

import (
	"fmt"
	"net/http"
)

// AppError is an error that knows how it should be reported to API clients.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// WithParam attaches a detail shown to the client.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithField names the request field the error is about.
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

// WithError keeps the cause for logs; it is never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func newAppError(status int, code, format string, a ...interface{}) *AppError {
	msg := format
	if len(a) > 0 {
		msg = fmt.Sprintf(format, a...)
	}
	return &AppError{Code: code, Message: msg, Status: status}
}

func BadRequestError(format string, a ...interface{}) *AppError {
	return newAppError(http.StatusBadRequest, "ERR_BAD_REQUEST", format, a...)
}

func NotFoundError(format string, a ...interface{}) *AppError {
	return newAppError(http.StatusNotFound, "ERR_NOT_FOUND", format, a...)
}

// ConflictError reports a state clash, e.g. an already verified prediction.
func ConflictError(format string, a ...interface{}) *AppError {
	return newAppError(http.StatusConflict, "ERR_CONFLICT", format, a...)
}

// UnprocessableError is for well-formed requests the data cannot satisfy.
func UnprocessableError(format string, a ...interface{}) *AppError {
	return newAppError(http.StatusUnprocessableEntity, "ERR_UNPROCESSABLE", format, a...)
}

func TooManyRequestsError(format string, a ...interface{}) *AppError {
	return newAppError(http.StatusTooManyRequests, "ERR_RATE_LIMITED", format, a...)
}

// ServiceUnavailableError signals a missing dependency such as an
// untrained model or an unreachable bar feed.
func ServiceUnavailableError(format string, a ...interface{}) *AppError {
	return newAppError(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", format, a...)
}

func InternalError(format string, a ...interface{}) *AppError {
	return newAppError(http.StatusInternalServerError, "ERR_INTERNAL", format, a...)
}
