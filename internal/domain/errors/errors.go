package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure classes
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeBusiness   ErrorType = "business"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

// NewMalformedRecordError reports a source record that cannot be normalized.
// Always per-record: batch processing skips the record and continues.
func NewMalformedRecordError(source, reason string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       "MALFORMED_RECORD",
		Message:    fmt.Sprintf("malformed %s record: %s", source, reason),
		Retryable:  false,
		StatusCode: 400,
		Details:    map[string]interface{}{"source": source, "reason": reason},
	}
}

// NewRunNotFoundError reports an unknown run id for a comparison request.
func NewRunNotFoundError(runID string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RUN_NOT_FOUND",
		Message:    fmt.Sprintf("run %s not found", runID),
		Retryable:  false,
		StatusCode: 404,
		Details:    map[string]interface{}{"run_id": runID},
	}
}

// NewNoRunsError reports a scenario with no recorded runs at all.
func NewNoRunsError(scenarioID string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "NO_RUNS_FOR_SCENARIO",
		Message:    fmt.Sprintf("scenario %s has no runs", scenarioID),
		Retryable:  false,
		StatusCode: 404,
		Details:    map[string]interface{}{"scenario_id": scenarioID},
	}
}

// NewAmbiguousTimestampError reports a record whose timestamps cannot be
// ordered (e.g. a run that completed before it started). The record is still
// emitted with an anomaly flag; this error only surfaces in batch samples.
func NewAmbiguousTimestampError(field, detail string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       "AMBIGUOUS_TIMESTAMP",
		Message:    fmt.Sprintf("ambiguous timestamp in %s: %s", field, detail),
		Retryable:  false,
		StatusCode: 400,
		Details:    map[string]interface{}{"field": field},
	}
}

// Predefined common errors
var (
	ErrInvalidInput     = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrScenarioNotFound = NewNotFoundError("scenario")
	ErrEventNotFound    = NewNotFoundError("event")
	ErrUserNotFound     = NewNotFoundError("user")
	ErrDuplicateEvent   = NewConflictError("Duplicate event detected")
	ErrEmptyBatch       = NewValidationError("EMPTY_BATCH", "Batch contains no records")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCode wraps an error and returns an AppError
func WrapWithCode(err error, code, message string) *AppError {
	appErr := NewInternalError(message).WithCause(err)
	appErr.Code = code
	return appErr
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsCode checks if an error carries a specific application code
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
