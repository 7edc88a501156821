package rest

import (
	"context"
	"errors"
	"net/http"

	domainErrors "github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// ErrorHandler converts errors into HTTP status codes and response fields
type ErrorHandler interface {
	HandleError(err error) (status int, code, message, details string)
}

// DefaultErrorHandler maps domain errors onto their declared status codes
// and falls back to 500 for anything unrecognized. Details are only
// populated in debug mode; production responses never leak internals.
type DefaultErrorHandler struct {
	debugMode bool
}

// NewErrorHandler creates an error handler. Debug mode includes raw error
// text in the details field.
func NewErrorHandler(debugMode bool) ErrorHandler {
	return &DefaultErrorHandler{debugMode: debugMode}
}

// HandleError converts various error types to HTTP responses
func (h *DefaultErrorHandler) HandleError(err error) (int, string, string, string) {
	if err == nil {
		return http.StatusOK, "", "", ""
	}

	var appErr *domainErrors.AppError
	if errors.As(err, &appErr) {
		details := ""
		if h.debugMode && appErr.Cause != nil {
			details = appErr.Cause.Error()
		}
		return appErr.StatusCode, appErr.Code, appErr.Message, details
	}

	if errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout, "REQUEST_CANCELED", "Request was canceled", ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "REQUEST_TIMEOUT", "Request timed out", ""
	}

	details := ""
	if h.debugMode {
		details = err.Error()
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred", details
}
