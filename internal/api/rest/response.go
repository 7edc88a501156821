package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type contextKey string

const contextKeyRequestMeta contextKey = "request_meta"

// RequestMeta carries per-request metadata through the context
type RequestMeta struct {
	RequestID string
	Start     time.Time
}

func metaFromRequest(r *http.Request) *RequestMeta {
	if meta, ok := r.Context().Value(contextKeyRequestMeta).(*RequestMeta); ok {
		return meta
	}
	return &RequestMeta{RequestID: uuid.NewString(), Start: time.Now()}
}

// writeSuccess writes a successful enveloped response
func (h *Handler) writeSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	meta := metaFromRequest(r)

	writeJSON(w, http.StatusOK, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta: ResponseMeta{
			RequestID:    meta.RequestID,
			Timestamp:    time.Now().UTC(),
			Version:      h.version,
			ResponseTime: time.Since(meta.Start).String(),
		},
	})
}

// writeError maps err through the error handler and writes the envelope
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	meta := metaFromRequest(r)
	status, code, message, details := h.errors.HandleError(err)

	writeJSON(w, status, ResponseEnvelope{
		Success: false,
		Error: &ErrorResponse{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: ResponseMeta{
			RequestID:    meta.RequestID,
			Timestamp:    time.Now().UTC(),
			Version:      h.version,
			ResponseTime: time.Since(meta.Start).String(),
		},
	})
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
