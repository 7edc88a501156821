package rest

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker probes one dependency for readiness
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the HealthChecker interface
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// HealthResponse reports liveness or readiness state
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth serves GET /health. Liveness only: the process is up.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, r, HealthResponse{Status: "healthy", Version: h.version})
}

// handleReady serves GET /ready. Readiness runs every registered checker
// with a short deadline; any failure flips the status and the code to 503.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for _, checker := range h.checkers {
		if err := checker.Check(ctx); err != nil {
			checks[checker.Name()] = err.Error()
			healthy = false
			continue
		}
		checks[checker.Name()] = "ok"
	}

	resp := HealthResponse{Status: "ready", Version: h.version, Checks: checks}
	if !healthy {
		resp.Status = "degraded"

		meta := metaFromRequest(r)
		writeJSON(w, http.StatusServiceUnavailable, ResponseEnvelope{
			Success: false,
			Data:    resp,
			Error:   &ErrorResponse{Code: "NOT_READY", Message: "One or more dependencies are unavailable"},
			Meta: ResponseMeta{
				RequestID: meta.RequestID,
				Timestamp: time.Now().UTC(),
				Version:   h.version,
			},
		})
		return
	}

	h.writeSuccess(w, r, resp)
}
