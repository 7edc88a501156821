package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route onto a method-pattern mux
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/scenarios/{id}/audit-trail", h.handleAuditTrail)
	mux.HandleFunc("GET /api/v1/scenarios/{id}/state-changes", h.handleStateChanges)
	mux.HandleFunc("GET /api/v1/scenarios/{id}/runs/{runID}/comparison", h.handleRunComparison)
	mux.HandleFunc("GET /api/v1/scenarios/{id}/error-summary", h.handleErrorSummary)

	mux.HandleFunc("GET /api/v1/users/{id}/journey", h.handleUserJourney)

	mux.HandleFunc("GET /api/v1/insights/error-categories", h.handleErrorCategories)
	mux.HandleFunc("GET /api/v1/insights/failing-nodes", h.handleFailingNodes)
	mux.HandleFunc("GET /api/v1/insights/success-rate", h.handleSuccessRate)

	return mux
}
