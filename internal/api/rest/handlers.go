package rest

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/cache"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/config"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/database"
	"github.com/clearsight/scenario-audit-backend/internal/metrics"
	"github.com/clearsight/scenario-audit-backend/internal/service/insights"
	"github.com/clearsight/scenario-audit-backend/internal/service/journey"
	"github.com/clearsight/scenario-audit-backend/internal/service/rundiff"
)

// Store is the read surface the API serves from. The reporting repository
// implements it; tests substitute fakes.
type Store interface {
	ListEvents(ctx context.Context, f database.EventFilter) ([]*audit.Event, error)
	ListRuns(ctx context.Context, f database.RunFilter) ([]*audit.Run, error)
	ListInputChanges(ctx context.Context, scenarioID string) ([]*audit.InputChangeRecord, error)
	ListDailyRollups(ctx context.Context, from, to time.Time) ([]insights.DailyRate, error)
}

// Handler serves the correlation read API. All endpoints are reads over
// the reporting schema the pipeline materializes; the pure services
// recompute derived views on demand.
type Handler struct {
	store    Store
	cache    *cache.TimelineCache
	insight  insights.Service
	journeys journey.Service
	differ   rundiff.Service
	errors   ErrorHandler
	logger   *zap.Logger
	registry *metrics.Registry

	version      string
	topLimit     int
	trailingDays int
	sessionGap   time.Duration

	checkers []HealthChecker
}

// HandlerOptions collects the dependencies a Handler needs. Cache may be
// nil; responses are then always computed.
type HandlerOptions struct {
	Store    Store
	Cache    *cache.TimelineCache
	Insight  insights.Service
	Journeys journey.Service
	Differ   rundiff.Service
	Logger   *zap.Logger
	Registry *metrics.Registry
	Version  string
	Checkers []HealthChecker

	Correlation config.CorrelationConfig

	// Debug adds error causes to responses; keep off outside development.
	Debug bool
}

// NewHandler creates the API handler
func NewHandler(opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	journeys := opts.Journeys
	if journeys == nil {
		journeys = journey.NewService(logger)
	}
	insight := opts.Insight
	if insight == nil {
		insight = insights.NewService(journeys, logger)
	}
	differ := opts.Differ
	if differ == nil {
		differ = rundiff.NewService(logger)
	}

	topLimit := opts.Correlation.TopLimit
	if topLimit <= 0 {
		topLimit = 10
	}
	trailingDays := opts.Correlation.TrailingDays
	if trailingDays <= 0 {
		trailingDays = 30
	}
	sessionGap := opts.Correlation.SessionGap
	if sessionGap <= 0 {
		sessionGap = audit.DefaultSessionGap
	}

	version := opts.Version
	if version == "" {
		version = "v1"
	}

	return &Handler{
		store:        opts.Store,
		cache:        opts.Cache,
		insight:      insight,
		journeys:     journeys,
		differ:       differ,
		errors:       NewErrorHandler(opts.Debug),
		logger:       logger,
		registry:     opts.Registry,
		version:      version,
		topLimit:     topLimit,
		trailingDays: trailingDays,
		sessionGap:   sessionGap,
		checkers:     opts.Checkers,
	}
}

// AuditTrailResponse is the merged timeline for one scenario
type AuditTrailResponse struct {
	ScenarioID string         `json:"scenario_id"`
	Events     []*audit.Event `json:"events"`
	Count      int            `json:"count"`
}

// JourneyResponse bundles one user's sessions and velocity
type JourneyResponse struct {
	UserID     string                   `json:"user_id"`
	WindowDays int                      `json:"window_days"`
	Sessions   []*audit.Session         `json:"sessions"`
	Velocity   *journey.VelocityMetrics `json:"velocity"`
}

// ErrorCategoriesResponse ranks error categories over a trailing window
type ErrorCategoriesResponse struct {
	WindowDays int                      `json:"window_days"`
	Categories []insights.CategoryCount `json:"categories"`
}

// FailingNodesResponse ranks nodes implicated in failed runs
type FailingNodesResponse struct {
	WindowDays int                         `json:"window_days"`
	Nodes      []insights.NodeFailureCount `json:"nodes"`
}

// SuccessRateResponse is the per-day run success series
type SuccessRateResponse struct {
	WindowDays int                 `json:"window_days"`
	Days       []insights.DailyRate `json:"days"`
}

// handleAuditTrail serves GET /api/v1/scenarios/{id}/audit-trail
func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.PathValue("id")
	if scenarioID == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_SCENARIO_ID", "scenario id is required"))
		return
	}

	q, err := parseTimelineQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	variant := cache.Variant(r.URL.Query().Encode())
	if h.cache != nil {
		if events, ok := h.cache.GetTimeline(r.Context(), scenarioID, variant); ok {
			h.writeSuccess(w, r, AuditTrailResponse{ScenarioID: scenarioID, Events: events, Count: len(events)})
			return
		}
	}

	events, err := h.store.ListEvents(r.Context(), database.EventFilter{
		ScenarioID: scenarioID,
		Types:      q.types,
		From:       q.from,
		To:         q.to,
		Limit:      q.limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.cache != nil {
		h.cache.SetTimeline(r.Context(), scenarioID, variant, events)
	}

	h.writeSuccess(w, r, AuditTrailResponse{ScenarioID: scenarioID, Events: events, Count: len(events)})
}

// handleStateChanges serves GET /api/v1/scenarios/{id}/state-changes
func (h *Handler) handleStateChanges(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.PathValue("id")
	if scenarioID == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_SCENARIO_ID", "scenario id is required"))
		return
	}

	q, err := parseTimelineQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.store.ListEvents(r.Context(), database.EventFilter{
		ScenarioID: scenarioID,
		Types:      []audit.EventType{audit.EventStateChange},
		From:       q.from,
		To:         q.to,
		Limit:      q.limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeSuccess(w, r, AuditTrailResponse{ScenarioID: scenarioID, Events: events, Count: len(events)})
}

// handleRunComparison serves GET /api/v1/scenarios/{id}/runs/{runID}/comparison
func (h *Handler) handleRunComparison(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.PathValue("id")
	runID := r.PathValue("runID")
	if scenarioID == "" || runID == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_PARAMETER", "scenario id and run id are required"))
		return
	}

	runs, err := h.store.ListRuns(r.Context(), database.RunFilter{ScenarioID: scenarioID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	changes, err := h.store.ListInputChanges(r.Context(), scenarioID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	comparison, err := h.differ.Compare(scenarioID, runID, runs, changes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeSuccess(w, r, comparison)
}

// handleErrorSummary serves GET /api/v1/scenarios/{id}/error-summary
func (h *Handler) handleErrorSummary(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.PathValue("id")
	if scenarioID == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_SCENARIO_ID", "scenario id is required"))
		return
	}

	runs, err := h.store.ListRuns(r.Context(), database.RunFilter{ScenarioID: scenarioID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events, err := h.store.ListEvents(r.Context(), database.EventFilter{ScenarioID: scenarioID})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.insight.ScenarioReliability(scenarioID, runs, events)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeSuccess(w, r, summary)
}

// handleUserJourney serves GET /api/v1/users/{id}/journey
func (h *Handler) handleUserJourney(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		h.writeError(w, r, errors.NewValidationError("MISSING_USER_ID", "user id is required"))
		return
	}

	days, err := parseDaysParam(r, h.trailingDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	variant := cache.Variant(r.URL.Query().Encode())
	if h.cache != nil {
		var cached JourneyResponse
		if h.cache.GetJourney(r.Context(), userID, variant, &cached) {
			h.writeSuccess(w, r, cached)
			return
		}
	}

	from := time.Now().UTC().AddDate(0, 0, -days)
	events, err := h.store.ListEvents(r.Context(), database.EventFilter{ActorID: userID, From: from})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sessions, err := h.journeys.GroupSessions(userID, events, h.sessionGap)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	velocity, err := h.insight.UserVelocity(userID, events, days, h.sessionGap)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := JourneyResponse{UserID: userID, WindowDays: days, Sessions: sessions, Velocity: velocity}
	if h.cache != nil {
		h.cache.SetJourney(r.Context(), userID, variant, resp)
	}

	h.writeSuccess(w, r, resp)
}

// handleErrorCategories serves GET /api/v1/insights/error-categories
func (h *Handler) handleErrorCategories(w http.ResponseWriter, r *http.Request) {
	days, err := parseDaysParam(r, h.trailingDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := parseLimitParam(r, h.topLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	variant := cache.Variant(r.URL.Query().Encode())
	if h.cache != nil {
		var cached ErrorCategoriesResponse
		if h.cache.GetInsight(r.Context(), "error-categories", variant, &cached) {
			h.writeSuccess(w, r, cached)
			return
		}
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -days)

	events, err := h.store.ListEvents(r.Context(), database.EventFilter{
		Types: []audit.EventType{audit.EventRunFailed, audit.EventLogEntry},
		From:  from,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	categories := h.insight.TopErrorCategories(events, limit, insights.Window{From: from, To: now})

	resp := ErrorCategoriesResponse{WindowDays: days, Categories: categories}
	if h.cache != nil {
		h.cache.SetInsight(r.Context(), "error-categories", variant, resp)
	}

	h.writeSuccess(w, r, resp)
}

// handleFailingNodes serves GET /api/v1/insights/failing-nodes
func (h *Handler) handleFailingNodes(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimitParam(r, h.topLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	variant := cache.Variant(r.URL.Query().Encode())
	if h.cache != nil {
		var cached FailingNodesResponse
		if h.cache.GetInsight(r.Context(), "failing-nodes", variant, &cached) {
			h.writeSuccess(w, r, cached)
			return
		}
	}

	from := time.Now().UTC().AddDate(0, 0, -h.trailingDays)
	comparisons, err := h.buildFailureComparisons(r.Context(), from)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	nodes := h.insight.TopFailingNodes(comparisons, limit)

	resp := FailingNodesResponse{WindowDays: h.trailingDays, Nodes: nodes}
	if h.cache != nil {
		h.cache.SetInsight(r.Context(), "failing-nodes", variant, resp)
	}

	h.writeSuccess(w, r, resp)
}

// buildFailureComparisons reconstructs a comparison for every failed run
// started after from. Runs whose scenario has no usable baseline are
// skipped, not fatal.
func (h *Handler) buildFailureComparisons(ctx context.Context, from time.Time) ([]*audit.RunComparison, error) {
	failed, err := h.store.ListRuns(ctx, database.RunFilter{FailedOnly: true, From: from})
	if err != nil {
		return nil, err
	}

	byScenario := make(map[string][]*audit.Run)
	for _, run := range failed {
		byScenario[run.ScenarioID] = append(byScenario[run.ScenarioID], run)
	}

	var comparisons []*audit.RunComparison
	for scenarioID, failedRuns := range byScenario {
		runs, err := h.store.ListRuns(ctx, database.RunFilter{ScenarioID: scenarioID})
		if err != nil {
			return nil, err
		}
		changes, err := h.store.ListInputChanges(ctx, scenarioID)
		if err != nil {
			return nil, err
		}

		for _, run := range failedRuns {
			comparison, err := h.differ.Compare(scenarioID, run.RunID, runs, changes)
			if err != nil {
				h.logger.Debug("skipping comparison for failed run",
					zap.String("scenario_id", scenarioID),
					zap.String("run_id", run.RunID),
					zap.Error(err))
				continue
			}
			comparisons = append(comparisons, comparison)
		}
	}

	return comparisons, nil
}

// handleSuccessRate serves GET /api/v1/insights/success-rate
func (h *Handler) handleSuccessRate(w http.ResponseWriter, r *http.Request) {
	days, err := parseDaysParam(r, h.trailingDays)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	variant := cache.Variant(r.URL.Query().Encode())
	if h.cache != nil {
		var cached SuccessRateResponse
		if h.cache.GetInsight(r.Context(), "success-rate", variant, &cached) {
			h.writeSuccess(w, r, cached)
			return
		}
	}

	now := time.Now().UTC()
	rates, err := h.store.ListDailyRollups(r.Context(), now.AddDate(0, 0, -days), now)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := SuccessRateResponse{WindowDays: days, Days: rates}
	if h.cache != nil {
		h.cache.SetInsight(r.Context(), "success-rate", variant, resp)
	}

	h.writeSuccess(w, r, resp)
}
