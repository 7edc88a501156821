package insights

import (
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/service/journey"
)

// Service computes stateless reliability rollups over normalized events,
// runs, and run comparisons. Every view is a pure function of its inputs;
// nothing here mutates the canonical event set.
type Service interface {
	// BuildRollup folds the inputs that fall inside the window into a
	// mergeable rollup. Events filter on Timestamp, runs on StartedAt,
	// comparisons on the target run's StartedAt.
	BuildRollup(events []*audit.Event, runs []*audit.Run, comparisons []*audit.RunComparison, window Window) *Rollup

	// TopErrorCategories ranks categorized run failures and ERROR logs
	TopErrorCategories(events []*audit.Event, n int, window Window) []CategoryCount

	// TopFailingNodes ranks nodes implicated in failed-run change windows
	TopFailingNodes(comparisons []*audit.RunComparison, n int) []NodeFailureCount

	// DailySuccessRate returns the per-day run success series
	DailySuccessRate(runs []*audit.Run, window Window) []DailyRate

	// UserVelocity reports one user's activity over a trailing window
	UserVelocity(userID string, events []*audit.Event, windowDays int, sessionGap time.Duration) (*journey.VelocityMetrics, error)

	// ScenarioReliability summarizes one scenario's run outcomes and
	// error categories.
	ScenarioReliability(scenarioID string, runs []*audit.Run, events []*audit.Event) (*ReliabilitySummary, error)
}

// ReliabilitySummary is the per-scenario reliability overview
type ReliabilitySummary struct {
	ScenarioID      string          `json:"scenario_id"`
	TotalRuns       int             `json:"total_runs"`
	FailedRuns      int             `json:"failed_runs"`
	SuccessRate     float64         `json:"success_rate"`
	ErrorCategories []CategoryCount `json:"error_categories"`
}

type service struct {
	journeys journey.Service
	logger   *zap.Logger
}

// NewService creates an insights service
func NewService(journeys journey.Service, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journeys == nil {
		journeys = journey.NewService(logger)
	}
	return &service{
		journeys: journeys,
		logger:   logger,
	}
}

func (s *service) BuildRollup(events []*audit.Event, runs []*audit.Run, comparisons []*audit.RunComparison, window Window) *Rollup {
	rollup := NewRollup()
	for _, e := range events {
		if window.Contains(e.Timestamp) {
			rollup.ObserveEvent(e)
		}
	}
	for _, run := range runs {
		if window.Contains(run.StartedAt) {
			rollup.ObserveRun(run)
		}
	}
	for _, c := range comparisons {
		if c.RunB != nil && window.Contains(c.RunB.StartedAt) {
			rollup.ObserveComparison(c)
		}
	}
	return rollup
}

func (s *service) TopErrorCategories(events []*audit.Event, n int, window Window) []CategoryCount {
	return s.BuildRollup(events, nil, nil, window).TopCategories(n)
}

func (s *service) TopFailingNodes(comparisons []*audit.RunComparison, n int) []NodeFailureCount {
	return s.BuildRollup(nil, nil, comparisons, Window{}).TopNodes(n)
}

func (s *service) DailySuccessRate(runs []*audit.Run, window Window) []DailyRate {
	return s.BuildRollup(nil, runs, nil, window).DailyRates()
}

func (s *service) UserVelocity(userID string, events []*audit.Event, windowDays int, sessionGap time.Duration) (*journey.VelocityMetrics, error) {
	return s.journeys.Velocity(userID, events, windowDays, sessionGap)
}

func (s *service) ScenarioReliability(scenarioID string, runs []*audit.Run, events []*audit.Event) (*ReliabilitySummary, error) {
	if scenarioID == "" {
		return nil, errors.NewValidationError("MISSING_SCENARIO_ID", "scenario id is required")
	}

	rollup := NewRollup()
	total := 0
	failed := 0
	for _, run := range runs {
		if run.ScenarioID != scenarioID {
			continue
		}
		total++
		if run.Status == audit.RunStatusFailed || run.Status == audit.RunStatusTimeout {
			failed++
		}
	}
	for _, e := range events {
		if e.ScenarioID == scenarioID {
			rollup.ObserveEvent(e)
		}
	}

	summary := &ReliabilitySummary{
		ScenarioID:      scenarioID,
		TotalRuns:       total,
		FailedRuns:      failed,
		ErrorCategories: rollup.TopCategories(-1),
	}
	if total > 0 {
		summary.SuccessRate = round2(float64(total-failed) / float64(total))
	}

	s.logger.Debug("built scenario reliability summary",
		zap.String("scenario_id", scenarioID),
		zap.Int("total_runs", total),
		zap.Int("failed_runs", failed),
	)

	return summary, nil
}
