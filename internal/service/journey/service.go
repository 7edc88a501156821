package journey

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// VelocityMetrics summarizes one user's working rhythm over a window
type VelocityMetrics struct {
	UserID                    string  `json:"user_id"`
	WindowDays                int     `json:"window_days"`
	TotalActions              int     `json:"total_actions"`
	ActionsPerDay             float64 `json:"actions_per_day"`
	ScenariosTouched          int     `json:"scenarios_touched"`
	MostCommonAction          string  `json:"most_common_action,omitempty"`
	SessionCount              int     `json:"session_count"`
	AvgSessionDurationSeconds float64 `json:"avg_session_duration_seconds"`
}

// Service reconstructs user sessions and velocity metrics from one user's
// event stream. Pure computation: callers own fetching and filtering.
type Service interface {
	GroupSessions(userID string, events []*audit.Event, gap time.Duration) ([]*audit.Session, error)
	Velocity(userID string, events []*audit.Event, windowDays int, gap time.Duration) (*VelocityMetrics, error)
}

type service struct {
	logger *zap.Logger
}

// NewService creates a journey service
func NewService(logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{logger: logger}
}

// GroupSessions partitions one user's events into sessions. A gap of at
// least the threshold between consecutive events closes the session; a
// zero gap selects the default threshold. Events are ordered by timestamp
// first (stable), so concatenating the returned sessions reproduces the
// ordered input exactly.
func (s *service) GroupSessions(userID string, events []*audit.Event, gap time.Duration) ([]*audit.Session, error) {
	if userID == "" {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user id is required")
	}
	if gap < 0 {
		return nil, errors.NewValidationError("INVALID_SESSION_GAP", "session gap cannot be negative")
	}
	if gap == 0 {
		gap = audit.DefaultSessionGap
	}

	if len(events) == 0 {
		return []*audit.Session{}, nil
	}

	ordered := make([]*audit.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var sessions []*audit.Session
	start := 0
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Timestamp.Sub(ordered[i-1].Timestamp) >= gap {
			session, err := audit.NewSession(userID, ordered[start:i])
			if err != nil {
				return nil, err
			}
			sessions = append(sessions, session)
			start = i
		}
	}

	session, err := audit.NewSession(userID, ordered[start:])
	if err != nil {
		return nil, err
	}
	sessions = append(sessions, session)

	s.logger.Debug("sessions grouped",
		zap.String("user_id", userID),
		zap.Int("events", len(ordered)),
		zap.Int("sessions", len(sessions)),
		zap.Duration("gap", gap))

	return sessions, nil
}

// Velocity computes one user's velocity metrics over a window. The caller
// passes events already restricted to the window; windowDays scales the
// per-day rate. Empty input yields zero-valued metrics, not an error.
func (s *service) Velocity(userID string, events []*audit.Event, windowDays int, gap time.Duration) (*VelocityMetrics, error) {
	if userID == "" {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user id is required")
	}
	if windowDays <= 0 {
		return nil, errors.NewValidationError("INVALID_WINDOW", "window must cover at least one day")
	}

	metrics := &VelocityMetrics{
		UserID:     userID,
		WindowDays: windowDays,
	}

	if len(events) == 0 {
		return metrics, nil
	}

	sessions, err := s.GroupSessions(userID, events, gap)
	if err != nil {
		return nil, err
	}

	scenarios := make(map[string]struct{})
	actionCounts := make(map[string]int)
	for _, e := range events {
		if e.ScenarioID != "" {
			scenarios[e.ScenarioID] = struct{}{}
		}
		if e.Type == audit.EventUserAction {
			if action := e.PayloadString("action"); action != "" {
				actionCounts[action]++
			}
		}
	}

	var totalDuration float64
	for _, session := range sessions {
		totalDuration += session.DurationSeconds()
	}

	metrics.TotalActions = len(events)
	metrics.ActionsPerDay = float64(len(events)) / float64(windowDays)
	metrics.ScenariosTouched = len(scenarios)
	metrics.MostCommonAction = mostCommonAction(actionCounts)
	metrics.SessionCount = len(sessions)
	metrics.AvgSessionDurationSeconds = totalDuration / float64(len(sessions))

	return metrics, nil
}

// mostCommonAction returns the modal action; count ties resolve to the
// lexicographically smallest name so results stay deterministic.
func mostCommonAction(counts map[string]int) string {
	best := ""
	bestCount := 0
	for action, count := range counts {
		if count > bestCount || (count == bestCount && count > 0 && action < best) {
			best = action
			bestCount = count
		}
	}
	return best
}
