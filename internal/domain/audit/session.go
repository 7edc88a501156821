package audit

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// DefaultSessionGap is the inactivity threshold that closes a session
// when no explicit threshold is configured.
const DefaultSessionGap = 30 * time.Minute

// Session is a contiguous burst of one user's activity. A gap of at least
// the configured threshold between consecutive events starts a new session.
type Session struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	Events           []*Event  `json:"events"`
	ActionCount      int       `json:"action_count"`
	ScenariosTouched []string  `json:"scenarios_touched"`
}

// NewSession builds a session from one user's time-ordered events.
// The event slice must be non-empty; boundaries and rollup counts are
// derived from it.
func NewSession(userID string, events []*Event) (*Session, error) {
	if userID == "" {
		return nil, errors.NewValidationError("MISSING_USER_ID", "user id is required")
	}

	if len(events) == 0 {
		return nil, errors.NewValidationError("EMPTY_SESSION", "session requires at least one event")
	}

	scenarios := make(map[string]struct{})
	for _, e := range events {
		if e.ScenarioID != "" {
			scenarios[e.ScenarioID] = struct{}{}
		}
	}

	touched := make([]string, 0, len(scenarios))
	for id := range scenarios {
		touched = append(touched, id)
	}
	sort.Strings(touched)

	return &Session{
		SessionID:        uuid.NewString(),
		UserID:           userID,
		StartedAt:        events[0].Timestamp,
		EndedAt:          events[len(events)-1].Timestamp,
		Events:           events,
		ActionCount:      len(events),
		ScenariosTouched: touched,
	}, nil
}

// DurationSeconds returns the session length. Single-event sessions have
// zero duration.
func (s *Session) DurationSeconds() float64 {
	return s.EndedAt.Sub(s.StartedAt).Seconds()
}

// Contains reports whether t falls inside the session boundaries (inclusive)
func (s *Session) Contains(t time.Time) bool {
	return !t.Before(s.StartedAt) && !t.After(s.EndedAt)
}
