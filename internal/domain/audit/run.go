package audit

import (
	"sort"
	"time"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// Run represents one execution of a forecast scenario
type Run struct {
	RunID           string        `json:"run_id"`
	ScenarioID      string        `json:"scenario_id"`
	Status          RunStatus     `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	TriggeredBy     string        `json:"triggered_by,omitempty"`
	CorrelationID   string        `json:"correlation_id,omitempty"`
	FailReason      string        `json:"fail_reason,omitempty"`
	FailureCategory ErrorCategory `json:"failure_category,omitempty"`
}

// NewRun creates a run with validation
func NewRun(runID, scenarioID string, status RunStatus, startedAt time.Time) (*Run, error) {
	if runID == "" {
		return nil, errors.NewMalformedRecordError("run", "run id is required")
	}

	if scenarioID == "" {
		return nil, errors.NewMalformedRecordError("run", "scenario id is required")
	}

	if startedAt.IsZero() {
		return nil, errors.NewMalformedRecordError("run", "started_at is required")
	}

	if !status.IsValid() {
		return nil, errors.NewValidationError("INVALID_RUN_STATUS",
			"run status must be running, success, failed, or timeout")
	}

	return &Run{
		RunID:      runID,
		ScenarioID: scenarioID,
		Status:     status,
		StartedAt:  startedAt.UTC(),
	}, nil
}

// IsTerminal returns true if the run has ended
func (r *Run) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// CanBaseline returns true if the run may serve as a comparison baseline.
// Only successful runs qualify.
func (r *Run) CanBaseline() bool {
	return r.Status.IsSuccess()
}

// DurationSeconds returns the run duration, or 0 when the run has not
// completed or its timestamps are out of order. Never negative.
func (r *Run) DurationSeconds() float64 {
	if r.CompletedAt == nil {
		return 0
	}
	d := r.CompletedAt.Sub(r.StartedAt).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// HasOrderedTimestamps reports whether completion follows the start.
// Out-of-order rows are still processed, flagged as anomalies.
func (r *Run) HasOrderedTimestamps() bool {
	return r.CompletedAt == nil || !r.CompletedAt.Before(r.StartedAt)
}

// RunHistory is a scenario's runs ordered by StartedAt ascending.
// Lookups binary-search the ordered slice.
type RunHistory struct {
	scenarioID string
	runs       []*Run
	byID       map[string]*Run
}

// NewRunHistory builds an ordered history from a scenario's runs.
// Input order does not matter; ties on StartedAt keep input order.
func NewRunHistory(scenarioID string, runs []*Run) *RunHistory {
	ordered := make([]*Run, len(runs))
	copy(ordered, runs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.Before(ordered[j].StartedAt)
	})

	byID := make(map[string]*Run, len(ordered))
	for _, r := range ordered {
		byID[r.RunID] = r
	}

	return &RunHistory{
		scenarioID: scenarioID,
		runs:       ordered,
		byID:       byID,
	}
}

// ScenarioID returns the scenario these runs belong to
func (h *RunHistory) ScenarioID() string {
	return h.scenarioID
}

// Len returns the number of runs
func (h *RunHistory) Len() int {
	return len(h.runs)
}

// Runs returns the runs ordered by StartedAt ascending
func (h *RunHistory) Runs() []*Run {
	return h.runs
}

// Get looks a run up by id
func (h *RunHistory) Get(runID string) (*Run, error) {
	if len(h.runs) == 0 {
		return nil, errors.NewNoRunsError(h.scenarioID)
	}

	run, ok := h.byID[runID]
	if !ok {
		return nil, errors.NewRunNotFoundError(runID)
	}
	return run, nil
}

// LatestSuccessBefore returns the most recent successful run that started
// strictly before t, or nil when no such run exists.
func (h *RunHistory) LatestSuccessBefore(t time.Time) *Run {
	// First run with StartedAt >= t; everything before it started earlier.
	idx := sort.Search(len(h.runs), func(i int) bool {
		return !h.runs[i].StartedAt.Before(t)
	})

	for i := idx - 1; i >= 0; i-- {
		if h.runs[i].CanBaseline() {
			return h.runs[i]
		}
	}
	return nil
}
