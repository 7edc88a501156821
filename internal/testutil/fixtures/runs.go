package fixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
)

// RunBuilder builds scenario runs for tests
type RunBuilder struct {
	t               *testing.T
	runID           string
	scenarioID      string
	status          audit.RunStatus
	startedAt       time.Time
	completedAt     *time.Time
	triggeredBy     string
	failReason      string
	failureCategory audit.ErrorCategory
}

// NewRunBuilder creates a RunBuilder defaulting to a successful run
func NewRunBuilder(t *testing.T, runID, scenarioID string) *RunBuilder {
	t.Helper()
	return &RunBuilder{
		t:          t,
		runID:      runID,
		scenarioID: scenarioID,
		status:     audit.RunStatusSuccess,
		startedAt:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

// WithStatus sets the run status
func (b *RunBuilder) WithStatus(status audit.RunStatus) *RunBuilder {
	b.status = status
	return b
}

// StartedAt sets when the run started
func (b *RunBuilder) StartedAt(ts time.Time) *RunBuilder {
	b.startedAt = ts
	return b
}

// CompletedAt sets when the run finished
func (b *RunBuilder) CompletedAt(ts time.Time) *RunBuilder {
	b.completedAt = &ts
	return b
}

// TriggeredBy sets the user who started the run
func (b *RunBuilder) TriggeredBy(user string) *RunBuilder {
	b.triggeredBy = user
	return b
}

// WithFailure marks the run failed with a reason and category
func (b *RunBuilder) WithFailure(reason string, category audit.ErrorCategory) *RunBuilder {
	b.status = audit.RunStatusFailed
	b.failReason = reason
	b.failureCategory = category
	return b
}

// Build validates and returns the run
func (b *RunBuilder) Build() *audit.Run {
	b.t.Helper()
	run, err := audit.NewRun(b.runID, b.scenarioID, b.status, b.startedAt)
	require.NoError(b.t, err)

	run.CompletedAt = b.completedAt
	run.TriggeredBy = b.triggeredBy
	run.FailReason = b.failReason
	run.FailureCategory = b.failureCategory
	return run
}
