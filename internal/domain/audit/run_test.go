package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

func testRun(t *testing.T, runID string, status RunStatus, startedAt time.Time) *Run {
	t.Helper()
	run, err := NewRun(runID, "scn-001", status, startedAt)
	require.NoError(t, err)
	return run
}

func TestNewRun(t *testing.T) {
	started := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		runID      string
		scenarioID string
		status     RunStatus
		startedAt  time.Time
		wantErr    bool
		errCode    string
	}{
		{
			name:       "valid running run",
			runID:      "run-1",
			scenarioID: "scn-001",
			status:     RunStatusRunning,
			startedAt:  started,
		},
		{
			name:       "missing run id",
			runID:      "",
			scenarioID: "scn-001",
			status:     RunStatusSuccess,
			startedAt:  started,
			wantErr:    true,
			errCode:    "MALFORMED_RECORD",
		},
		{
			name:       "missing started_at",
			runID:      "run-1",
			scenarioID: "scn-001",
			status:     RunStatusSuccess,
			startedAt:  time.Time{},
			wantErr:    true,
			errCode:    "MALFORMED_RECORD",
		},
		{
			name:       "unknown status",
			runID:      "run-1",
			scenarioID: "scn-001",
			status:     "aborted",
			startedAt:  started,
			wantErr:    true,
			errCode:    "INVALID_RUN_STATUS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := NewRun(tt.runID, tt.scenarioID, tt.status, tt.startedAt)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.errCode))
				assert.Nil(t, run)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.runID, run.RunID)
				assert.Equal(t, time.UTC, run.StartedAt.Location())
			}
		})
	}
}

func TestRun_DurationSeconds(t *testing.T) {
	started := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)

	t.Run("completed run has positive duration", func(t *testing.T) {
		run := testRun(t, "run-1", RunStatusSuccess, started)
		done := started.Add(95 * time.Second)
		run.CompletedAt = &done

		assert.Equal(t, 95.0, run.DurationSeconds())
		assert.True(t, run.HasOrderedTimestamps())
	})

	t.Run("open run has zero duration", func(t *testing.T) {
		run := testRun(t, "run-1", RunStatusRunning, started)
		assert.Equal(t, 0.0, run.DurationSeconds())
	})

	t.Run("completion before start is clamped to zero", func(t *testing.T) {
		run := testRun(t, "run-1", RunStatusFailed, started)
		before := started.Add(-time.Minute)
		run.CompletedAt = &before

		assert.Equal(t, 0.0, run.DurationSeconds())
		assert.False(t, run.HasOrderedTimestamps())
	})
}

func TestRun_CanBaseline(t *testing.T) {
	started := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)

	assert.True(t, testRun(t, "r", RunStatusSuccess, started).CanBaseline())
	assert.False(t, testRun(t, "r", RunStatusFailed, started).CanBaseline())
	assert.False(t, testRun(t, "r", RunStatusTimeout, started).CanBaseline())
	assert.False(t, testRun(t, "r", RunStatusRunning, started).CanBaseline())
}

func TestRunHistory_Get(t *testing.T) {
	started := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)

	t.Run("empty history reports no runs", func(t *testing.T) {
		history := NewRunHistory("scn-001", nil)

		_, err := history.Get("run-1")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "NO_RUNS_FOR_SCENARIO"))
	})

	t.Run("unknown run id reports run not found", func(t *testing.T) {
		history := NewRunHistory("scn-001", []*Run{
			testRun(t, "run-1", RunStatusSuccess, started),
		})

		_, err := history.Get("run-missing")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "RUN_NOT_FOUND"))
	})

	t.Run("known run id resolves", func(t *testing.T) {
		history := NewRunHistory("scn-001", []*Run{
			testRun(t, "run-1", RunStatusSuccess, started),
		})

		run, err := history.Get("run-1")
		require.NoError(t, err)
		assert.Equal(t, "run-1", run.RunID)
	})
}

func TestRunHistory_Ordering(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	// Deliberately shuffled input.
	history := NewRunHistory("scn-001", []*Run{
		testRun(t, "run-3", RunStatusSuccess, base.Add(3*time.Hour)),
		testRun(t, "run-1", RunStatusSuccess, base.Add(1*time.Hour)),
		testRun(t, "run-2", RunStatusFailed, base.Add(2*time.Hour)),
	})

	runs := history.Runs()
	require.Len(t, runs, 3)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)
	assert.Equal(t, "run-3", runs[2].RunID)
}

func TestRunHistory_LatestSuccessBefore(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	history := NewRunHistory("scn-001", []*Run{
		testRun(t, "run-1", RunStatusSuccess, base.Add(1*time.Hour)),
		testRun(t, "run-2", RunStatusFailed, base.Add(2*time.Hour)),
		testRun(t, "run-3", RunStatusSuccess, base.Add(3*time.Hour)),
		testRun(t, "run-4", RunStatusTimeout, base.Add(4*time.Hour)),
	})

	tests := []struct {
		name     string
		at       time.Time
		wantRun  string
		wantNone bool
	}{
		{
			name:    "skips failed run to reach earlier success",
			at:      base.Add(150 * time.Minute),
			wantRun: "run-1",
		},
		{
			name:    "takes most recent success",
			at:      base.Add(5 * time.Hour),
			wantRun: "run-3",
		},
		{
			name:     "strictly before excludes run starting at t",
			at:       base.Add(1 * time.Hour),
			wantNone: true,
		},
		{
			name:     "nothing before first run",
			at:       base,
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := history.LatestSuccessBefore(tt.at)
			if tt.wantNone {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, tt.wantRun, got.RunID)
			}
		})
	}
}
