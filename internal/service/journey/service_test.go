package journey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

var sessionBase = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func actionEvent(t *testing.T, scenarioID, action string, at time.Time) *audit.Event {
	t.Helper()
	event, err := audit.NewEventBuilder(scenarioID, audit.EventUserAction, at).
		WithActor("analyst1").
		WithPayloadField("action", action).
		Build()
	require.NoError(t, err)
	return event
}

func eventsAtOffsets(t *testing.T, offsets ...time.Duration) []*audit.Event {
	t.Helper()
	events := make([]*audit.Event, 0, len(offsets))
	for _, off := range offsets {
		events = append(events, actionEvent(t, "scn-001", "update_scenario", sessionBase.Add(off)))
	}
	return events
}

func newTestService(t *testing.T) Service {
	t.Helper()
	return NewService(zaptest.NewLogger(t))
}

func TestGroupSessions_SplitsOnGaps(t *testing.T) {
	svc := newTestService(t)

	// Gaps: 5m, 45m, 10m with a 30m threshold: one split.
	events := eventsAtOffsets(t, 0, 5*time.Minute, 50*time.Minute, 60*time.Minute)

	sessions, err := svc.GroupSessions("analyst1", events, 30*time.Minute)
	require.NoError(t, err)

	require.Len(t, sessions, 2)
	assert.Equal(t, 2, sessions[0].ActionCount)
	assert.Equal(t, 2, sessions[1].ActionCount)
	assert.Equal(t, sessionBase, sessions[0].StartedAt)
	assert.Equal(t, sessionBase.Add(5*time.Minute), sessions[0].EndedAt)
	assert.Equal(t, sessionBase.Add(50*time.Minute), sessions[1].StartedAt)
}

func TestGroupSessions_GapEqualToThresholdSplits(t *testing.T) {
	svc := newTestService(t)

	// The boundary is inclusive: a gap of exactly the threshold starts a
	// new session.
	events := eventsAtOffsets(t, 0, 30*time.Minute)

	sessions, err := svc.GroupSessions("analyst1", events, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	// One nanosecond under the threshold stays in the same session.
	events = eventsAtOffsets(t, 0, 30*time.Minute-time.Nanosecond)
	sessions, err = svc.GroupSessions("analyst1", events, 30*time.Minute)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestGroupSessions_PartitionLaws(t *testing.T) {
	svc := newTestService(t)
	gap := 30 * time.Minute

	offsets := []time.Duration{
		0, 3 * time.Minute, 10 * time.Minute, // session 1
		70 * time.Minute,                       // gap 60m
		80 * time.Minute, 100 * time.Minute,    // gap 10m, 20m
		200 * time.Minute,                      // gap 100m
	}
	events := eventsAtOffsets(t, offsets...)

	sessions, err := svc.GroupSessions("analyst1", events, gap)
	require.NoError(t, err)

	// Count law: 1 + number of gaps >= threshold.
	gapsAtLeast := 0
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Sub(events[i-1].Timestamp) >= gap {
			gapsAtLeast++
		}
	}
	assert.Equal(t, 1+gapsAtLeast, len(sessions))

	// Concatenation law: sessions reproduce the ordered input exactly.
	var concatenated []*audit.Event
	for _, session := range sessions {
		concatenated = append(concatenated, session.Events...)
	}
	require.Len(t, concatenated, len(events))
	for i := range events {
		assert.Same(t, events[i], concatenated[i])
	}
}

func TestGroupSessions_SingleEvent(t *testing.T) {
	svc := newTestService(t)

	sessions, err := svc.GroupSessions("analyst1", eventsAtOffsets(t, 0), 30*time.Minute)
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	assert.Equal(t, 0.0, sessions[0].DurationSeconds())
	assert.Equal(t, 1, sessions[0].ActionCount)
}

func TestGroupSessions_EmptyInput(t *testing.T) {
	svc := newTestService(t)

	sessions, err := svc.GroupSessions("analyst1", nil, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestGroupSessions_DefaultGap(t *testing.T) {
	svc := newTestService(t)

	// 29m stays together, 31m splits, under the 30m default.
	events := eventsAtOffsets(t, 0, 29*time.Minute, 60*time.Minute)

	sessions, err := svc.GroupSessions("analyst1", events, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 2, sessions[0].ActionCount)
}

func TestGroupSessions_SortsInput(t *testing.T) {
	svc := newTestService(t)

	events := []*audit.Event{
		actionEvent(t, "scn-001", "submit_scenario", sessionBase.Add(10*time.Minute)),
		actionEvent(t, "scn-001", "create_scenario", sessionBase),
	}

	sessions, err := svc.GroupSessions("analyst1", events, 30*time.Minute)
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	assert.Equal(t, "create_scenario", sessions[0].Events[0].PayloadString("action"))
	assert.Equal(t, sessionBase, sessions[0].StartedAt)
}

func TestGroupSessions_Validation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GroupSessions("", eventsAtOffsets(t, 0), time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "MISSING_USER_ID"))

	_, err = svc.GroupSessions("analyst1", eventsAtOffsets(t, 0), -time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_SESSION_GAP"))
}

func TestVelocity(t *testing.T) {
	svc := newTestService(t)

	events := []*audit.Event{
		actionEvent(t, "scn-001", "update_scenario", sessionBase),
		actionEvent(t, "scn-001", "update_scenario", sessionBase.Add(10*time.Minute)),
		actionEvent(t, "scn-002", "submit_scenario", sessionBase.Add(20*time.Minute)),
		actionEvent(t, "scn-002", "update_scenario", sessionBase.Add(2*time.Hour)),
	}

	metrics, err := svc.Velocity("analyst1", events, 7, 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "analyst1", metrics.UserID)
	assert.Equal(t, 7, metrics.WindowDays)
	assert.Equal(t, 4, metrics.TotalActions)
	assert.InDelta(t, 4.0/7.0, metrics.ActionsPerDay, 1e-9)
	assert.Equal(t, 2, metrics.ScenariosTouched)
	assert.Equal(t, "update_scenario", metrics.MostCommonAction)
	assert.Equal(t, 2, metrics.SessionCount)
	// Sessions: 20 minutes and 0 seconds; average is 600s.
	assert.InDelta(t, 600.0, metrics.AvgSessionDurationSeconds, 1e-9)
}

func TestVelocity_TieBreaksDeterministically(t *testing.T) {
	svc := newTestService(t)

	events := []*audit.Event{
		actionEvent(t, "scn-001", "submit_scenario", sessionBase),
		actionEvent(t, "scn-001", "create_scenario", sessionBase.Add(time.Minute)),
	}

	metrics, err := svc.Velocity("analyst1", events, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "create_scenario", metrics.MostCommonAction)
}

func TestVelocity_EmptyInput(t *testing.T) {
	svc := newTestService(t)

	metrics, err := svc.Velocity("analyst1", nil, 7, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, metrics.TotalActions)
	assert.Equal(t, 0.0, metrics.ActionsPerDay)
	assert.Equal(t, 0, metrics.SessionCount)
	assert.Equal(t, "", metrics.MostCommonAction)
	assert.Equal(t, 0.0, metrics.AvgSessionDurationSeconds)
}

func TestVelocity_Validation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Velocity("analyst1", nil, 0, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_WINDOW"))
}
