package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUserEvent(t *testing.T, scenarioID string, ts time.Time) *Event {
	t.Helper()
	event, err := NewEventBuilder(scenarioID, EventUserAction, ts).
		WithActor("analyst1").
		Build()
	require.NoError(t, err)
	return event
}

func TestNewSession(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("derives boundaries and rollups", func(t *testing.T) {
		events := []*Event{
			testUserEvent(t, "scn-002", base),
			testUserEvent(t, "scn-001", base.Add(5*time.Minute)),
			testUserEvent(t, "scn-002", base.Add(12*time.Minute)),
		}

		session, err := NewSession("analyst1", events)
		require.NoError(t, err)

		assert.NotEmpty(t, session.SessionID)
		assert.Equal(t, base, session.StartedAt)
		assert.Equal(t, base.Add(12*time.Minute), session.EndedAt)
		assert.Equal(t, 720.0, session.DurationSeconds())
		assert.Equal(t, 3, session.ActionCount)
		assert.Equal(t, []string{"scn-001", "scn-002"}, session.ScenariosTouched)
	})

	t.Run("single event session has zero duration", func(t *testing.T) {
		session, err := NewSession("analyst1", []*Event{testUserEvent(t, "scn-001", base)})
		require.NoError(t, err)
		assert.Equal(t, 0.0, session.DurationSeconds())
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := NewSession("analyst1", nil)
		assert.Error(t, err)

		_, err = NewSession("", []*Event{testUserEvent(t, "scn-001", base)})
		assert.Error(t, err)
	})
}

func TestSession_Contains(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	session, err := NewSession("analyst1", []*Event{
		testUserEvent(t, "scn-001", base),
		testUserEvent(t, "scn-001", base.Add(10*time.Minute)),
	})
	require.NoError(t, err)

	assert.True(t, session.Contains(base))
	assert.True(t, session.Contains(base.Add(10*time.Minute)))
	assert.True(t, session.Contains(base.Add(5*time.Minute)))
	assert.False(t, session.Contains(base.Add(-time.Second)))
	assert.False(t, session.Contains(base.Add(11*time.Minute)))
}
