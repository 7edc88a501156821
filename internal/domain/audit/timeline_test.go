package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timelineFixture(t *testing.T) *Timeline {
	t.Helper()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	mk := func(et EventType, offset time.Duration) *Event {
		builder := NewEventBuilder("scn-001", et, base.Add(offset))
		if et.IsRunEvent() {
			builder = builder.WithRun("run-1")
		}
		event, err := builder.Build()
		require.NoError(t, err)
		return event
	}

	return &Timeline{
		ScenarioID: "scn-001",
		Events: []*Event{
			mk(EventStateChange, 0),
			mk(EventInputChange, 10*time.Minute),
			mk(EventRunStarted, 20*time.Minute),
			mk(EventLogEntry, 25*time.Minute),
			mk(EventRunCompleted, 30*time.Minute),
		},
		SourceCount: 3,
	}
}

func TestTimeline_Span(t *testing.T) {
	tl := timelineFixture(t)
	first, last := tl.Span()
	assert.Equal(t, tl.Events[0].Timestamp, first)
	assert.Equal(t, tl.Events[4].Timestamp, last)

	empty := &Timeline{}
	first, last = empty.Span()
	assert.True(t, first.IsZero())
	assert.True(t, last.IsZero())
}

func TestTimeline_FilterByType(t *testing.T) {
	tl := timelineFixture(t)

	t.Run("no filter returns everything", func(t *testing.T) {
		assert.Len(t, tl.FilterByType(), 5)
	})

	t.Run("single type", func(t *testing.T) {
		got := tl.FilterByType(EventLogEntry)
		require.Len(t, got, 1)
		assert.Equal(t, EventLogEntry, got[0].Type)
	})

	t.Run("multiple types preserve order", func(t *testing.T) {
		got := tl.FilterByType(EventRunCompleted, EventRunStarted)
		require.Len(t, got, 2)
		assert.Equal(t, EventRunStarted, got[0].Type)
		assert.Equal(t, EventRunCompleted, got[1].Type)
	})
}

func TestTimeline_FilterByWindow(t *testing.T) {
	tl := timelineFixture(t)
	base := tl.Events[0].Timestamp

	t.Run("both boundaries inclusive", func(t *testing.T) {
		got := tl.FilterByWindow(base.Add(10*time.Minute), base.Add(20*time.Minute))
		require.Len(t, got, 2)
		assert.Equal(t, EventInputChange, got[0].Type)
		assert.Equal(t, EventRunStarted, got[1].Type)
	})

	t.Run("zero boundaries are open", func(t *testing.T) {
		assert.Len(t, tl.FilterByWindow(time.Time{}, time.Time{}), 5)
		assert.Len(t, tl.FilterByWindow(base.Add(25*time.Minute), time.Time{}), 2)
		assert.Len(t, tl.FilterByWindow(time.Time{}, base), 1)
	})
}

func TestTimeline_SerializeDeterministic(t *testing.T) {
	tl := timelineFixture(t)

	first, err := tl.Serialize()
	require.NoError(t, err)
	second, err := tl.Serialize()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}
