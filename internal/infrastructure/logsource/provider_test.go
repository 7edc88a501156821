package logsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearsight/scenario-audit-backend/internal/service/normalize"
)

func writeLogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app_logs.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewFileProvider(t *testing.T) {
	t.Run("loads records", func(t *testing.T) {
		path := writeLogFile(t, `{"timestamp":"2025-03-10T09:05:00Z","severity":"ERROR","message":"node eval failed","scenario_id":"scn-001","run_id":"run-1","stream_offset":42}

{"timestamp":"2025-03-10T09:06:00Z","severity":"INFO","message":"run retried","scenario_id":"scn-001"}
`)

		p, err := NewFileProvider(path, zaptest.NewLogger(t))
		require.NoError(t, err)

		got, err := p.FetchLogRecords(context.Background(), "scn-001", time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, "ERROR", got[0].Severity)
		assert.Equal(t, "run-1", got[0].RunID)
		assert.Equal(t, int64(42), got[0].StreamOffset)

		// Absent stream_offset means the source gave no position.
		assert.Equal(t, int64(-1), got[1].StreamOffset)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFileProvider(filepath.Join(t.TempDir(), "nope.ndjson"), zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("malformed line reports its number", func(t *testing.T) {
		path := writeLogFile(t, `{"timestamp":"2025-03-10T09:05:00Z","scenario_id":"scn-001"}
{broken
`)
		_, err := NewFileProvider(path, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})
}

func TestStaticProvider_FetchLogRecords(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	records := []normalize.LogRecord{
		{Timestamp: base.Add(3 * time.Minute), Severity: "INFO", ScenarioID: "scn-001", StreamOffset: 7},
		{Timestamp: base, Severity: "ERROR", ScenarioID: "scn-001", StreamOffset: 3},
		{Timestamp: base, Severity: "WARN", ScenarioID: "scn-001", StreamOffset: 1},
		{Timestamp: base.Add(time.Minute), Severity: "INFO", ScenarioID: "scn-002", StreamOffset: 2},
	}

	p := NewStaticProvider(records, zaptest.NewLogger(t))
	ctx := context.Background()

	t.Run("filters by scenario and sorts", func(t *testing.T) {
		got, err := p.FetchLogRecords(ctx, "scn-001", time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 3)

		// Same timestamp orders by stream offset.
		assert.Equal(t, "WARN", got[0].Severity)
		assert.Equal(t, "ERROR", got[1].Severity)
		assert.Equal(t, "INFO", got[2].Severity)
	})

	t.Run("since bound is inclusive", func(t *testing.T) {
		got, err := p.FetchLogRecords(ctx, "scn-001", base.Add(3*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(7), got[0].StreamOffset)
	})

	t.Run("unknown scenario is empty", func(t *testing.T) {
		got, err := p.FetchLogRecords(ctx, "scn-999", time.Time{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := p.FetchLogRecords(cancelled, "scn-001", time.Time{})
		assert.Error(t, err)
	})
}
