package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/service/insights"
	"github.com/clearsight/scenario-audit-backend/internal/service/normalize"
)

var pipelineBase = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

type fakeSource struct {
	mu          sync.Mutex
	scenarios   map[string]normalize.ScenarioRow
	nodes       map[string][]normalize.NodeDataRow
	runs        map[string][]normalize.RunRow
	failNodes   map[string]bool
	listedSince time.Time
}

func (f *fakeSource) ListScenarioIDs(ctx context.Context, updatedSince time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedSince = updatedSince

	ids := make([]string, 0, len(f.scenarios))
	for id := range f.scenarios {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSource) FetchScenario(ctx context.Context, scenarioID string) (*normalize.ScenarioRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.scenarios[scenarioID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeSource) FetchNodeRows(ctx context.Context, scenarioID string) ([]normalize.NodeDataRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNodes[scenarioID] {
		return nil, errors.NewInternalError("source connection lost")
	}
	return f.nodes[scenarioID], nil
}

func (f *fakeSource) FetchRunRows(ctx context.Context, scenarioID string) ([]normalize.RunRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[scenarioID], nil
}

type fakeLogs struct {
	mu      sync.Mutex
	records map[string][]normalize.LogRecord
	since   time.Time
}

func (f *fakeLogs) FetchLogRecords(ctx context.Context, scenarioID string, since time.Time) ([]normalize.LogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	return f.records[scenarioID], nil
}

type fakeStore struct {
	mu         sync.Mutex
	events     map[string]*audit.Event
	runs       []*audit.Run
	changes    []*audit.InputChangeRecord
	sessions   []*audit.Session
	rollups    []insights.DailyRate
	watermarks map[string]*Watermark
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:     make(map[string]*audit.Event),
		watermarks: make(map[string]*Watermark),
	}
}

func (f *fakeStore) SaveEvents(ctx context.Context, events []*audit.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inserted := 0
	for _, e := range events {
		key := e.DedupKey()
		if _, ok := f.events[key]; !ok {
			f.events[key] = e
			inserted++
		}
	}
	return inserted, nil
}

func (f *fakeStore) SaveRuns(ctx context.Context, runs []*audit.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, runs...)
	return nil
}

func (f *fakeStore) SaveInputChanges(ctx context.Context, changes []*audit.InputChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, changes...)
	return nil
}

func (f *fakeStore) SaveSessions(ctx context.Context, sessions []*audit.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessions...)
	return nil
}

func (f *fakeStore) SaveDailyRollups(ctx context.Context, days []insights.DailyRate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollups = append(f.rollups, days...)
	return nil
}

func (f *fakeStore) GetWatermark(ctx context.Context, key string) (*Watermark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wm, ok := f.watermarks[key]
	if !ok {
		return nil, nil
	}
	copied := *wm
	return &copied, nil
}

func (f *fakeStore) UpsertWatermark(ctx context.Context, w *Watermark) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *w
	if existing, ok := f.watermarks[w.Key]; ok {
		copied.RowsLoaded += existing.RowsLoaded
	}
	f.watermarks[w.Key] = &copied
	return nil
}

func seedSource() *fakeSource {
	return &fakeSource{
		scenarios: map[string]normalize.ScenarioRow{
			"scn-001": {
				ScenarioID:  "scn-001",
				Name:        "Q3 revenue forecast",
				CreatedAt:   tp(pipelineBase),
				CreatedBy:   "analyst1",
				SubmittedAt: tp(pipelineBase.Add(10 * time.Minute)),
				SubmittedBy: "analyst1",
			},
			"scn-002": {
				ScenarioID: "scn-002",
				Name:       "cost projection",
				CreatedAt:  tp(pipelineBase.Add(time.Hour)),
				CreatedBy:  "analyst2",
			},
		},
		nodes: map[string][]normalize.NodeDataRow{
			"scn-001": {
				{RowID: 1, ScenarioID: "scn-001", NodeID: "node-rev", InputHash: hashOf("v1"), CreatedAt: tp(pipelineBase.Add(5 * time.Minute)), CreatedBy: "analyst1"},
			},
		},
		runs: map[string][]normalize.RunRow{
			"scn-001": {
				{RunID: "run-1", ScenarioID: "scn-001", Status: "success", RunAt: tp(pipelineBase.Add(20 * time.Minute)), RunBy: "analyst1", CompletedAt: tp(pipelineBase.Add(25 * time.Minute))},
			},
			"scn-002": {
				{RunID: "run-2", ScenarioID: "scn-002", Status: "failed", RunAt: tp(pipelineBase.Add(90 * time.Minute)), CompletedAt: tp(pipelineBase.Add(95 * time.Minute)), FailReason: "calculation overflow in node graph"},
			},
		},
		failNodes: map[string]bool{},
	}
}

func seedLogs() *fakeLogs {
	return &fakeLogs{
		records: map[string][]normalize.LogRecord{
			"scn-002": {
				{Timestamp: pipelineBase.Add(94 * time.Minute), Severity: "ERROR", Message: "calculation overflow in node graph", ScenarioID: "scn-002", RunID: "run-2", StreamOffset: 1},
			},
		},
	}
}

func newTestRunner(t *testing.T, source *fakeSource, store *fakeStore, logs *fakeLogs) *Runner {
	t.Helper()
	return NewRunner(source, store, logs, nil, 2, zaptest.NewLogger(t))
}

func TestRunner_FullBatch(t *testing.T) {
	source := seedSource()
	store := newFakeStore()
	logs := seedLogs()
	runner := newTestRunner(t, source, store, logs)

	report, err := runner.Run(context.Background(), Options{Mode: ModeFull})
	require.NoError(t, err)

	assert.True(t, report.Succeeded())
	assert.Equal(t, 2, report.ScenariosProcessed)
	assert.Equal(t, 0, report.ScenariosFailed)
	assert.NotEmpty(t, report.BatchID)

	// scn-001: 4 lifecycle events + 1 input change + 2 run events.
	// scn-002: 2 lifecycle events + 2 run events + 1 error log.
	assert.Equal(t, 12, report.EventsLoaded)
	assert.Equal(t, 12, report.EventsNew)
	assert.Len(t, store.events, 12)

	assert.Equal(t, 2, report.RunsLoaded)
	assert.Equal(t, 1, report.InputChangesLoaded)
	assert.Equal(t, 0, report.RecordsSkipped)

	// One session per analyst.
	assert.Equal(t, 2, report.SessionsLoaded)
	assert.Len(t, store.sessions, 2)

	// Both runs started the same day: one rollup row, 1 of 2 failed.
	require.Len(t, store.rollups, 1)
	assert.Equal(t, "2025-03-10", store.rollups[0].Day)
	assert.Equal(t, 2, store.rollups[0].Total)
	assert.Equal(t, 1, store.rollups[0].Failed)

	wm := store.watermarks[WatermarkAuditTrail]
	require.NotNil(t, wm)
	assert.Equal(t, StatusSuccess, wm.Status)
	assert.Equal(t, report.StartedAt, wm.LastLoadedAt)
	assert.Equal(t, int64(report.EventsNew), wm.RowsLoaded)
	assert.True(t, report.WatermarkAdvanced)

	assert.WithinDuration(t, report.StartedAt.Add(-DefaultLogWindow), logs.since, time.Minute)
}

func TestRunner_FullBatchIsIdempotent(t *testing.T) {
	source := seedSource()
	store := newFakeStore()
	runner := newTestRunner(t, source, store, seedLogs())

	first, err := runner.Run(context.Background(), Options{Mode: ModeFull})
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), Options{Mode: ModeFull})
	require.NoError(t, err)

	// Same rows, same identity keys: the second pass inserts nothing.
	assert.Equal(t, first.EventsLoaded, second.EventsLoaded)
	assert.Equal(t, 0, second.EventsNew)
	assert.Len(t, store.events, first.EventsNew)
}

func TestRunner_IncrementalUsesWatermark(t *testing.T) {
	source := seedSource()
	store := newFakeStore()
	cutoff := pipelineBase.Add(-24 * time.Hour)
	store.watermarks[WatermarkAuditTrail] = &Watermark{
		Key:          WatermarkAuditTrail,
		LastLoadedAt: cutoff,
		Status:       StatusSuccess,
	}
	runner := newTestRunner(t, source, store, seedLogs())

	report, err := runner.Run(context.Background(), Options{Mode: ModeIncremental})
	require.NoError(t, err)

	assert.True(t, report.Succeeded())
	assert.Equal(t, cutoff, source.listedSince)
	assert.Equal(t, StatusSuccess, store.watermarks[WatermarkAuditTrail].Status)
	assert.True(t, store.watermarks[WatermarkAuditTrail].LastLoadedAt.After(cutoff))
}

func TestRunner_IncrementalWithoutWatermarkLoadsEverything(t *testing.T) {
	source := seedSource()
	store := newFakeStore()
	runner := newTestRunner(t, source, store, seedLogs())

	report, err := runner.Run(context.Background(), Options{Mode: ModeIncremental})
	require.NoError(t, err)

	assert.True(t, report.Succeeded())
	assert.True(t, source.listedSince.IsZero())
	assert.Equal(t, 2, report.ScenariosProcessed)
}

func TestRunner_ScenarioModeLeavesWatermarkAlone(t *testing.T) {
	source := seedSource()
	store := newFakeStore()
	runner := newTestRunner(t, source, store, seedLogs())

	report, err := runner.Run(context.Background(), Options{Mode: ModeScenario, ScenarioID: "scn-001"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.ScenariosProcessed)
	assert.Equal(t, 7, report.EventsLoaded)
	assert.False(t, report.WatermarkAdvanced)
	assert.Empty(t, store.watermarks)
}

func TestRunner_ScenarioFailureDoesNotAdvanceWatermark(t *testing.T) {
	source := seedSource()
	source.failNodes["scn-002"] = true
	store := newFakeStore()
	previous := pipelineBase.Add(-48 * time.Hour)
	store.watermarks[WatermarkAuditTrail] = &Watermark{
		Key:          WatermarkAuditTrail,
		LastLoadedAt: previous,
		Status:       StatusSuccess,
	}
	runner := newTestRunner(t, source, store, seedLogs())

	report, err := runner.Run(context.Background(), Options{Mode: ModeFull})
	require.NoError(t, err)

	assert.False(t, report.Succeeded())
	assert.Equal(t, 1, report.ScenariosProcessed)
	assert.Equal(t, 1, report.ScenariosFailed)
	assert.Equal(t, []string{"scn-002"}, report.Failures)

	// The healthy scenario still loaded.
	assert.Greater(t, report.EventsLoaded, 0)

	wm := store.watermarks[WatermarkAuditTrail]
	require.NotNil(t, wm)
	assert.Equal(t, StatusFailed, wm.Status)
	assert.Equal(t, previous, wm.LastLoadedAt)
	assert.False(t, report.WatermarkAdvanced)
}

func TestRunner_Validation(t *testing.T) {
	runner := newTestRunner(t, seedSource(), newFakeStore(), seedLogs())

	_, err := runner.Run(context.Background(), Options{Mode: "streaming"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "INVALID_MODE"))

	_, err = runner.Run(context.Background(), Options{Mode: ModeScenario})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, "MISSING_SCENARIO_ID"))
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"full", "incremental", "scenario"} {
		mode, err := ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, Mode(valid), mode)
	}

	_, err := ParseMode("hourly")
	require.Error(t, err)
}
