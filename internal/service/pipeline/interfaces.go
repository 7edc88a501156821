package pipeline

import (
	"context"
	"time"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/service/insights"
	"github.com/clearsight/scenario-audit-backend/internal/service/normalize"
)

// Watermark keys, one per load stream.
const (
	WatermarkAuditTrail = "audit_trail"
	WatermarkAppLogs    = "app_logs"
)

// Watermark statuses.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// Watermark records the high-water mark of one load stream. RowsLoaded is
// the count for this batch; the store accumulates it across batches.
type Watermark struct {
	Key              string
	LastLoadedAt     time.Time
	LastRunStarted   time.Time
	LastRunCompleted time.Time
	RowsLoaded       int64
	Status           string
}

// SourceReader reads operational rows for normalization
type SourceReader interface {
	// ListScenarioIDs returns the scenarios touched since the given time.
	// A zero time means all scenarios.
	ListScenarioIDs(ctx context.Context, updatedSince time.Time) ([]string, error)
	FetchScenario(ctx context.Context, scenarioID string) (*normalize.ScenarioRow, error)
	FetchNodeRows(ctx context.Context, scenarioID string) ([]normalize.NodeDataRow, error)
	FetchRunRows(ctx context.Context, scenarioID string) ([]normalize.RunRow, error)
}

// ReportingStore persists normalized output and batch state
type ReportingStore interface {
	// SaveEvents upserts events on the dedup identity key and reports how
	// many were actually new.
	SaveEvents(ctx context.Context, events []*audit.Event) (int, error)
	SaveRuns(ctx context.Context, runs []*audit.Run) error
	SaveInputChanges(ctx context.Context, changes []*audit.InputChangeRecord) error
	SaveSessions(ctx context.Context, sessions []*audit.Session) error
	SaveDailyRollups(ctx context.Context, day []insights.DailyRate) error
	// GetWatermark returns nil without error when no watermark exists yet.
	GetWatermark(ctx context.Context, key string) (*Watermark, error)
	UpsertWatermark(ctx context.Context, w *Watermark) error
}

// LogProvider fetches application log records for one scenario
type LogProvider interface {
	FetchLogRecords(ctx context.Context, scenarioID string, since time.Time) ([]normalize.LogRecord, error)
}
