package normalize

import (
	"time"
)

// Source tags stamped onto events at normalization. The merger's stable
// tie-break keys on (source, ingest order), so tags must be distinct per
// record stream.
const (
	SourceScenarioAudit = "scenario_audit"
	SourceNodeData      = "node_data"
	SourceScenarioRuns  = "scenario_runs"
	SourceAppLogs       = "app_logs"
)

// ScenarioRow mirrors a row of the operational scenario table. Each
// populated lifecycle timestamp carries its own actor and request id;
// unset timestamps are nil, never zero times.
type ScenarioRow struct {
	ScenarioID string
	Name       string
	State      string

	CreatedAt    *time.Time
	CreatedBy    string
	CreatedReqID string

	UpdatedAt    *time.Time
	UpdatedBy    string
	UpdatedReqID string

	SubmittedAt    *time.Time
	SubmittedBy    string
	SubmittedReqID string

	LockedAt    *time.Time
	LockedBy    string
	LockedReqID string

	WithdrawAt    *time.Time
	WithdrawBy    string
	WithdrawReqID string

	DeleteAt    *time.Time
	DeleteBy    string
	DeleteReqID string
}

// NodeDataRow mirrors one immutable node-input version row. RowID is the
// source table's identity column and doubles as the sequence hint.
type NodeDataRow struct {
	RowID        int64
	ScenarioID   string
	NodeID       string
	InputHash    string
	Validated    bool
	CreatedAt    *time.Time
	CreatedBy    string
	CreatedReqID string
}

// RunRow mirrors one scenario run row
type RunRow struct {
	RunID       string
	ScenarioID  string
	Status      string
	RunAt       *time.Time
	RunBy       string
	RunReqID    string
	CompletedAt *time.Time
	FailReason  string
}

// LogRecord is one application log line fetched from the log source.
// StreamOffset is the position within the log stream and doubles as the
// sequence hint; -1 means the source provided none.
type LogRecord struct {
	Timestamp     time.Time
	Severity      string
	Message       string
	CorrelationID string
	ScenarioID    string
	RunID         string
	UserID        string
	StackTrace    string
	StreamOffset  int64
}

// RecordBatch bundles every source stream fetched for one extraction pass
type RecordBatch struct {
	Scenarios []ScenarioRow
	NodeData  []NodeDataRow
	Runs      []RunRow
	Logs      []LogRecord
}

// IsEmpty reports whether the batch carries no records at all
func (b *RecordBatch) IsEmpty() bool {
	return len(b.Scenarios) == 0 && len(b.NodeData) == 0 &&
		len(b.Runs) == 0 && len(b.Logs) == 0
}

// Size returns the total record count across all streams
func (b *RecordBatch) Size() int {
	return len(b.Scenarios) + len(b.NodeData) + len(b.Runs) + len(b.Logs)
}
