package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/domain/values"
)

// maxErrorSamples bounds how many per-record errors a batch result retains
const maxErrorSamples = 10

// Service converts heterogeneous source rows into canonical audit events.
// All operations are pure: the same rows always normalize to events with
// the same identity keys, so re-running an extraction is safe.
type Service interface {
	NormalizeScenario(row ScenarioRow) ([]*audit.Event, error)
	NormalizeNodeData(rows []NodeDataRow) ([]*audit.Event, []*audit.InputChangeRecord, error)
	NormalizeRun(row RunRow) ([]*audit.Event, *audit.Run, error)
	NormalizeLogRecord(rec LogRecord) (*audit.Event, error)
	NormalizeBatch(batch RecordBatch) *BatchResult
}

// BatchResult carries everything one extraction pass produced, split per
// source stream so the merger can treat each as an independently sorted
// sequence. Malformed records are counted and sampled, never fatal.
type BatchResult struct {
	ScenarioEvents []*audit.Event
	NodeEvents     []*audit.Event
	RunEvents      []*audit.Event
	LogEvents      []*audit.Event

	Runs         []*audit.Run
	InputChanges []*audit.InputChangeRecord

	SkippedRecords int
	AnomalyCount   int
	ErrorSamples   []error
}

// EventSources returns the per-stream event slices in a fixed order,
// ready for the timeline merger. Empty streams are included so source
// indexes stay stable across batches.
func (r *BatchResult) EventSources() [][]*audit.Event {
	return [][]*audit.Event{
		r.ScenarioEvents,
		r.NodeEvents,
		r.RunEvents,
		r.LogEvents,
	}
}

// TotalEvents returns the number of events across all streams
func (r *BatchResult) TotalEvents() int {
	return len(r.ScenarioEvents) + len(r.NodeEvents) + len(r.RunEvents) + len(r.LogEvents)
}

func (r *BatchResult) recordSkip(err error) {
	r.SkippedRecords++
	if len(r.ErrorSamples) < maxErrorSamples {
		r.ErrorSamples = append(r.ErrorSamples, err)
	}
}

func (r *BatchResult) recordAnomaly(err error) {
	r.AnomalyCount++
	if err != nil && len(r.ErrorSamples) < maxErrorSamples {
		r.ErrorSamples = append(r.ErrorSamples, err)
	}
}

type service struct {
	categorizer *Categorizer
	logger      *zap.Logger
}

// NewService creates a normalizer backed by the given categorizer
func NewService(categorizer *Categorizer, logger *zap.Logger) Service {
	if categorizer == nil {
		categorizer = MustDefaultCategorizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &service{
		categorizer: categorizer,
		logger:      logger,
	}
}

// lifecycleField describes one scenario audit column and how it maps onto
// the state machine. Order matters: it is the expected chronological order.
type lifecycleField struct {
	name      string
	at        *time.Time
	by        string
	reqID     string
	fromState audit.ScenarioState
	toState   audit.ScenarioState
	action    string
	terminal  bool
}

func scenarioLifecycle(row ScenarioRow) []lifecycleField {
	return []lifecycleField{
		{"created_at", row.CreatedAt, row.CreatedBy, row.CreatedReqID, "", audit.StateDraft, "create_scenario", false},
		{"submitted_at", row.SubmittedAt, row.SubmittedBy, row.SubmittedReqID, audit.StateDraft, audit.StateSubmitted, "submit_scenario", false},
		{"locked_at", row.LockedAt, row.LockedBy, row.LockedReqID, audit.StateSubmitted, audit.StateLocked, "lock_scenario", false},
		{"withdraw_at", row.WithdrawAt, row.WithdrawBy, row.WithdrawReqID, "", audit.StateWithdrawn, "withdraw_scenario", true},
		{"delete_at", row.DeleteAt, row.DeleteBy, row.DeleteReqID, "", audit.StateDeleted, "delete_scenario", true},
	}
}

// NormalizeScenario derives state-change and user-action events from one
// scenario row. Transitions come from which lifecycle timestamps are
// populated; out-of-order timestamps are flagged in the payload and left
// untouched.
func (s *service) NormalizeScenario(row ScenarioRow) ([]*audit.Event, error) {
	if row.ScenarioID == "" {
		return nil, errors.NewMalformedRecordError("scenario", "scenario id is missing")
	}

	fields := scenarioLifecycle(row)

	populated := 0
	for _, f := range fields {
		if f.at != nil {
			populated++
		}
	}
	if populated == 0 && row.UpdatedAt == nil {
		return nil, errors.NewMalformedRecordError("scenario",
			fmt.Sprintf("scenario %s has no usable timestamp", row.ScenarioID))
	}

	anomalies := lifecycleAnomalies(fields)

	var events []*audit.Event

	// The from-state of a terminal transition is wherever the chain got to.
	lastState := audit.ScenarioState("")
	for _, f := range fields {
		if f.at == nil {
			continue
		}

		fromState := f.fromState
		if f.terminal {
			fromState = lastState
		} else {
			lastState = f.toState
		}

		builder := audit.NewEventBuilder(row.ScenarioID, audit.EventStateChange, *f.at).
			WithActor(f.by).
			WithCorrelationID(f.reqID).
			WithPayloadField("from_state", fromState.String()).
			WithPayloadField("to_state", f.toState.String()).
			WithPayloadField("field", f.name)

		if detail, ok := anomalies[f.name]; ok {
			builder = builder.
				WithPayloadField("lifecycle_anomaly", true).
				WithPayloadField("anomaly_detail", detail)
		}

		stateEvent, err := builder.Build()
		if err != nil {
			return nil, err
		}
		events = append(events, stateEvent)

		actionEvent, err := audit.NewEventBuilder(row.ScenarioID, audit.EventUserAction, *f.at).
			WithActor(f.by).
			WithCorrelationID(f.reqID).
			WithPayloadField("action", f.action).
			WithPayloadField("scenario_name", row.Name).
			Build()
		if err != nil {
			return nil, err
		}
		events = append(events, actionEvent)
	}

	// Plain updates move no lifecycle state but are still user activity.
	if row.UpdatedAt != nil {
		updateEvent, err := audit.NewEventBuilder(row.ScenarioID, audit.EventUserAction, *row.UpdatedAt).
			WithActor(row.UpdatedBy).
			WithCorrelationID(row.UpdatedReqID).
			WithPayloadField("action", "update_scenario").
			WithPayloadField("scenario_name", row.Name).
			Build()
		if err != nil {
			return nil, err
		}
		events = append(events, updateEvent)
	}

	return events, nil
}

// lifecycleAnomalies checks the populated lifecycle chain against its
// expected order and returns a detail string per offending field.
func lifecycleAnomalies(fields []lifecycleField) map[string]string {
	anomalies := make(map[string]string)

	// Non-terminal chain must be monotonic: created <= submitted <= locked.
	var prev *lifecycleField
	for i := range fields {
		f := &fields[i]
		if f.at == nil || f.terminal {
			continue
		}
		if prev != nil && f.at.Before(*prev.at) {
			anomalies[f.name] = fmt.Sprintf("%s precedes %s", f.name, prev.name)
		}
		prev = f
	}

	// Terminal timestamps cannot precede creation.
	created := fields[0].at
	if created != nil {
		for i := range fields {
			f := &fields[i]
			if f.at == nil || !f.terminal {
				continue
			}
			if f.at.Before(*created) {
				anomalies[f.name] = fmt.Sprintf("%s precedes created_at", f.name)
			}
		}
	}

	return anomalies
}

// NormalizeNodeData orders node-input rows per (scenario, node), chains
// previous hashes, and emits one input-change event per row alongside the
// versioned change records the differ consumes.
func (s *service) NormalizeNodeData(rows []NodeDataRow) ([]*audit.Event, []*audit.InputChangeRecord, error) {
	type keyed struct {
		row NodeDataRow
		pos int
	}

	groups := make(map[string][]keyed)
	var keys []string
	for i, row := range rows {
		if row.ScenarioID == "" {
			return nil, nil, errors.NewMalformedRecordError("node_data", "scenario id is missing")
		}
		if row.NodeID == "" {
			return nil, nil, errors.NewMalformedRecordError("node_data",
				fmt.Sprintf("node id is missing for scenario %s", row.ScenarioID))
		}
		if row.CreatedAt == nil {
			return nil, nil, errors.NewMalformedRecordError("node_data",
				fmt.Sprintf("timestamp is missing for scenario %s node %s", row.ScenarioID, row.NodeID))
		}

		k := row.ScenarioID + "|" + row.NodeID
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], keyed{row: row, pos: i})
	}
	sort.Strings(keys)

	var events []*audit.Event
	var changes []*audit.InputChangeRecord

	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].row, group[j].row
			if !a.CreatedAt.Equal(*b.CreatedAt) {
				return a.CreatedAt.Before(*b.CreatedAt)
			}
			return a.RowID < b.RowID
		})

		var prevHash *values.InputHash
		for seq, item := range group {
			row := item.row

			hash, err := values.NewInputHash(row.InputHash)
			if err != nil {
				return nil, nil, errors.NewMalformedRecordError("node_data",
					fmt.Sprintf("bad input hash for scenario %s node %s", row.ScenarioID, row.NodeID)).WithCause(err)
			}

			change, err := audit.NewInputChangeRecord(row.ScenarioID, row.NodeID, hash, *row.CreatedAt)
			if err != nil {
				return nil, nil, err
			}
			change.PreviousHash = prevHash
			change.ChangedBy = row.CreatedBy
			change.ChangeSequence = seq + 1
			change.CorrelationID = row.CreatedReqID
			changes = append(changes, change)

			builder := audit.NewEventBuilder(row.ScenarioID, audit.EventInputChange, *row.CreatedAt).
				WithActor(row.CreatedBy).
				WithCorrelationID(row.CreatedReqID).
				WithNode(row.NodeID).
				WithPayloadField("input_hash", hash.String()).
				WithPayloadField("change_sequence", seq+1).
				WithPayloadField("validated", row.Validated)

			if prevHash != nil {
				builder = builder.WithPayloadField("previous_hash", prevHash.String())
			}
			if row.RowID > 0 {
				builder = builder.WithSequenceHint(row.RowID)
			}

			event, err := builder.Build()
			if err != nil {
				return nil, nil, err
			}
			events = append(events, event)

			h := hash
			prevHash = &h
		}
	}

	return events, changes, nil
}

// NormalizeRun derives run lifecycle events and the run aggregate from one
// run row. Ended runs additionally emit their terminal event; failures are
// categorized from the fail reason.
func (s *service) NormalizeRun(row RunRow) ([]*audit.Event, *audit.Run, error) {
	if row.ScenarioID == "" {
		return nil, nil, errors.NewMalformedRecordError("run", "scenario id is missing")
	}
	if row.RunAt == nil {
		return nil, nil, errors.NewMalformedRecordError("run",
			fmt.Sprintf("run %s has no start timestamp", row.RunID))
	}

	status := audit.RunStatus(strings.ToLower(row.Status))
	run, err := audit.NewRun(row.RunID, row.ScenarioID, status, *row.RunAt)
	if err != nil {
		return nil, nil, err
	}
	run.TriggeredBy = row.RunBy
	run.CorrelationID = row.RunReqID
	run.FailReason = row.FailReason

	if row.CompletedAt != nil {
		completed := row.CompletedAt.UTC()
		run.CompletedAt = &completed
	}

	if status == audit.RunStatusFailed || status == audit.RunStatusTimeout {
		run.FailureCategory = s.categorizer.Categorize(row.FailReason)
		if status == audit.RunStatusTimeout && run.FailureCategory == audit.CategoryUncategorized {
			run.FailureCategory = audit.CategoryTimeout
		}
	}

	started, err := audit.NewEventBuilder(row.ScenarioID, audit.EventRunStarted, *row.RunAt).
		WithActor(row.RunBy).
		WithCorrelationID(row.RunReqID).
		WithRun(row.RunID).
		WithPayloadField("status", status.String()).
		Build()
	if err != nil {
		return nil, nil, err
	}
	events := []*audit.Event{started}

	if run.CompletedAt == nil || !status.IsTerminal() {
		return events, run, nil
	}

	terminalType := audit.EventRunCompleted
	if status != audit.RunStatusSuccess {
		terminalType = audit.EventRunFailed
	}

	builder := audit.NewEventBuilder(row.ScenarioID, terminalType, *run.CompletedAt).
		WithActor(row.RunBy).
		WithCorrelationID(row.RunReqID).
		WithRun(row.RunID).
		WithPayloadField("duration_seconds", run.DurationSeconds())

	switch status {
	case audit.RunStatusFailed:
		builder = builder.
			WithPayloadField("fail_reason", row.FailReason).
			WithPayloadField("error_category", run.FailureCategory.String())
	case audit.RunStatusTimeout:
		builder = builder.
			WithPayloadField("timeout", true).
			WithPayloadField("fail_reason", row.FailReason).
			WithPayloadField("error_category", run.FailureCategory.String())
	}

	if !run.HasOrderedTimestamps() {
		builder = builder.
			WithPayloadField("timestamp_anomaly", true).
			WithPayloadField("anomaly_detail", "completed_at precedes run_at")
	}

	terminal, err := builder.Build()
	if err != nil {
		return nil, nil, err
	}
	events = append(events, terminal)

	return events, run, nil
}

// NormalizeLogRecord converts one application log line into a log-entry
// event. ERROR lines carry the categorizer's verdict in the payload.
func (s *service) NormalizeLogRecord(rec LogRecord) (*audit.Event, error) {
	if rec.ScenarioID == "" {
		return nil, errors.NewMalformedRecordError("log", "scenario id is missing")
	}
	if rec.Timestamp.IsZero() {
		return nil, errors.NewMalformedRecordError("log",
			fmt.Sprintf("log record for scenario %s has no timestamp", rec.ScenarioID))
	}

	severity := audit.Severity(strings.ToUpper(rec.Severity))

	builder := audit.NewEventBuilder(rec.ScenarioID, audit.EventLogEntry, rec.Timestamp).
		WithActor(rec.UserID).
		WithCorrelationID(rec.CorrelationID).
		WithRun(rec.RunID).
		WithPayloadField("message", rec.Message).
		WithPayloadField("severity", severity.String())

	if rec.StackTrace != "" {
		builder = builder.WithPayloadField("stack_trace", rec.StackTrace)
	}
	if severity == audit.SeverityError {
		builder = builder.WithPayloadField("error_category",
			s.categorizer.Categorize(rec.Message).String())
	}
	if rec.StreamOffset >= 0 {
		builder = builder.WithSequenceHint(rec.StreamOffset)
	}

	return builder.Build()
}

// NormalizeBatch runs every stream of a mixed batch through the matching
// normalizer. Malformed records are skipped and sampled; one bad row never
// aborts the batch. Each returned stream is sorted by the canonical event
// ordering and stamped with its source tag and ingestion positions.
func (s *service) NormalizeBatch(batch RecordBatch) *BatchResult {
	result := &BatchResult{}

	for _, row := range batch.Scenarios {
		events, err := s.NormalizeScenario(row)
		if err != nil {
			s.logger.Warn("skipping malformed scenario row",
				zap.String("scenario_id", row.ScenarioID),
				zap.Error(err))
			result.recordSkip(err)
			continue
		}
		for _, e := range events {
			if e.PayloadBool("lifecycle_anomaly") {
				result.recordAnomaly(nil)
			}
		}
		result.ScenarioEvents = append(result.ScenarioEvents, events...)
	}

	// Node rows chain per-node previous hashes, so malformed rows are
	// filtered first and reported individually.
	validNodeRows := make([]NodeDataRow, 0, len(batch.NodeData))
	for _, row := range batch.NodeData {
		if err := validateNodeRow(row); err != nil {
			s.logger.Warn("skipping malformed node row",
				zap.String("scenario_id", row.ScenarioID),
				zap.String("node_id", row.NodeID),
				zap.Error(err))
			result.recordSkip(err)
			continue
		}
		validNodeRows = append(validNodeRows, row)
	}
	if len(validNodeRows) > 0 {
		events, changes, err := s.NormalizeNodeData(validNodeRows)
		if err != nil {
			// Only reachable through rows the validation above missed.
			result.recordSkip(err)
		} else {
			result.NodeEvents = events
			result.InputChanges = changes
		}
	}

	for _, row := range batch.Runs {
		events, run, err := s.NormalizeRun(row)
		if err != nil {
			s.logger.Warn("skipping malformed run row",
				zap.String("run_id", row.RunID),
				zap.Error(err))
			result.recordSkip(err)
			continue
		}
		if !run.HasOrderedTimestamps() {
			result.recordAnomaly(errors.NewAmbiguousTimestampError("completed_at",
				fmt.Sprintf("run %s completed before it started", run.RunID)))
		}
		result.RunEvents = append(result.RunEvents, events...)
		result.Runs = append(result.Runs, run)
	}

	for _, rec := range batch.Logs {
		event, err := s.NormalizeLogRecord(rec)
		if err != nil {
			s.logger.Warn("skipping malformed log record", zap.Error(err))
			result.recordSkip(err)
			continue
		}
		result.LogEvents = append(result.LogEvents, event)
	}

	stampStream(result.ScenarioEvents, SourceScenarioAudit)
	stampStream(result.NodeEvents, SourceNodeData)
	stampStream(result.RunEvents, SourceScenarioRuns)
	stampStream(result.LogEvents, SourceAppLogs)

	s.logger.Info("batch normalized",
		zap.Int("records_in", batch.Size()),
		zap.Int("events_out", result.TotalEvents()),
		zap.Int("runs", len(result.Runs)),
		zap.Int("input_changes", len(result.InputChanges)),
		zap.Int("skipped", result.SkippedRecords),
		zap.Int("anomalies", result.AnomalyCount))

	return result
}

func validateNodeRow(row NodeDataRow) error {
	if row.ScenarioID == "" {
		return errors.NewMalformedRecordError("node_data", "scenario id is missing")
	}
	if row.NodeID == "" {
		return errors.NewMalformedRecordError("node_data",
			fmt.Sprintf("node id is missing for scenario %s", row.ScenarioID))
	}
	if row.CreatedAt == nil {
		return errors.NewMalformedRecordError("node_data",
			fmt.Sprintf("timestamp is missing for scenario %s node %s", row.ScenarioID, row.NodeID))
	}
	if err := values.ValidateHashFormat(row.InputHash); err != nil {
		return errors.NewMalformedRecordError("node_data",
			fmt.Sprintf("bad input hash for scenario %s node %s", row.ScenarioID, row.NodeID)).WithCause(err)
	}
	return nil
}

// stampStream sorts one source stream into canonical order, then assigns
// source tag and ingestion positions. Position follows the sorted order so
// the merger's stable tail reflects the stream as delivered.
func stampStream(events []*audit.Event, source string) {
	sort.SliceStable(events, func(i, j int) bool {
		return audit.EventLess(events[i], events[j])
	})
	for i, e := range events {
		e.Source = source
		e.IngestOrder = int64(i)
	}
}
