package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/domain/values"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/querybuilder"
	"github.com/clearsight/scenario-audit-backend/internal/service/insights"
	"github.com/clearsight/scenario-audit-backend/internal/service/pipeline"
)

// EventFilter selects events on the read side. Zero fields are skipped.
type EventFilter struct {
	ScenarioID string
	ActorID    string
	Types      []audit.EventType
	From       time.Time
	To         time.Time
	Limit      int
}

// RunFilter selects runs on the read side. Zero fields are skipped.
type RunFilter struct {
	ScenarioID string
	From       time.Time
	To         time.Time
	FailedOnly bool
}

// ReportingRepository owns the rpt schema: the pipeline loads into it,
// the read API serves from it. Event and input-change rows are immutable;
// loads are idempotent upserts keyed on each row's identity.
type ReportingRepository struct {
	pool   *Pool
	logger *zap.Logger
}

// NewReportingRepository creates a repository over the reporting schema
func NewReportingRepository(pool *Pool, logger *zap.Logger) *ReportingRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportingRepository{pool: pool, logger: logger}
}

// SaveEvents upserts a batch of canonical events and returns how many
// were actually new. Conflicts on the identity key are skipped, which is
// what makes re-extraction safe.
func (r *ReportingRepository) SaveEvents(ctx context.Context, events []*audit.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Pgx().Begin(ctx)
	if err != nil {
		return 0, errors.NewInternalError("beginning event load failed").WithCause(err)
	}
	defer tx.Rollback(ctx)

	stmt, err := tx.Prepare(ctx, "insert_audit_event", `
		INSERT INTO rpt.audit_event (
			event_id, scenario_id, event_type, event_ts, actor_id,
			node_id, run_id, correlation_id, source, ingest_order,
			sequence_hint, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (scenario_id, event_type, event_ts, correlation_id)
		DO NOTHING`)
	if err != nil {
		return 0, errors.NewInternalError("preparing event insert failed").WithCause(err)
	}

	inserted := 0
	for i, e := range events {
		var payloadJSON []byte
		if len(e.Payload) > 0 {
			payloadJSON, err = json.Marshal(e.Payload)
			if err != nil {
				return 0, errors.NewInternalError(
					fmt.Sprintf("marshaling payload of event %d failed", i)).WithCause(err)
			}
		}

		tag, err := tx.Exec(ctx, stmt.Name,
			e.ID,
			e.ScenarioID,
			e.Type.String(),
			e.Timestamp,
			e.Actor,
			e.NodeID,
			e.RunID,
			e.CorrelationID,
			e.Source,
			e.IngestOrder,
			e.SequenceHint,
			payloadJSON,
		)
		if err != nil {
			return 0, errors.NewInternalError(
				fmt.Sprintf("storing event %d failed", i)).WithCause(err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.NewInternalError("committing event load failed").WithCause(err)
	}

	r.logger.Debug("events loaded",
		zap.Int("batch", len(events)),
		zap.Int("inserted", inserted))
	return inserted, nil
}

// SaveRuns upserts run aggregates. Runs mutate as they finish, so
// conflicting rows take the newer status and completion fields.
func (r *ReportingRepository) SaveRuns(ctx context.Context, runs []*audit.Run) error {
	if len(runs) == 0 {
		return nil
	}

	tx, err := r.pool.Pgx().Begin(ctx)
	if err != nil {
		return errors.NewInternalError("beginning run load failed").WithCause(err)
	}
	defer tx.Rollback(ctx)

	stmt, err := tx.Prepare(ctx, "upsert_scenario_run", `
		INSERT INTO rpt.scenario_run (
			run_id, scenario_id, status, started_at, completed_at,
			triggered_by, correlation_id, fail_reason, failure_category,
			loaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			fail_reason = EXCLUDED.fail_reason,
			failure_category = EXCLUDED.failure_category,
			loaded_at = EXCLUDED.loaded_at`)
	if err != nil {
		return errors.NewInternalError("preparing run upsert failed").WithCause(err)
	}

	for _, run := range runs {
		if _, err := tx.Exec(ctx, stmt.Name,
			run.RunID,
			run.ScenarioID,
			run.Status.String(),
			run.StartedAt,
			run.CompletedAt,
			run.TriggeredBy,
			run.CorrelationID,
			run.FailReason,
			run.FailureCategory.String(),
		); err != nil {
			return errors.NewInternalError(
				fmt.Sprintf("storing run %s failed", run.RunID)).WithCause(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewInternalError("committing run load failed").WithCause(err)
	}
	return nil
}

// SaveInputChanges upserts immutable input-change versions
func (r *ReportingRepository) SaveInputChanges(ctx context.Context, changes []*audit.InputChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.pool.Pgx().Begin(ctx)
	if err != nil {
		return errors.NewInternalError("beginning input change load failed").WithCause(err)
	}
	defer tx.Rollback(ctx)

	stmt, err := tx.Prepare(ctx, "insert_input_change", `
		INSERT INTO rpt.input_change (
			scenario_id, node_id, input_hash, previous_hash, changed_at,
			changed_by, change_sequence, correlation_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scenario_id, node_id, changed_at, input_hash)
		DO NOTHING`)
	if err != nil {
		return errors.NewInternalError("preparing input change insert failed").WithCause(err)
	}

	for _, c := range changes {
		var prev *string
		if c.PreviousHash != nil {
			s := c.PreviousHash.String()
			prev = &s
		}

		if _, err := tx.Exec(ctx, stmt.Name,
			c.ScenarioID,
			c.NodeID,
			c.InputHash.String(),
			prev,
			c.ChangedAt,
			c.ChangedBy,
			c.ChangeSequence,
			c.CorrelationID,
		); err != nil {
			return errors.NewInternalError(
				fmt.Sprintf("storing input change for node %s failed", c.NodeID)).WithCause(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewInternalError("committing input change load failed").WithCause(err)
	}
	return nil
}

// SaveSessions upserts session aggregates keyed on (user, start). A
// rebatch that extends a session updates its end and counts in place.
func (r *ReportingRepository) SaveSessions(ctx context.Context, sessions []*audit.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := r.pool.Pgx().Begin(ctx)
	if err != nil {
		return errors.NewInternalError("beginning session load failed").WithCause(err)
	}
	defer tx.Rollback(ctx)

	stmt, err := tx.Prepare(ctx, "upsert_user_session", `
		INSERT INTO rpt.user_session (
			session_id, user_id, started_at, ended_at, event_count,
			action_count, scenario_ids, duration_seconds, loaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id, started_at) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			event_count = EXCLUDED.event_count,
			action_count = EXCLUDED.action_count,
			scenario_ids = EXCLUDED.scenario_ids,
			duration_seconds = EXCLUDED.duration_seconds,
			loaded_at = EXCLUDED.loaded_at`)
	if err != nil {
		return errors.NewInternalError("preparing session upsert failed").WithCause(err)
	}

	for _, s := range sessions {
		if _, err := tx.Exec(ctx, stmt.Name,
			s.SessionID,
			s.UserID,
			s.StartedAt,
			s.EndedAt,
			len(s.Events),
			s.ActionCount,
			s.ScenariosTouched,
			s.DurationSeconds(),
		); err != nil {
			return errors.NewInternalError(
				fmt.Sprintf("storing session for user %s failed", s.UserID)).WithCause(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewInternalError("committing session load failed").WithCause(err)
	}
	return nil
}

// SaveDailyRollups refreshes the touched days from the authoritative run
// table. The in-memory rates only tell us which days are dirty; the
// stored numbers always come from every run of that day, so incremental
// batches never shrink a day's totals.
func (r *ReportingRepository) SaveDailyRollups(ctx context.Context, days []insights.DailyRate) error {
	if len(days) == 0 {
		return nil
	}

	tx, err := r.pool.Pgx().Begin(ctx)
	if err != nil {
		return errors.NewInternalError("beginning rollup refresh failed").WithCause(err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rpt.daily_run_rollup (day, total_runs, failed_runs, success_rate, loaded_at)
		SELECT $1::date,
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('failed', 'timeout')),
			ROUND(COUNT(*) FILTER (WHERE status NOT IN ('failed', 'timeout'))::numeric
				/ COUNT(*), 2),
			NOW()
		FROM rpt.scenario_run
		WHERE (started_at AT TIME ZONE 'UTC')::date = $1::date
		HAVING COUNT(*) > 0
		ON CONFLICT (day) DO UPDATE SET
			total_runs = EXCLUDED.total_runs,
			failed_runs = EXCLUDED.failed_runs,
			success_rate = EXCLUDED.success_rate,
			loaded_at = EXCLUDED.loaded_at`

	for _, d := range days {
		if _, err := tx.Exec(ctx, query, d.Day); err != nil {
			return errors.NewInternalError(
				fmt.Sprintf("refreshing rollup for %s failed", d.Day)).WithCause(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.NewInternalError("committing rollup refresh failed").WithCause(err)
	}
	return nil
}

// GetWatermark returns the watermark for one load stream, or nil when no
// batch has run yet.
func (r *ReportingRepository) GetWatermark(ctx context.Context, key string) (*pipeline.Watermark, error) {
	query := `
		SELECT watermark_key, last_loaded_at, last_run_started,
			last_run_completed, row_count_loaded, status
		FROM rpt.etl_watermark
		WHERE watermark_key = $1`

	var (
		wm                                 pipeline.Watermark
		loadedAt, runStarted, runCompleted *time.Time
	)
	err := r.pool.Pgx().QueryRow(ctx, query, key).Scan(
		&wm.Key, &loadedAt, &runStarted, &runCompleted, &wm.RowsLoaded, &wm.Status,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("reading watermark failed").WithCause(err)
	}

	if loadedAt != nil {
		wm.LastLoadedAt = *loadedAt
	}
	if runStarted != nil {
		wm.LastRunStarted = *runStarted
	}
	if runCompleted != nil {
		wm.LastRunCompleted = *runCompleted
	}
	return &wm, nil
}

// UpsertWatermark records a batch outcome. The lifetime row count
// accumulates; everything else reflects the latest batch.
func (r *ReportingRepository) UpsertWatermark(ctx context.Context, w *pipeline.Watermark) error {
	query := `
		INSERT INTO rpt.etl_watermark (
			watermark_key, last_loaded_at, last_run_started,
			last_run_completed, row_count_loaded, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (watermark_key) DO UPDATE SET
			last_loaded_at = EXCLUDED.last_loaded_at,
			last_run_started = EXCLUDED.last_run_started,
			last_run_completed = EXCLUDED.last_run_completed,
			row_count_loaded = rpt.etl_watermark.row_count_loaded + EXCLUDED.row_count_loaded,
			status = EXCLUDED.status`

	_, err := r.pool.Pgx().Exec(ctx, query,
		w.Key,
		timeOrNil(w.LastLoadedAt),
		timeOrNil(w.LastRunStarted),
		timeOrNil(w.LastRunCompleted),
		w.RowsLoaded,
		w.Status,
	)
	if err != nil {
		return errors.NewInternalError("upserting watermark failed").WithCause(err)
	}
	return nil
}

// ListEvents returns events matching the filter in canonical timeline
// order.
func (r *ReportingRepository) ListEvents(ctx context.Context, f EventFilter) ([]*audit.Event, error) {
	qb := querybuilder.NewEventQuery()
	if f.ScenarioID != "" {
		qb.ForScenario(f.ScenarioID)
	}
	if f.ActorID != "" {
		qb.ForActor(f.ActorID)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = t.String()
		}
		qb.OfTypes(types)
	}
	qb.Between(f.From, f.To)
	qb.Limit(f.Limit)

	sql, args := qb.Build()
	rows, err := r.pool.Pgx().Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.NewInternalError("querying events failed").WithCause(err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("reading events failed").WithCause(err)
	}
	return events, nil
}

// ListRuns returns run aggregates matching the filter, oldest first
func (r *ReportingRepository) ListRuns(ctx context.Context, f RunFilter) ([]*audit.Run, error) {
	qb := querybuilder.NewRunQuery()
	if f.ScenarioID != "" {
		qb.ForScenario(f.ScenarioID)
	}
	if f.FailedOnly {
		qb.FailedOnly()
	}
	qb.StartedBetween(f.From, f.To)

	sql, args := qb.Build()
	rows, err := r.pool.Pgx().Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.NewInternalError("querying runs failed").WithCause(err)
	}
	defer rows.Close()

	var runs []*audit.Run
	for rows.Next() {
		var (
			run      audit.Run
			status   string
			category string
		)
		if err := rows.Scan(
			&run.RunID, &run.ScenarioID, &status, &run.StartedAt,
			&run.CompletedAt, &run.TriggeredBy, &run.CorrelationID,
			&run.FailReason, &category,
		); err != nil {
			return nil, errors.NewInternalError("scanning run failed").WithCause(err)
		}
		run.Status = audit.RunStatus(status)
		run.FailureCategory = audit.ErrorCategory(category)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("reading runs failed").WithCause(err)
	}
	return runs, nil
}

// ListInputChanges returns every input-change version for one scenario in
// per-node order.
func (r *ReportingRepository) ListInputChanges(ctx context.Context, scenarioID string) ([]*audit.InputChangeRecord, error) {
	sql, args := querybuilder.NewInputChangeQuery().ForScenario(scenarioID).Build()

	rows, err := r.pool.Pgx().Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.NewInternalError("querying input changes failed").WithCause(err)
	}
	defer rows.Close()

	var changes []*audit.InputChangeRecord
	for rows.Next() {
		var (
			c        audit.InputChangeRecord
			hash     string
			prevHash *string
		)
		if err := rows.Scan(
			&c.ScenarioID, &c.NodeID, &hash, &prevHash, &c.ChangedAt,
			&c.ChangedBy, &c.ChangeSequence, &c.CorrelationID,
		); err != nil {
			return nil, errors.NewInternalError("scanning input change failed").WithCause(err)
		}

		c.InputHash, err = values.NewInputHash(hash)
		if err != nil {
			return nil, errors.NewInternalError("stored input hash is malformed").WithCause(err)
		}
		if prevHash != nil {
			prev, err := values.NewInputHash(*prevHash)
			if err != nil {
				return nil, errors.NewInternalError("stored previous hash is malformed").WithCause(err)
			}
			c.PreviousHash = &prev
		}
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("reading input changes failed").WithCause(err)
	}
	return changes, nil
}

// ListDailyRollups returns the materialized per-day run rates between the
// bounds, oldest day first.
func (r *ReportingRepository) ListDailyRollups(ctx context.Context, from, to time.Time) ([]insights.DailyRate, error) {
	sql, args := querybuilder.Select(
		"day::text", "total_runs", "failed_runs", "success_rate::float8",
	).
		From("rpt.daily_run_rollup").
		WhereTimeRange("day", from, to).
		OrderByAsc("day").
		Build()

	rows, err := r.pool.Pgx().Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.NewInternalError("querying daily rollups failed").WithCause(err)
	}
	defer rows.Close()

	var rates []insights.DailyRate
	for rows.Next() {
		var d insights.DailyRate
		if err := rows.Scan(&d.Day, &d.Total, &d.Failed, &d.SuccessRate); err != nil {
			return nil, errors.NewInternalError("scanning daily rollup failed").WithCause(err)
		}
		rates = append(rates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("reading daily rollups failed").WithCause(err)
	}
	return rates, nil
}

func scanEvent(rows pgx.Rows) (*audit.Event, error) {
	var (
		e           audit.Event
		eventType   string
		payloadJSON []byte
	)
	if err := rows.Scan(
		&e.ID, &e.ScenarioID, &eventType, &e.Timestamp, &e.Actor,
		&e.NodeID, &e.RunID, &e.CorrelationID, &e.Source, &e.IngestOrder,
		&e.SequenceHint, &payloadJSON,
	); err != nil {
		return nil, errors.NewInternalError("scanning event failed").WithCause(err)
	}

	e.Type = audit.EventType(eventType)
	e.Timestamp = e.Timestamp.UTC()
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			return nil, errors.NewInternalError("stored payload is malformed").WithCause(err)
		}
	}
	return &e, nil
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
