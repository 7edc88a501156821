package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/service/normalize"
)

// SourceRepository reads the operational forecasting schema the pipeline
// extracts from. It is read-only: every mutation of source data happens
// in the forecasting application, never here.
type SourceRepository struct {
	pool   *Pool
	logger *zap.Logger
}

// NewSourceRepository creates a reader over the operational schema
func NewSourceRepository(pool *Pool, logger *zap.Logger) *SourceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceRepository{pool: pool, logger: logger}
}

// ListScenarioIDs returns scenarios touched since the cutoff: a lifecycle
// timestamp moved, a node input row landed, or a run started or finished.
// A zero cutoff lists everything.
func (r *SourceRepository) ListScenarioIDs(ctx context.Context, updatedSince time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT scenario_id FROM (
			SELECT scenario_id, GREATEST(
				COALESCE(created_at, '-infinity'),
				COALESCE(updated_at, '-infinity'),
				COALESCE(submitted_at, '-infinity'),
				COALESCE(locked_at, '-infinity'),
				COALESCE(withdraw_at, '-infinity'),
				COALESCE(delete_at, '-infinity')
			) AS touched_at FROM app.scenario
			UNION ALL
			SELECT scenario_id, created_at FROM app.node_data
			UNION ALL
			SELECT scenario_id, GREATEST(run_at, COALESCE(completed_at, run_at))
			FROM app.scenario_run
		) activity
		WHERE $1::timestamptz IS NULL OR touched_at >= $1
		ORDER BY scenario_id`

	var cutoff *time.Time
	if !updatedSince.IsZero() {
		cutoff = &updatedSince
	}

	rows, err := r.pool.Pgx().Query(ctx, query, cutoff)
	if err != nil {
		return nil, errors.NewInternalError("listing scenario ids failed").WithCause(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternalError("scanning scenario id failed").WithCause(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("reading scenario ids failed").WithCause(err)
	}

	r.logger.Debug("listed source scenarios",
		zap.Int("count", len(ids)),
		zap.Time("updated_since", updatedSince))
	return ids, nil
}

// FetchScenario returns one scenario row with its lifecycle audit columns,
// or nil when the scenario does not exist.
func (r *SourceRepository) FetchScenario(ctx context.Context, scenarioID string) (*normalize.ScenarioRow, error) {
	query := `
		SELECT scenario_id, COALESCE(name, ''), COALESCE(state, ''),
			created_at, COALESCE(created_by, ''), COALESCE(created_req_id, ''),
			updated_at, COALESCE(updated_by, ''), COALESCE(updated_req_id, ''),
			submitted_at, COALESCE(submitted_by, ''), COALESCE(submitted_req_id, ''),
			locked_at, COALESCE(locked_by, ''), COALESCE(locked_req_id, ''),
			withdraw_at, COALESCE(withdraw_by, ''), COALESCE(withdraw_req_id, ''),
			delete_at, COALESCE(delete_by, ''), COALESCE(delete_req_id, '')
		FROM app.scenario
		WHERE scenario_id = $1`

	var row normalize.ScenarioRow
	err := r.pool.Pgx().QueryRow(ctx, query, scenarioID).Scan(
		&row.ScenarioID, &row.Name, &row.State,
		&row.CreatedAt, &row.CreatedBy, &row.CreatedReqID,
		&row.UpdatedAt, &row.UpdatedBy, &row.UpdatedReqID,
		&row.SubmittedAt, &row.SubmittedBy, &row.SubmittedReqID,
		&row.LockedAt, &row.LockedBy, &row.LockedReqID,
		&row.WithdrawAt, &row.WithdrawBy, &row.WithdrawReqID,
		&row.DeleteAt, &row.DeleteBy, &row.DeleteReqID,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("fetching scenario row failed").WithCause(err)
	}
	return &row, nil
}

// FetchNodeRows returns every node-input version row for one scenario in
// per-node chronological order.
func (r *SourceRepository) FetchNodeRows(ctx context.Context, scenarioID string) ([]normalize.NodeDataRow, error) {
	query := `
		SELECT row_id, scenario_id, node_id, input_hash,
			COALESCE(validated, FALSE), created_at,
			COALESCE(created_by, ''), COALESCE(created_req_id, '')
		FROM app.node_data
		WHERE scenario_id = $1
		ORDER BY node_id, created_at, row_id`

	rows, err := r.pool.Pgx().Query(ctx, query, scenarioID)
	if err != nil {
		return nil, errors.NewInternalError("fetching node rows failed").WithCause(err)
	}
	defer rows.Close()

	var out []normalize.NodeDataRow
	for rows.Next() {
		var row normalize.NodeDataRow
		if err := rows.Scan(
			&row.RowID, &row.ScenarioID, &row.NodeID, &row.InputHash,
			&row.Validated, &row.CreatedAt, &row.CreatedBy, &row.CreatedReqID,
		); err != nil {
			return nil, errors.NewInternalError("scanning node row failed").WithCause(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("reading node rows failed").WithCause(err)
	}
	return out, nil
}

// FetchRunRows returns every run row for one scenario, oldest first
func (r *SourceRepository) FetchRunRows(ctx context.Context, scenarioID string) ([]normalize.RunRow, error) {
	query := `
		SELECT run_id, scenario_id, COALESCE(status, ''), run_at,
			COALESCE(run_by, ''), COALESCE(run_req_id, ''),
			completed_at, COALESCE(fail_reason, '')
		FROM app.scenario_run
		WHERE scenario_id = $1
		ORDER BY run_at, run_id`

	rows, err := r.pool.Pgx().Query(ctx, query, scenarioID)
	if err != nil {
		return nil, errors.NewInternalError("fetching run rows failed").WithCause(err)
	}
	defer rows.Close()

	var out []normalize.RunRow
	for rows.Next() {
		var row normalize.RunRow
		if err := rows.Scan(
			&row.RunID, &row.ScenarioID, &row.Status, &row.RunAt,
			&row.RunBy, &row.RunReqID, &row.CompletedAt, &row.FailReason,
		); err != nil {
			return nil, errors.NewInternalError("scanning run row failed").WithCause(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("reading run rows failed").WithCause(err)
	}
	return out, nil
}
