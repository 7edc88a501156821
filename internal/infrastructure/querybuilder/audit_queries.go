package querybuilder

import (
	"time"
)

// Typed builders for the reporting tables. Handlers and repositories
// compose filters here instead of concatenating SQL.

var eventColumns = []string{
	"event_id", "scenario_id", "event_type", "event_ts", "actor_id",
	"node_id", "run_id", "correlation_id", "source", "ingest_order",
	"sequence_hint", "payload",
}

// EventQueryBuilder builds reads over rpt.audit_event
type EventQueryBuilder struct {
	*Builder
}

// NewEventQuery selects the canonical event columns in timeline order
func NewEventQuery() *EventQueryBuilder {
	b := Select(eventColumns...).From("rpt.audit_event").
		OrderByAsc("event_ts").
		OrderByAsc("event_type").
		OrderByAsc("source").
		OrderByAsc("ingest_order")
	return &EventQueryBuilder{Builder: b}
}

func (eq *EventQueryBuilder) ForScenario(scenarioID string) *EventQueryBuilder {
	eq.WhereEqual("scenario_id", scenarioID)
	return eq
}

func (eq *EventQueryBuilder) ForActor(actorID string) *EventQueryBuilder {
	eq.WhereEqual("actor_id", actorID)
	return eq
}

func (eq *EventQueryBuilder) OfTypes(types []string) *EventQueryBuilder {
	if len(types) > 0 {
		eq.WhereAny("event_type", types)
	}
	return eq
}

func (eq *EventQueryBuilder) Between(from, to time.Time) *EventQueryBuilder {
	eq.WhereTimeRange("event_ts", from, to)
	return eq
}

var runColumns = []string{
	"run_id", "scenario_id", "status", "started_at", "completed_at",
	"triggered_by", "correlation_id", "fail_reason", "failure_category",
}

// RunQueryBuilder builds reads over rpt.scenario_run
type RunQueryBuilder struct {
	*Builder
}

// NewRunQuery selects run rows ordered by start time
func NewRunQuery() *RunQueryBuilder {
	b := Select(runColumns...).From("rpt.scenario_run").
		OrderByAsc("started_at").
		OrderByAsc("run_id")
	return &RunQueryBuilder{Builder: b}
}

func (rq *RunQueryBuilder) ForScenario(scenarioID string) *RunQueryBuilder {
	rq.WhereEqual("scenario_id", scenarioID)
	return rq
}

func (rq *RunQueryBuilder) FailedOnly() *RunQueryBuilder {
	rq.WhereAny("status", []string{"failed", "timeout"})
	return rq
}

func (rq *RunQueryBuilder) StartedBetween(from, to time.Time) *RunQueryBuilder {
	rq.WhereTimeRange("started_at", from, to)
	return rq
}

var inputChangeColumns = []string{
	"scenario_id", "node_id", "input_hash", "previous_hash", "changed_at",
	"changed_by", "change_sequence", "correlation_id",
}

// InputChangeQueryBuilder builds reads over rpt.input_change
type InputChangeQueryBuilder struct {
	*Builder
}

// NewInputChangeQuery selects change rows in per-node version order
func NewInputChangeQuery() *InputChangeQueryBuilder {
	b := Select(inputChangeColumns...).From("rpt.input_change").
		OrderByAsc("node_id").
		OrderByAsc("changed_at").
		OrderByAsc("change_sequence")
	return &InputChangeQueryBuilder{Builder: b}
}

func (cq *InputChangeQueryBuilder) ForScenario(scenarioID string) *InputChangeQueryBuilder {
	cq.WhereEqual("scenario_id", scenarioID)
	return cq
}

func (cq *InputChangeQueryBuilder) ForNode(nodeID string) *InputChangeQueryBuilder {
	cq.WhereEqual("node_id", nodeID)
	return cq
}
