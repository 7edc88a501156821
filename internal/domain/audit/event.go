package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// Event represents one canonical entry on a scenario's audit timeline.
// Events are immutable after construction: consumers that need to modify
// one must Clone it first. All timestamps are UTC.
type Event struct {
	// Identity
	ID         uuid.UUID `json:"id"`
	ScenarioID string    `json:"scenario_id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`

	// Attribution
	Actor         string `json:"actor,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RunID         string `json:"run_id,omitempty"`
	NodeID        string `json:"node_id,omitempty"`

	// SequenceHint is set only when the source carried an explicit
	// per-source ordering (a database sequence, a log stream offset).
	// Absence is meaningful: the merger falls back to type priority.
	SequenceHint *int64 `json:"sequence_hint,omitempty"`

	// Type-specific details. Never part of event identity.
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Ingestion provenance
	Source      string `json:"source,omitempty"`
	IngestOrder int64  `json:"ingest_order"`
}

// NewEvent creates a canonical event with validation.
// Required: scenario id, a non-zero timestamp, a valid event type.
func NewEvent(scenarioID string, eventType EventType, timestamp time.Time) (*Event, error) {
	if scenarioID == "" {
		return nil, errors.NewMalformedRecordError("event", "scenario id is required")
	}

	if timestamp.IsZero() {
		return nil, errors.NewMalformedRecordError("event", "timestamp is required")
	}

	if !eventType.IsValid() {
		return nil, errors.NewValidationError("INVALID_EVENT_TYPE",
			fmt.Sprintf("unknown event type %q", eventType))
	}

	return &Event{
		ID:         uuid.New(),
		ScenarioID: scenarioID,
		Timestamp:  timestamp.UTC(),
		Type:       eventType,
		Payload:    make(map[string]interface{}),
	}, nil
}

// DedupKey returns the identity key events are deduplicated on:
// (scenario_id, type, timestamp, correlation_id). Payload differences do
// not make two events distinct.
func (e *Event) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s",
		e.ScenarioID, e.Type, e.Timestamp.UTC().Format(time.RFC3339Nano), e.CorrelationID)
}

// HasSequenceHint reports whether the source supplied an explicit ordering
func (e *Event) HasSequenceHint() bool {
	return e.SequenceHint != nil
}

// Validate performs full validation of the event
func (e *Event) Validate() error {
	if e.ScenarioID == "" {
		return errors.NewMalformedRecordError("event", "scenario id is required")
	}

	if e.Timestamp.IsZero() {
		return errors.NewMalformedRecordError("event", "timestamp is required")
	}

	if !e.Type.IsValid() {
		return errors.NewValidationError("INVALID_EVENT_TYPE",
			fmt.Sprintf("unknown event type %q", e.Type))
	}

	if e.Type.IsRunEvent() && e.RunID == "" {
		return errors.NewValidationError("MISSING_RUN_ID",
			"run events must reference a run")
	}

	return nil
}

// Clone creates a deep copy of the event
func (e *Event) Clone() *Event {
	clone := &Event{
		ID:            e.ID,
		ScenarioID:    e.ScenarioID,
		Timestamp:     e.Timestamp,
		Type:          e.Type,
		Actor:         e.Actor,
		CorrelationID: e.CorrelationID,
		RunID:         e.RunID,
		NodeID:        e.NodeID,
		Source:        e.Source,
		IngestOrder:   e.IngestOrder,
	}

	if e.SequenceHint != nil {
		hint := *e.SequenceHint
		clone.SequenceHint = &hint
	}

	if e.Payload != nil {
		clone.Payload = make(map[string]interface{}, len(e.Payload))
		for k, v := range e.Payload {
			clone.Payload[k] = v
		}
	}

	return clone
}

// PayloadString returns a string payload field, or "" when absent
func (e *Event) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadBool returns a bool payload field, or false when absent
func (e *Event) PayloadBool(key string) bool {
	if e.Payload == nil {
		return false
	}
	if v, ok := e.Payload[key].(bool); ok {
		return v
	}
	return false
}
