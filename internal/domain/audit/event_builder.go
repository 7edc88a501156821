package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// EventBuilder provides a fluent interface for assembling canonical events.
// Normalizers are the primary callers: most source rows populate several
// optional fields, and the builder defers validation to Build so partial
// construction reads cleanly.
type EventBuilder struct {
	event *Event
	err   error
}

// NewEventBuilder starts building an event of the given type
func NewEventBuilder(scenarioID string, eventType EventType, timestamp time.Time) *EventBuilder {
	event := &Event{
		ID:         uuid.New(),
		ScenarioID: scenarioID,
		Timestamp:  timestamp.UTC(),
		Type:       eventType,
		Payload:    make(map[string]interface{}),
	}

	return &EventBuilder{event: event}
}

// WithActor sets the user who caused the event
func (b *EventBuilder) WithActor(actor string) *EventBuilder {
	if b.err != nil {
		return b
	}
	b.event.Actor = actor
	return b
}

// WithCorrelationID attaches the request id that links events across sources
func (b *EventBuilder) WithCorrelationID(correlationID string) *EventBuilder {
	if b.err != nil {
		return b
	}
	b.event.CorrelationID = correlationID
	return b
}

// WithRun attaches the run this event belongs to
func (b *EventBuilder) WithRun(runID string) *EventBuilder {
	if b.err != nil {
		return b
	}
	b.event.RunID = runID
	return b
}

// WithNode attaches the model node this event concerns
func (b *EventBuilder) WithNode(nodeID string) *EventBuilder {
	if b.err != nil {
		return b
	}
	b.event.NodeID = nodeID
	return b
}

// WithSequenceHint records an explicit source-side ordering position
func (b *EventBuilder) WithSequenceHint(hint int64) *EventBuilder {
	if b.err != nil {
		return b
	}
	b.event.SequenceHint = &hint
	return b
}

// WithSource tags the ingestion source (scenario_audit, node_data, runs, logs)
func (b *EventBuilder) WithSource(source string) *EventBuilder {
	if b.err != nil {
		return b
	}
	b.event.Source = source
	return b
}

// WithPayloadField adds one type-specific detail
func (b *EventBuilder) WithPayloadField(key string, value interface{}) *EventBuilder {
	if b.err != nil {
		return b
	}
	if key == "" {
		b.err = errors.NewValidationError("EMPTY_PAYLOAD_KEY", "payload key cannot be empty")
		return b
	}
	b.event.Payload[key] = value
	return b
}

// WithPayload merges a map of type-specific details
func (b *EventBuilder) WithPayload(payload map[string]interface{}) *EventBuilder {
	if b.err != nil {
		return b
	}
	for k, v := range payload {
		b.event.Payload[k] = v
	}
	return b
}

// Build validates and returns the completed event
func (b *EventBuilder) Build() (*Event, error) {
	if b.err != nil {
		return nil, b.err
	}

	if err := b.event.Validate(); err != nil {
		return nil, err
	}

	return b.event, nil
}
