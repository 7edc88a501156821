package audit

// EventType represents the category of a canonical audit event.
// The set is closed: normalizers map every source record onto one of these
// or reject the record.
type EventType string

const (
	EventStateChange  EventType = "state_change"
	EventInputChange  EventType = "input_change"
	EventRunStarted   EventType = "run_started"
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"
	EventUserAction   EventType = "user_action"
	EventLogEntry     EventType = "log_entry"
)

// AllEventTypes lists every valid event type, in merge-priority order.
var AllEventTypes = []EventType{
	EventStateChange,
	EventInputChange,
	EventRunStarted,
	EventLogEntry,
	EventUserAction,
	EventRunCompleted,
	EventRunFailed,
}

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// IsValid returns true if the event type belongs to the closed set
func (et EventType) IsValid() bool {
	switch et {
	case EventStateChange, EventInputChange, EventRunStarted,
		EventRunCompleted, EventRunFailed, EventUserAction, EventLogEntry:
		return true
	default:
		return false
	}
}

// IsRunEvent returns true if the event type describes a run lifecycle step
func (et EventType) IsRunEvent() bool {
	switch et {
	case EventRunStarted, EventRunCompleted, EventRunFailed:
		return true
	default:
		return false
	}
}

// IsRunTerminal returns true if the event type ends a run
func (et EventType) IsRunTerminal() bool {
	return et == EventRunCompleted || et == EventRunFailed
}

// MergePriority returns the tie-break rank used when two events share a
// timestamp and sequence hints cannot decide. Causes sort before effects:
// a state change at 10:00:00 precedes the run completion stamped at the
// same instant. Lower rank merges first.
func (et EventType) MergePriority() int {
	switch et {
	case EventStateChange:
		return 0
	case EventInputChange:
		return 1
	case EventRunStarted:
		return 2
	case EventLogEntry:
		return 3
	case EventUserAction:
		return 4
	case EventRunCompleted, EventRunFailed:
		return 5
	default:
		return 6
	}
}

// ParseEventType converts a raw string into a validated EventType
func ParseEventType(raw string) (EventType, bool) {
	et := EventType(raw)
	return et, et.IsValid()
}

// Severity levels for log-derived events
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// String returns the string representation of the severity
func (s Severity) String() string {
	return string(s)
}

// Level returns a numeric level for the severity (higher = more severe)
func (s Severity) Level() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarn:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

// IsAtLeast returns true if this severity is at least as severe as the other
func (s Severity) IsAtLeast(other Severity) bool {
	return s.Level() >= other.Level()
}

// RunStatus represents the lifecycle state of a scenario run
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusTimeout RunStatus = "timeout"
)

// String returns the string representation of the run status
func (rs RunStatus) String() string {
	return string(rs)
}

// IsValid returns true if the status belongs to the closed set
func (rs RunStatus) IsValid() bool {
	switch rs {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailed, RunStatusTimeout:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the run has ended
func (rs RunStatus) IsTerminal() bool {
	return rs != RunStatusRunning && rs.IsValid()
}

// IsSuccess returns true only for successful runs. Failed and timed-out
// runs never serve as comparison baselines.
func (rs RunStatus) IsSuccess() bool {
	return rs == RunStatusSuccess
}

// ErrorCategory classifies failure messages. The five canonical categories
// below cover the default rule set; custom rule sets may introduce others,
// so the type is deliberately open.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryDatabase      ErrorCategory = "database"
	CategoryCalculation   ErrorCategory = "calculation"
	CategoryUncategorized ErrorCategory = "uncategorized"
)

// String returns the string representation of the category
func (c ErrorCategory) String() string {
	return string(c)
}

// ScenarioState represents a forecast scenario's lifecycle state as derived
// from its audit timestamps.
type ScenarioState string

const (
	StateDraft     ScenarioState = "draft"
	StateSubmitted ScenarioState = "submitted"
	StateLocked    ScenarioState = "locked"
	StateWithdrawn ScenarioState = "withdrawn"
	StateDeleted   ScenarioState = "deleted"
)

// String returns the string representation of the state
func (s ScenarioState) String() string {
	return string(s)
}

// IsTerminal returns true for states no further transition can leave
func (s ScenarioState) IsTerminal() bool {
	return s == StateWithdrawn || s == StateDeleted
}
