package audit

import (
	"sort"
	"time"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/domain/values"
)

// InputChangeRecord represents one versioned change to a node's input data.
// A nil PreviousHash means this is the first recorded value for the node,
// which is distinct from "changed from an unknown value".
type InputChangeRecord struct {
	ScenarioID     string            `json:"scenario_id"`
	NodeID         string            `json:"node_id"`
	InputHash      values.InputHash  `json:"input_hash"`
	PreviousHash   *values.InputHash `json:"previous_hash,omitempty"`
	ChangedBy      string            `json:"changed_by,omitempty"`
	ChangedAt      time.Time         `json:"changed_at"`
	ChangeSequence int               `json:"change_sequence"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
}

// NewInputChangeRecord creates a change record with validation
func NewInputChangeRecord(scenarioID, nodeID string, hash values.InputHash, changedAt time.Time) (*InputChangeRecord, error) {
	if scenarioID == "" {
		return nil, errors.NewMalformedRecordError("input_change", "scenario id is required")
	}

	if nodeID == "" {
		return nil, errors.NewMalformedRecordError("input_change", "node id is required")
	}

	if hash.IsEmpty() {
		return nil, errors.NewMalformedRecordError("input_change", "input hash is required")
	}

	if changedAt.IsZero() {
		return nil, errors.NewMalformedRecordError("input_change", "changed_at is required")
	}

	return &InputChangeRecord{
		ScenarioID: scenarioID,
		NodeID:     nodeID,
		InputHash:  hash,
		ChangedAt:  changedAt.UTC(),
	}, nil
}

// IsFirstValue reports whether this record introduced the node
func (c *InputChangeRecord) IsFirstValue() bool {
	return c.PreviousHash == nil
}

// NodeHistory is one node's input versions ordered by ChangedAt ascending
type NodeHistory struct {
	nodeID  string
	changes []*InputChangeRecord
}

// Changes returns the ordered change records
func (nh *NodeHistory) Changes() []*InputChangeRecord {
	return nh.changes
}

// NodeID returns the node this history describes
func (nh *NodeHistory) NodeID() string {
	return nh.nodeID
}

// AsOf returns the input version in effect at t: the latest change with
// ChangedAt <= t. Returns nil when the node had no value yet.
func (nh *NodeHistory) AsOf(t time.Time) *InputChangeRecord {
	// First change after t; the one before it is in effect.
	idx := sort.Search(len(nh.changes), func(i int) bool {
		return nh.changes[i].ChangedAt.After(t)
	})

	if idx == 0 {
		return nil
	}
	return nh.changes[idx-1]
}

// InWindow returns the changes with after < ChangedAt <= until, in order.
// The left boundary is exclusive and the right inclusive: a change stamped
// exactly at the baseline run's start belongs to the previous window.
func (nh *NodeHistory) InWindow(after, until time.Time) []*InputChangeRecord {
	lo := sort.Search(len(nh.changes), func(i int) bool {
		return nh.changes[i].ChangedAt.After(after)
	})
	hi := sort.Search(len(nh.changes), func(i int) bool {
		return nh.changes[i].ChangedAt.After(until)
	})

	if lo >= hi {
		return nil
	}
	return nh.changes[lo:hi]
}

// ChangesSince returns the changes with ChangedAt > after, in order
func (nh *NodeHistory) ChangesSince(after time.Time) []*InputChangeRecord {
	lo := sort.Search(len(nh.changes), func(i int) bool {
		return nh.changes[i].ChangedAt.After(after)
	})
	if lo >= len(nh.changes) {
		return nil
	}
	return nh.changes[lo:]
}

// InputLog holds every node's change history for one scenario
type InputLog struct {
	scenarioID string
	nodes      map[string]*NodeHistory
	nodeIDs    []string
}

// NewInputLog groups change records per node and orders each node's
// versions by ChangedAt (ties keep input order). Records for other
// scenarios are ignored.
func NewInputLog(scenarioID string, records []*InputChangeRecord) *InputLog {
	nodes := make(map[string]*NodeHistory)
	for _, rec := range records {
		if rec.ScenarioID != scenarioID {
			continue
		}
		nh, ok := nodes[rec.NodeID]
		if !ok {
			nh = &NodeHistory{nodeID: rec.NodeID}
			nodes[rec.NodeID] = nh
		}
		nh.changes = append(nh.changes, rec)
	}

	nodeIDs := make([]string, 0, len(nodes))
	for nodeID, nh := range nodes {
		sort.SliceStable(nh.changes, func(i, j int) bool {
			return nh.changes[i].ChangedAt.Before(nh.changes[j].ChangedAt)
		})
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	return &InputLog{
		scenarioID: scenarioID,
		nodes:      nodes,
		nodeIDs:    nodeIDs,
	}
}

// ScenarioID returns the scenario this log belongs to
func (l *InputLog) ScenarioID() string {
	return l.scenarioID
}

// NodeIDs returns all node ids in deterministic (sorted) order
func (l *InputLog) NodeIDs() []string {
	return l.nodeIDs
}

// Node returns one node's history, or nil when the node is unknown
func (l *InputLog) Node(nodeID string) *NodeHistory {
	return l.nodes[nodeID]
}
