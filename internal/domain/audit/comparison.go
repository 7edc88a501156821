package audit

import (
	"time"

	"github.com/clearsight/scenario-audit-backend/internal/domain/values"
)

// NodeChange summarizes what happened to one node inside a comparison
// window. When the node changed several times, OldHash comes from the
// first in-window change and NewHash from the last; ChangeCount records
// how many changes collapsed into this entry.
type NodeChange struct {
	NodeID      string            `json:"node_id"`
	OldHash     *values.InputHash `json:"old_hash,omitempty"`
	NewHash     values.InputHash  `json:"new_hash"`
	ChangedBy   string            `json:"changed_by,omitempty"`
	ChangedAt   time.Time         `json:"changed_at"`
	ChangeCount int               `json:"change_count"`
}

// IsNewNode reports whether the node had no value before the window
func (nc *NodeChange) IsNewNode() bool {
	return nc.OldHash == nil
}

// RunComparison answers "what changed between these two runs". The change
// window is (RunA.StartedAt, RunB.StartedAt]: exclusive on the left so the
// baseline's own inputs are not re-reported, inclusive on the right so a
// change stamped at the target's start still counts.
type RunComparison struct {
	ScenarioID         string       `json:"scenario_id"`
	RunA               *Run         `json:"run_a,omitempty"`
	RunB               *Run         `json:"run_b"`
	TimeGapSeconds     float64      `json:"time_gap_seconds"`
	ChangedNodes       []NodeChange `json:"changed_nodes"`
	BaselineIsCreation bool         `json:"baseline_is_creation"`
}

// HasChanges reports whether any node changed in the window
func (rc *RunComparison) HasChanges() bool {
	return len(rc.ChangedNodes) > 0
}

// WindowStart returns the exclusive left boundary of the change window.
// With no baseline run the window opens at the zero time, i.e. every
// change up to the target counts as "since scenario creation".
func (rc *RunComparison) WindowStart() time.Time {
	if rc.RunA == nil {
		return time.Time{}
	}
	return rc.RunA.StartedAt
}

// WindowEnd returns the inclusive right boundary of the change window
func (rc *RunComparison) WindowEnd() time.Time {
	return rc.RunB.StartedAt
}
