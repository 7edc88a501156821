package audit

import (
	"encoding/json"
	"time"
)

// AnomalyKind classifies problems found while assembling a timeline
type AnomalyKind string

const (
	// AnomalyMissingTimestamp marks events excluded from the merge because
	// they carry no usable timestamp.
	AnomalyMissingTimestamp AnomalyKind = "missing_timestamp"
	// AnomalyUnsortedSource marks a source sequence that violated its
	// sorted-input contract and was re-sorted before merging.
	AnomalyUnsortedSource AnomalyKind = "unsorted_source"
	// AnomalyDuplicateEvent marks identity-key collisions collapsed during
	// the merge.
	AnomalyDuplicateEvent AnomalyKind = "duplicate_event"
)

// Anomaly records one problem encountered while merging. Anomalies are
// reported, never silently repaired.
type Anomaly struct {
	Kind        AnomalyKind `json:"kind"`
	SourceIndex int         `json:"source_index"`
	Detail      string      `json:"detail,omitempty"`
	Count       int         `json:"count"`
}

// Timeline is the merged, ordered view of a scenario's events
type Timeline struct {
	ScenarioID        string    `json:"scenario_id,omitempty"`
	Events            []*Event  `json:"events"`
	SourceCount       int       `json:"source_count"`
	DuplicatesDropped int       `json:"duplicates_dropped"`
	Anomalies         []Anomaly `json:"anomalies,omitempty"`
}

// Len returns the number of merged events
func (t *Timeline) Len() int {
	return len(t.Events)
}

// Span returns the first and last timestamps, or zero times when empty
func (t *Timeline) Span() (time.Time, time.Time) {
	if len(t.Events) == 0 {
		return time.Time{}, time.Time{}
	}
	return t.Events[0].Timestamp, t.Events[len(t.Events)-1].Timestamp
}

// FilterByType returns the events matching any of the given types, in
// timeline order. An empty type set returns all events.
func (t *Timeline) FilterByType(types ...EventType) []*Event {
	if len(types) == 0 {
		return t.Events
	}

	wanted := make(map[EventType]struct{}, len(types))
	for _, et := range types {
		wanted[et] = struct{}{}
	}

	var out []*Event
	for _, e := range t.Events {
		if _, ok := wanted[e.Type]; ok {
			out = append(out, e)
		}
	}
	return out
}

// FilterByWindow returns the events with from <= Timestamp <= until, in
// timeline order. Zero boundaries are open.
func (t *Timeline) FilterByWindow(from, until time.Time) []*Event {
	var out []*Event
	for _, e := range t.Events {
		if !from.IsZero() && e.Timestamp.Before(from) {
			continue
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Serialize renders the timeline as deterministic JSON. Two merges of the
// same sources produce byte-identical output, which is what the cache
// layer and the determinism guarantees rely on.
func (t *Timeline) Serialize() ([]byte, error) {
	return json.Marshal(t)
}
