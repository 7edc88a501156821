package timeline

import (
	"container/heap"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
)

// Merger assembles one ordered timeline from k per-source event sequences.
//
// Each input sequence must already be sorted by the canonical event
// ordering; sources that violate the contract are re-sorted and reported
// as anomalies rather than rejected. The merge itself is a heap-based
// k-way merge: O(n log k) for n events across k sources, and fully
// deterministic, so merging the same sources twice yields byte-identical
// serialized timelines.
type Merger struct {
	logger *zap.Logger
}

// NewMerger creates a timeline merger
func NewMerger(logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{logger: logger}
}

// cursor tracks the merge position within one source sequence
type cursor struct {
	events []*audit.Event
	source int
	pos    int
}

func (c *cursor) head() *audit.Event {
	return c.events[c.pos]
}

// mergeHeap orders cursors by their head event: canonical ordering first,
// then source index, then position within the source. The last two tiers
// are the ingestion-stable tail that keeps full ties deterministic.
type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := audit.CompareEvents(h[i].head(), h[j].head()); c != 0 {
		return c < 0
	}
	if h[i].source != h[j].source {
		return h[i].source < h[j].source
	}
	return h[i].pos < h[j].pos
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(*cursor))
}

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Merge combines the per-source sequences into one timeline. Events with
// a zero timestamp are excluded and reported; events sharing an identity
// key collapse to their first occurrence in merged order.
func (m *Merger) Merge(sources [][]*audit.Event) (*audit.Timeline, error) {
	timeline := &audit.Timeline{
		Events:      make([]*audit.Event, 0),
		SourceCount: len(sources),
	}

	h := make(mergeHeap, 0, len(sources))
	total := 0

	for idx, source := range sources {
		prepared, anomalies := prepareSource(idx, source)
		timeline.Anomalies = append(timeline.Anomalies, anomalies...)

		if len(prepared) == 0 {
			continue
		}
		total += len(prepared)
		h = append(h, &cursor{events: prepared, source: idx})
	}

	heap.Init(&h)

	seen := make(map[string]struct{}, total)
	dupsBySource := make(map[int]int)

	for h.Len() > 0 {
		c := heap.Pop(&h).(*cursor)
		event := c.head()

		key := event.DedupKey()
		if _, dup := seen[key]; dup {
			timeline.DuplicatesDropped++
			dupsBySource[c.source]++
		} else {
			seen[key] = struct{}{}
			timeline.Events = append(timeline.Events, event)
		}

		c.pos++
		if c.pos < len(c.events) {
			heap.Push(&h, c)
		}
	}

	// Duplicate anomalies are aggregated per source, in source order.
	dupSources := make([]int, 0, len(dupsBySource))
	for idx := range dupsBySource {
		dupSources = append(dupSources, idx)
	}
	sort.Ints(dupSources)
	for _, idx := range dupSources {
		timeline.Anomalies = append(timeline.Anomalies, audit.Anomaly{
			Kind:        audit.AnomalyDuplicateEvent,
			SourceIndex: idx,
			Count:       dupsBySource[idx],
		})
	}

	timeline.ScenarioID = singleScenarioID(timeline.Events)

	m.logger.Debug("timeline merged",
		zap.Int("sources", len(sources)),
		zap.Int("events", len(timeline.Events)),
		zap.Int("duplicates_dropped", timeline.DuplicatesDropped),
		zap.Int("anomalies", len(timeline.Anomalies)))

	return timeline, nil
}

// MergeScenario merges and verifies that every event belongs to the given
// scenario. Foreign events indicate a caller bug and fail the merge.
func (m *Merger) MergeScenario(scenarioID string, sources [][]*audit.Event) (*audit.Timeline, error) {
	timeline, err := m.Merge(sources)
	if err != nil {
		return nil, err
	}

	for _, e := range timeline.Events {
		if e.ScenarioID != scenarioID {
			return nil, fmt.Errorf("merge for scenario %s received event for scenario %s", scenarioID, e.ScenarioID)
		}
	}

	timeline.ScenarioID = scenarioID
	return timeline, nil
}

// prepareSource drops zero-timestamp events and restores sort order when a
// source breaks its sorted-input contract. Both conditions surface as
// anomalies; nothing is silently repaired.
func prepareSource(idx int, source []*audit.Event) ([]*audit.Event, []audit.Anomaly) {
	var anomalies []audit.Anomaly

	missing := 0
	usable := make([]*audit.Event, 0, len(source))
	for _, e := range source {
		if e.Timestamp.IsZero() {
			missing++
			continue
		}
		usable = append(usable, e)
	}
	if missing > 0 {
		anomalies = append(anomalies, audit.Anomaly{
			Kind:        audit.AnomalyMissingTimestamp,
			SourceIndex: idx,
			Detail:      "events without timestamps excluded from merge",
			Count:       missing,
		})
	}

	if !isSorted(usable) {
		sorted := make([]*audit.Event, len(usable))
		copy(sorted, usable)
		sort.SliceStable(sorted, func(i, j int) bool {
			return audit.EventLess(sorted[i], sorted[j])
		})
		usable = sorted

		anomalies = append(anomalies, audit.Anomaly{
			Kind:        audit.AnomalyUnsortedSource,
			SourceIndex: idx,
			Detail:      "source sequence violated sorted-input contract",
			Count:       1,
		})
	}

	return usable, anomalies
}

func isSorted(events []*audit.Event) bool {
	for i := 1; i < len(events); i++ {
		if audit.CompareEvents(events[i-1], events[i]) > 0 {
			return false
		}
	}
	return true
}

// singleScenarioID returns the scenario id shared by every event, or ""
// when the timeline spans several scenarios or is empty.
func singleScenarioID(events []*audit.Event) string {
	if len(events) == 0 {
		return ""
	}

	id := events[0].ScenarioID
	for _, e := range events[1:] {
		if e.ScenarioID != id {
			return ""
		}
	}
	return id
}
