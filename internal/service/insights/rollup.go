package insights

import (
	"math"
	"sort"
	"time"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
)

const dayFormat = "2006-01-02"

// Window bounds a rollup in time. Bounds are inclusive; a zero boundary
// leaves that side open.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// TrailingDays returns a window covering the last n days up to now
func TrailingDays(n int, now time.Time) Window {
	return Window{From: now.AddDate(0, 0, -n), To: now}
}

// DayTotals counts one day's runs
type DayTotals struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Rollup carries the counting aggregates behind the insight views. It
// holds counts, never rates, so two partial rollups merge by plain
// addition and sharding a window never averages averages.
type Rollup struct {
	Events       int                         `json:"events"`
	Categories   map[audit.ErrorCategory]int `json:"categories"`
	FailingNodes map[string]int              `json:"failing_nodes"`
	Days         map[string]*DayTotals       `json:"days"`
}

// NewRollup creates an empty rollup
func NewRollup() *Rollup {
	return &Rollup{
		Categories:   make(map[audit.ErrorCategory]int),
		FailingNodes: make(map[string]int),
		Days:         make(map[string]*DayTotals),
	}
}

// ObserveEvent counts a run failure or ERROR log against its category.
// Other event types leave the category counts untouched.
func (r *Rollup) ObserveEvent(e *audit.Event) {
	if e == nil {
		return
	}
	r.Events++

	switch e.Type {
	case audit.EventRunFailed:
	case audit.EventLogEntry:
		if e.PayloadString("severity") != audit.SeverityError.String() {
			return
		}
	default:
		return
	}

	category := audit.ErrorCategory(e.PayloadString("error_category"))
	if category == "" {
		category = audit.CategoryUncategorized
	}
	r.Categories[category]++
}

// ObserveRun buckets a run into its start day
func (r *Rollup) ObserveRun(run *audit.Run) {
	if run == nil {
		return
	}

	day := run.StartedAt.UTC().Format(dayFormat)
	totals, ok := r.Days[day]
	if !ok {
		totals = &DayTotals{}
		r.Days[day] = totals
	}

	totals.Total++
	if run.Status == audit.RunStatusFailed || run.Status == audit.RunStatusTimeout {
		totals.Failed++
	}
}

// ObserveComparison counts the nodes implicated in a failed run: every
// node that changed in the window leading into a failed or timed out
// target run.
func (r *Rollup) ObserveComparison(c *audit.RunComparison) {
	if c == nil || c.RunB == nil {
		return
	}
	if c.RunB.Status != audit.RunStatusFailed && c.RunB.Status != audit.RunStatusTimeout {
		return
	}

	for _, nc := range c.ChangedNodes {
		r.FailingNodes[nc.NodeID]++
	}
}

// Merge combines two rollups into a new one. Merge(Rollup(a), Rollup(b))
// equals Rollup(a+b) for every counting aggregate.
func Merge(a, b *Rollup) *Rollup {
	merged := NewRollup()
	for _, r := range []*Rollup{a, b} {
		if r == nil {
			continue
		}
		merged.Events += r.Events
		for cat, n := range r.Categories {
			merged.Categories[cat] += n
		}
		for node, n := range r.FailingNodes {
			merged.FailingNodes[node] += n
		}
		for day, totals := range r.Days {
			dst, ok := merged.Days[day]
			if !ok {
				dst = &DayTotals{}
				merged.Days[day] = dst
			}
			dst.Total += totals.Total
			dst.Failed += totals.Failed
		}
	}
	return merged
}

// CategoryCount is one entry of the top-error-categories view
type CategoryCount struct {
	Category audit.ErrorCategory `json:"category"`
	Count    int                 `json:"count"`
}

// NodeFailureCount is one entry of the top-failing-nodes view
type NodeFailureCount struct {
	NodeID string `json:"node_id"`
	Count  int    `json:"count"`
}

// DailyRate is one day of the success-rate series
type DailyRate struct {
	Day         string  `json:"day"`
	Total       int     `json:"total"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// TopCategories returns the n most frequent error categories, count
// descending, ties broken by category name so the view is deterministic.
func (r *Rollup) TopCategories(n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(r.Categories))
	for cat, count := range r.Categories {
		out = append(out, CategoryCount{Category: cat, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return truncateCategories(out, n)
}

// TopNodes returns the n nodes most often implicated in failed runs
func (r *Rollup) TopNodes(n int) []NodeFailureCount {
	out := make([]NodeFailureCount, 0, len(r.FailingNodes))
	for node, count := range r.FailingNodes {
		out = append(out, NodeFailureCount{NodeID: node, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].NodeID < out[j].NodeID
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// DailyRates returns the per-day success-rate series in day order. Days
// with no runs never appear; the rate is computed here, at view time,
// never stored.
func (r *Rollup) DailyRates() []DailyRate {
	days := make([]string, 0, len(r.Days))
	for day := range r.Days {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]DailyRate, 0, len(days))
	for _, day := range days {
		totals := r.Days[day]
		if totals.Total == 0 {
			continue
		}
		out = append(out, DailyRate{
			Day:         day,
			Total:       totals.Total,
			Failed:      totals.Failed,
			SuccessRate: round2(float64(totals.Total-totals.Failed) / float64(totals.Total)),
		})
	}
	return out
}

func truncateCategories(counts []CategoryCount, n int) []CategoryCount {
	if n >= 0 && len(counts) > n {
		return counts[:n]
	}
	return counts
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
