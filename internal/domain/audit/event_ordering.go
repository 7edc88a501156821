package audit

// CompareEvents orders two events by the canonical timeline ordering:
// timestamp ascending, then sequence hint ascending when both events carry
// one, then event-type merge priority. Returns -1, 0, or 1.
//
// A result of 0 means the intrinsic ordering cannot separate the events;
// the merger falls back to its ingestion-stable tail (source position) so
// the overall order stays total and deterministic.
func CompareEvents(a, b *Event) int {
	if a.Timestamp.Before(b.Timestamp) {
		return -1
	}
	if a.Timestamp.After(b.Timestamp) {
		return 1
	}

	// Sequence hints only decide when both sides have one. A hint against
	// no hint says nothing about relative order.
	if a.SequenceHint != nil && b.SequenceHint != nil {
		if *a.SequenceHint < *b.SequenceHint {
			return -1
		}
		if *a.SequenceHint > *b.SequenceHint {
			return 1
		}
	}

	pa, pb := a.Type.MergePriority(), b.Type.MergePriority()
	if pa < pb {
		return -1
	}
	if pa > pb {
		return 1
	}

	return 0
}

// EventLess reports whether a sorts strictly before b under the canonical
// ordering. Use with sort.SliceStable to keep ingestion order on full ties.
func EventLess(a, b *Event) bool {
	return CompareEvents(a, b) < 0
}
