package heap

import "github.com/rasmus-z/clrmd/address"

// CorruptionStep, when passed to skipAllocationContext, is invoked the
// moment the allocation-context walk fails to make progress. It mirrors
// the distinguished step-log sentinel described in spec.md §4.9/§7.
type CorruptionStep func(obj, next address.Address)

// skipAllocationContext advances obj past any allocation context that
// starts exactly at obj (a key of allocContexts), repeating while the
// new position is itself a context start (C5, spec.md §4.5). An obj
// strictly inside a context is returned unchanged. Allocation contexts never
// exist on the large-object heap, so large segments are returned
// unchanged. Returns 0 — the "abandon this sweep" sentinel — if the
// walk fails to progress or would overshoot the segment.
//
// spec.md §9 notes that the source this is modeled on evaluates the
// corruption condition twice in a row, with the second check
// unreachable; this implementation keeps only the first check and
// folds its diagnostic callback into that single branch.
func skipAllocationContext(seg Segment, obj address.Address, allocContexts map[address.Address]address.Address, ptrSize int64, onCorrupt CorruptionStep) address.Address {
	if seg.IsLargeObjectSegment {
		return obj
	}
	for {
		limit, ok := allocContexts[obj]
		if !ok {
			return obj
		}
		next := limit.Add(align(minObjectSize(ptrSize), false, ptrSize))
		if obj >= next || obj >= seg.End {
			if onCorrupt != nil {
				onCorrupt(obj, next)
			}
			return 0
		}
		obj = next
	}
}
