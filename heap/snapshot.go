package heap

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rasmus-z/clrmd/address"
)

// Snapshot is the cached, atomically published bundle of heap
// metadata valid between ClearCachedData calls (spec.md §3, §4.4).
// Once published it is never mutated in place, except the one-shot
// dependent-handle latch and the benign lastSegmentIndex hint.
type Snapshot struct {
	segments      []Segment // sorted by Start, non-overlapping.
	allocContexts map[address.Address]address.Address
	finRoots      []FinalizerQueueSegment
	finObjects    []FinalizerQueueSegment

	lastSegmentIndex atomic.Int64

	depOnce     sync.Once
	depHandles  []DependentHandle // sorted by Source.
	depHandlesFn func() []DependentHandle
}

func buildSnapshot(rt Runtime) *Snapshot {
	segs := append([]Segment(nil), rt.Segments()...)
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	s := &Snapshot{
		segments:      segs,
		allocContexts: rt.AllocationContexts(),
		finRoots:      rt.FinalizerRootSegments(),
		finObjects:    rt.FinalizerObjectSegments(),
	}
	s.depHandlesFn = func() []DependentHandle {
		var h []DependentHandle
		for src, dst := range rt.DependentHandles() {
			h = append(h, DependentHandle{Source: src, Target: dst})
		}
		sort.SliceStable(h, func(i, j int) bool { return h[i].Source < h[j].Source })
		return h
	}
	return s
}

// dependentHandles returns the sorted dependent-handle array, computing
// and latching it on first access (spec.md §4.4).
func (s *Snapshot) dependentHandles() []DependentHandle {
	s.depOnce.Do(func() {
		s.depHandles = s.depHandlesFn()
		s.depHandlesFn = nil
	})
	return s.depHandles
}

// Segments returns the sorted, immutable segment array for this
// snapshot.
func (s *Snapshot) Segments() []Segment {
	return s.segments
}

// GetSegmentByAddress implements C3 (spec.md §4.3): a warm-cache,
// circular scan starting from the last hit, falling back to scanning
// every segment once if the hint is stale. The hint is read and
// written without a lock — a torn read just means a slower lookup,
// never a wrong one, because the result is always re-validated against
// the candidate segment's own bounds before being returned.
func (s *Snapshot) GetSegmentByAddress(a address.Address) (Segment, bool) {
	n := len(s.segments)
	if n == 0 {
		return Segment{}, false
	}
	if a < s.segments[0].FirstObjectAddress || a >= s.segments[n-1].End {
		return Segment{}, false
	}
	start := int(s.lastSegmentIndex.Load())
	if start < 0 || start >= n {
		start = 0
	}
	i := start
	for {
		seg := s.segments[i]
		off := a.Sub(seg.Start)
		if off >= 0 && off < seg.Length() {
			s.lastSegmentIndex.Store(int64(i))
			return seg, true
		}
		i++
		if i == n {
			i = 0
		}
		if i == start {
			return Segment{}, false
		}
	}
}
