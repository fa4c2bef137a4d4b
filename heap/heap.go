package heap

import (
	"sync"
	"sync/atomic"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/typeinfo"
)

// Heap is the public façade over a managed heap snapshot: the runtime
// handle, the lazily-built snapshot cache, the four memoized
// well-known types, and the immutable scalars (spec.md §3).
type Heap struct {
	runtime Runtime

	wellKnown typeinfo.WellKnownTypes

	canWalkHeap      bool
	isServer         bool
	logicalHeapCount int

	snapshot atomic.Pointer[Snapshot]
	buildMu  sync.Mutex
}

// New builds a Heap over rt, memoizing the four well-known types. It
// does not build a snapshot — that happens lazily on first demand
// (spec.md §4.4).
func New(rt Runtime) *Heap {
	f := rt.Factory()
	h := &Heap{
		runtime:          rt,
		canWalkHeap:      rt.CanWalkHeap(),
		isServer:         rt.IsServer(),
		logicalHeapCount: rt.LogicalHeapCount(),
	}
	h.wellKnown = typeinfo.WellKnownTypes{
		Free:      f.CreateSystemType(typeinfo.Free),
		Object:    f.CreateSystemType(typeinfo.Object),
		String:    f.CreateSystemType(typeinfo.String),
		Exception: f.CreateSystemType(typeinfo.Exception),
	}
	return h
}

// Runtime returns the runtime collaborator this heap was built over.
func (h *Heap) Runtime() Runtime { return h.runtime }

// FreeType, ObjectType, StringType, ExceptionType return the four
// well-known, memoized type descriptors.
func (h *Heap) FreeType() *typeinfo.Type      { return h.wellKnown.Free }
func (h *Heap) ObjectType() *typeinfo.Type    { return h.wellKnown.Object }
func (h *Heap) StringType() *typeinfo.Type    { return h.wellKnown.String }
func (h *Heap) ExceptionType() *typeinfo.Type { return h.wellKnown.Exception }

func (h *Heap) IsServer() bool         { return h.isServer }
func (h *Heap) LogicalHeapCount() int  { return h.logicalHeapCount }
func (h *Heap) CanWalkHeap() bool      { return h.canWalkHeap }

func (h *Heap) ptrSize() int64 { return int64(h.runtime.Reader().PointerSize()) }

// Segments returns the sorted segment array of the current snapshot,
// building one if none is cached yet.
func (h *Heap) Segments() []Segment {
	return h.getSnapshot().Segments()
}

// ClearCachedData drops the current snapshot. The next call into any
// enumerator rebuilds it from the runtime collaborator (spec.md §4.4,
// §6).
func (h *Heap) ClearCachedData() {
	h.snapshot.Store(nil)
}

// getSnapshot returns the current snapshot, building and publishing
// one under buildMu if none exists yet. Publication is atomic: no
// reader ever observes a partially-initialized snapshot.
func (h *Heap) getSnapshot() *Snapshot {
	if s := h.snapshot.Load(); s != nil {
		return s
	}
	h.buildMu.Lock()
	defer h.buildMu.Unlock()
	if s := h.snapshot.Load(); s != nil {
		return s
	}
	s := buildSnapshot(h.runtime)
	h.snapshot.Store(s)
	return s
}

// GetSegmentByAddress implements C3 (spec.md §4.3).
func (h *Heap) GetSegmentByAddress(a address.Address) (Segment, bool) {
	return h.getSnapshot().GetSegmentByAddress(a)
}

// GetObjectType reads the method-table pointer at addr and resolves
// it through the type factory (spec.md §4.6.2). Returns ok=false both
// when the slot is zero and when the factory can't resolve it.
func (h *Heap) GetObjectType(addr address.Address) (*typeinfo.Type, bool) {
	mt, ok := h.runtime.Reader().ReadPointer(addr)
	if !ok || mt == 0 {
		return nil, false
	}
	return h.runtime.Factory().GetOrCreateType(address.Address(mt), addr)
}

// GetObjectSize computes the unaligned size of the object of type t
// located at addr (spec.md §4.1, §6).
func (h *Heap) GetObjectSize(addr address.Address, t *typeinfo.Type) int64 {
	return objectSize(h.runtime.Reader(), addr, t, &h.wellKnown, h.ptrSize())
}
