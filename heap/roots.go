package heap

import (
	"iter"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/typeinfo"
)

// RootKind distinguishes the three classes of GC root spec.md §4.7
// enumerates.
type RootKind int

const (
	RootStrongHandle RootKind = iota
	RootFinalizer
	RootStack
)

// Root is a single GC root: a location that keeps Object reachable.
type Root struct {
	Kind   RootKind
	Addr   address.Address // the slot holding the reference; 0 for strong handles, whose own handle address the runtime collaborator does not expose.
	Object address.Address
	Type   *typeinfo.Type // resolved type of Object, nil if unresolved.
	Thread uint32         // populated when Kind == RootStack.
}

// EnumerateRoots yields, in order: every strong handle, then every
// finalizer root, then every stack root (spec.md §4.7). It preserves
// multiplicity — nothing here deduplicates across the three classes.
func (h *Heap) EnumerateRoots() iter.Seq[Root] {
	return func(yield func(Root) bool) {
		for obj := range h.runtime.StrongHandles() {
			r := Root{Kind: RootStrongHandle, Object: obj, Type: h.resolveTargetType(obj)}
			if !yield(r) {
				return
			}
		}
		for r := range h.EnumerateFinalizerRoots() {
			if !yield(r) {
				return
			}
		}
		for sr := range h.runtime.StackRoots() {
			obj := h.readSlot(sr.Addr)
			r := Root{Kind: RootStack, Addr: sr.Addr, Object: obj, Type: h.resolveTargetType(obj), Thread: sr.ThreadID}
			if !yield(r) {
				return
			}
		}
	}
}

// EnumerateFinalizerRoots walks every finalizer-root segment slot by
// slot, skipping zero slots, and emits a root for each slot whose
// pointed-to object resolves to a type (spec.md §4.7 step 2).
func (h *Heap) EnumerateFinalizerRoots() iter.Seq[Root] {
	return func(yield func(Root) bool) {
		snap := h.getSnapshot()
		ptrSize := h.ptrSize()
		for _, seg := range snap.finRoots {
			for slot := seg.Start; slot < seg.End; slot = slot.Add(ptrSize) {
				obj := h.readSlot(slot)
				if obj == 0 {
					continue
				}
				typ, ok := h.GetObjectType(obj)
				if !ok {
					continue
				}
				if !yield(Root{Kind: RootFinalizer, Addr: slot, Object: obj, Type: typ}) {
					return
				}
			}
		}
	}
}

// FinalizableObject is one object pending finalization, already
// unreachable through normal roots (spec.md §4.7).
type FinalizableObject struct {
	Addr address.Address
	Type *typeinfo.Type // resolved type, nil if unresolved.
}

// EnumerateFinalizableObjects walks the finalizer-object segments the
// same way EnumerateFinalizerRoots walks the finalizer-root segments,
// but emits the objects themselves rather than roots bound to them
// (spec.md §4.7).
func (h *Heap) EnumerateFinalizableObjects() iter.Seq[FinalizableObject] {
	return func(yield func(FinalizableObject) bool) {
		snap := h.getSnapshot()
		ptrSize := h.ptrSize()
		for _, seg := range snap.finObjects {
			for slot := seg.Start; slot < seg.End; slot = slot.Add(ptrSize) {
				obj := h.readSlot(slot)
				if obj == 0 {
					continue
				}
				typ, _ := h.GetObjectType(obj)
				if !yield(FinalizableObject{Addr: obj, Type: typ}) {
					return
				}
			}
		}
	}
}

func (h *Heap) readSlot(a address.Address) address.Address {
	v, ok := h.runtime.Reader().ReadPointer(a)
	if !ok {
		return 0
	}
	return address.Address(v)
}
