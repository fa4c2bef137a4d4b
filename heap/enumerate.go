package heap

import (
	"iter"
	"sort"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/typeinfo"
)

// ObjectRecord is one live object surfaced by EnumerateObjects. Type is
// nil for a typeless object — an unresolved, non-zero method table
// (§7) — in which case Size is meaningless and left zero.
type ObjectRecord struct {
	Addr address.Address
	Type *typeinfo.Type
	Size int64
}

// EnumerateObjects walks every segment in order, reading objects
// starting at each segment's FirstObjectAddress (C6, spec.md §4.6.1).
//
// A segment's sweep stops when it reaches End, when a zero method
// table is read (an empty slot), when the allocation-context skipper
// (C5) reports corruption, or when the method table read does not
// resolve to a type. That last case still yields one typeless
// ObjectRecord for the unresolved object (§7, "report a typeless
// object") before stopping: without a resolved type there is no way to
// know how many bytes the object occupies, so guessing a size to keep
// scanning would be unsafe, but dropping the object entirely would
// discard information §7 says callers should see.
func (h *Heap) EnumerateObjects() iter.Seq[ObjectRecord] {
	return func(yield func(ObjectRecord) bool) {
		snap := h.getSnapshot()
		reader := h.runtime.Reader()
		factory := h.runtime.Factory()
		ptrSize := h.ptrSize()

		for _, seg := range snap.Segments() {
			cur := seg.FirstObjectAddress
			for cur < seg.End {
				mt, ok := reader.ReadPointer(cur)
				if !ok || mt == 0 {
					break
				}
				typ, resolved := factory.GetOrCreateType(address.Address(mt), cur)
				if !resolved {
					// Unknown method table (§7): the object itself is
					// reported, typeless, since a reader may still want
					// its address. Its size is unknowable without a
					// resolved type, so the sweep can't safely advance
					// past it and stops here.
					if !yield(ObjectRecord{Addr: cur, Type: nil}) {
						return
					}
					break
				}
				size := objectSize(reader, cur, typ, &h.wellKnown, ptrSize)
				var count int64
				if typ.ComponentSize != 0 {
					count = (size - typ.StaticSize) / typ.ComponentSize
				}
				recordStep(Step{Object: cur, MethodTable: address.Address(mt), BaseSize: typ.StaticSize, ComponentSize: typ.ComponentSize, Count: count})

				if !yield(ObjectRecord{Addr: cur, Type: typ, Size: size}) {
					return
				}

				next := cur.Add(align(size, seg.IsLargeObjectSegment, ptrSize))
				next = skipAllocationContext(seg, next, snap.allocContexts, ptrSize, func(obj, nxt address.Address) {
					recordStep(corruptStep(obj, nxt))
				})
				if next == 0 {
					break
				}
				cur = next
			}
		}
	}
}

// ReferenceKind distinguishes the three sources of an outgoing
// reference an object can have (spec.md §4.6.3).
type ReferenceKind int

const (
	ReferenceField ReferenceKind = iota
	ReferenceDependentHandle
	ReferenceCollectibleOwner
)

// ObjectReference is a single outgoing reference from an object, as
// yielded by EnumerateObjectReferences.
type ObjectReference struct {
	Target     address.Address
	TargetType *typeinfo.Type // resolved type of Target, nil if unresolved.
}

// FieldReference is an ObjectReference tagged with the provenance
// metadata EnumerateReferencesWithFields adds (spec.md §4.6.4).
type FieldReference struct {
	ObjectReference
	Kind ReferenceKind

	// ContainingType and FieldOffset are populated when Kind ==
	// ReferenceField: the source object's type, and the offset within
	// it the walker found this reference at.
	ContainingType *typeinfo.Type
	FieldOffset    int64
}

// EnumerateObjectReferences yields obj's outgoing references: first
// any dependent-handle targets (if considerDependentHandles), then its
// collectible-owner reference (if any), then the references its GC
// descriptor encodes (spec.md §4.6.3).
func (h *Heap) EnumerateObjectReferences(obj address.Address, typ *typeinfo.Type, carefully, considerDependentHandles bool) iter.Seq[ObjectReference] {
	return func(yield func(ObjectReference) bool) {
		for fr := range h.enumerateReferencesWithFields(obj, typ, carefully, considerDependentHandles) {
			if !yield(fr.ObjectReference) {
				return
			}
		}
	}
}

// EnumerateReferencesWithFields is EnumerateObjectReferences, except
// every reference carries its provenance: dependent-handle entries are
// tagged ReferenceDependentHandle, and field entries carry the
// containing type and field offset the GC descriptor walker produced
// (spec.md §4.6.4).
func (h *Heap) EnumerateReferencesWithFields(obj address.Address, typ *typeinfo.Type, carefully, considerDependentHandles bool) iter.Seq[FieldReference] {
	return h.enumerateReferencesWithFields(obj, typ, carefully, considerDependentHandles)
}

func (h *Heap) enumerateReferencesWithFields(obj address.Address, typ *typeinfo.Type, carefully, considerDependentHandles bool) iter.Seq[FieldReference] {
	return func(yield func(FieldReference) bool) {
		if typ == nil {
			return
		}
		reader := h.runtime.Reader()
		ptrSize := h.ptrSize()

		if considerDependentHandles {
			handles := h.getSnapshot().dependentHandles()
			i := sort.Search(len(handles), func(i int) bool { return handles[i].Source >= obj })
			for ; i < len(handles) && handles[i].Source == obj; i++ {
				target := handles[i].Target
				ref := FieldReference{
					ObjectReference: ObjectReference{Target: target, TargetType: h.resolveTargetType(target)},
					Kind:            ReferenceDependentHandle,
				}
				if !yield(ref) {
					return
				}
			}
		}

		if typ.IsCollectible && typ.LoaderAllocatorHandle != 0 {
			if v, ok := reader.ReadPointer(typ.LoaderAllocatorHandle); ok && v != 0 {
				target := address.Address(v)
				ref := FieldReference{
					ObjectReference: ObjectReference{Target: target, TargetType: h.resolveTargetType(target)},
					Kind:            ReferenceCollectibleOwner,
				}
				if !yield(ref) {
					return
				}
			}
		}

		if !typ.ContainsPointers || typ.GCDesc.Empty() {
			return
		}

		size := h.GetObjectSize(obj, typ)
		if carefully {
			seg, ok := h.GetSegmentByAddress(obj)
			if !ok || obj.Add(size) > seg.End || (!seg.IsLargeObjectSegment && size > LargeObjectThreshold) {
				return
			}
		}

		for target, fieldOffset := range typ.GCDesc.Walk(obj, size, ptrSize, reader) {
			ref := FieldReference{
				ObjectReference: ObjectReference{Target: target, TargetType: h.resolveTargetType(target)},
				Kind:            ReferenceField,
				ContainingType:  typ,
				FieldOffset:     fieldOffset,
			}
			if !yield(ref) {
				return
			}
		}
	}
}

func (h *Heap) resolveTargetType(target address.Address) *typeinfo.Type {
	if target == 0 {
		return nil
	}
	t, _ := h.GetObjectType(target)
	return t
}
