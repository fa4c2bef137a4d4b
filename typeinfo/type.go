// Package typeinfo defines the type-factory boundary contract the heap
// walker depends on (spec.md §6), and the GC descriptor walker (C2)
// that turns an object's type into the offsets of its outgoing
// references.
package typeinfo

import "github.com/rasmus-z/clrmd/address"

// WellKnown names the four system types the heap memoizes on
// construction (spec.md §3).
type WellKnown int

const (
	Free WellKnown = iota
	Object
	String
	Exception
)

// Type is a type descriptor as produced by the type factory. It is
// deliberately minimal: just the fields the heap walker needs to size
// an object and find its outgoing references.
type Type struct {
	Name string

	StaticSize    int64 // size of the fixed (non-array) portion.
	ComponentSize int64 // 0 for non-arrays; element size otherwise.
	ContainsPointers bool
	IsCollectible    bool

	// LoaderAllocatorHandle, when IsCollectible, is the address of the
	// pointer-sized field holding this type's owning AssemblyLoadContext
	// handle (spec.md §4.6.3 step 2).
	LoaderAllocatorHandle address.Address

	// GCDesc encodes which offsets within an instance of this type
	// hold outgoing references. Nil or empty means no pointers.
	GCDesc *GCDesc

	// Module and MetadataToken let a consumer resolve this type back
	// to the module that defines it (EXPANSION, see SPEC_FULL.md §3).
	Module        string
	MetadataToken uint32
}

// IsWellKnown reports whether t is the memoized well-known type w.
func (t *Type) IsWellKnown(w WellKnown, heap *WellKnownTypes) bool {
	if heap == nil || t == nil {
		return false
	}
	switch w {
	case Free:
		return t == heap.Free
	case Object:
		return t == heap.Object
	case String:
		return t == heap.String
	case Exception:
		return t == heap.Exception
	}
	return false
}

// WellKnownTypes holds the four memoized system types a Heap creates
// once, up front (spec.md §3).
type WellKnownTypes struct {
	Free      *Type
	Object    *Type
	String    *Type
	Exception *Type
}

// Factory resolves method-table addresses (or well-known names) to
// type descriptors. clrmd consumes this contract but does not
// implement it — see spec.md §1, §6.
type Factory interface {
	// GetOrCreateType resolves a method table address to a type
	// descriptor. objectHint, when non-zero, is the address of an
	// instance of the type, which some factories use to validate the
	// method table actually looks like one (e.g. by cross-checking the
	// object's declared size against a plausible range). Returns
	// ok=false if methodTable does not resolve to a valid type.
	GetOrCreateType(methodTable address.Address, objectHint address.Address) (*Type, bool)

	// CreateSystemType builds one of the four well-known types. It is
	// infallible and used only at heap construction time.
	CreateSystemType(w WellKnown) *Type
}
