package heap

import (
	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
	"github.com/rasmus-z/clrmd/typeinfo"
)

// LargeObjectThreshold is the size, in bytes, at or above which an
// object is considered to live on the large-object heap (spec.md
// GLOSSARY, §4.6.3).
const LargeObjectThreshold = 85000

// align rounds size up to a multiple of (a+1) where a is align_large
// (7) for large objects or align_small (ptrSize-1) otherwise — the
// large-object heap is always aligned to 8 regardless of pointer
// width (spec.md §4.1).
func align(size int64, isLarge bool, ptrSize int64) int64 {
	var a int64
	if isLarge {
		a = 7
	} else {
		a = ptrSize - 1
	}
	return (size + a) &^ a
}

// minObjectSize is 3 pointer-widths, the floor every computed object
// size is raised to (spec.md §4.1).
func minObjectSize(ptrSize int64) int64 {
	return 3 * ptrSize
}

func floorSize(size, ptrSize int64) int64 {
	if m := minObjectSize(ptrSize); size < m {
		return m
	}
	return size
}

// objectSize computes the unaligned size of the object of type t
// located at obj, per spec.md §4.1. For array-shaped types it reads a
// 32-bit element count at offset ptrSize within the object, applying
// the string trailing-null correction when t is the well-known string
// type. The result is always floored at 3*ptrSize but is never
// rounded up to an alignment boundary — that rounding is applied
// separately, only where spec.md calls for it (the allocation-context
// skipper, and the scan-advance step in object enumeration).
func objectSize(reader target.DataReader, obj address.Address, t *typeinfo.Type, wk *typeinfo.WellKnownTypes, ptrSize int64) int64 {
	if t.ComponentSize == 0 {
		return floorSize(t.StaticSize, ptrSize)
	}
	count, ok := reader.ReadUint32(obj.Add(ptrSize))
	if !ok {
		count = 0
	}
	c := int64(count)
	if t.IsWellKnown(typeinfo.String, wk) {
		c++
	}
	return floorSize(c*t.ComponentSize+t.StaticSize, ptrSize)
}
