package typeinfo

import (
	"iter"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
)

// Series describes a fixed-offset run of consecutive pointer-sized
// slots within an object: PointerCount pointers starting at Offset.
type Series struct {
	Offset       int64
	PointerCount int64
}

// RepeatSeries describes the pointer-bearing offsets within each
// element of a variable-length (array-shaped) object: starting at
// Start, every Stride bytes is one element, and PointerOffsets lists
// the pointer-sized offsets within a single element.
type RepeatSeries struct {
	Start          int64
	Stride         int64
	PointerOffsets []int64
}

// GCDesc is the compact, per-type encoding of which offsets within an
// object hold outgoing references (spec.md §3, "GC descriptor"). It is
// treated as an opaque collaborator built by the type factory; GCDesc
// only implements the walk itself (C2).
type GCDesc struct {
	Fixed  []Series
	Repeat *RepeatSeries
}

// Empty reports whether the descriptor encodes no pointers at all.
func (d *GCDesc) Empty() bool {
	return d == nil || (len(d.Fixed) == 0 && d.Repeat == nil)
}

// Walk yields (reference, fieldOffset) pairs for every pointer-bearing
// slot in an object of size bytes located at obj: fieldOffset is the
// slot's offset within obj, and reference is the pointer value stored
// there. Walk does not resolve or dereference the referenced address
// any further — that is left to the consumer (spec.md §4.2).
//
// Reads that fail (out of the reader's knowledge) are treated as a
// zero pointer and simply not yielded, consistent with "unreadable
// memory is treated as zero bytes" (spec.md §7).
func (d *GCDesc) Walk(obj address.Address, size int64, ptrSize int64, reader target.DataReader) iter.Seq2[address.Address, int64] {
	return func(yield func(address.Address, int64) bool) {
		if d == nil {
			return
		}
		for _, s := range d.Fixed {
			for i := int64(0); i < s.PointerCount; i++ {
				off := s.Offset + i*ptrSize
				if off+ptrSize > size {
					break
				}
				v, ok := reader.ReadPointer(obj.Add(off))
				if !ok || v == 0 {
					continue
				}
				if !yield(address.Address(v), off) {
					return
				}
			}
		}
		if d.Repeat == nil {
			return
		}
		r := d.Repeat
		if r.Stride <= 0 {
			return
		}
		for elemOff := r.Start; elemOff+r.Stride <= size; elemOff += r.Stride {
			for _, po := range r.PointerOffsets {
				off := elemOff + po
				if off+ptrSize > size {
					continue
				}
				v, ok := reader.ReadPointer(obj.Add(off))
				if !ok || v == 0 {
					continue
				}
				if !yield(address.Address(v), off) {
					return
				}
			}
		}
	}
}
