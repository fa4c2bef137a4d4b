package heap

import (
	"iter"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
	"github.com/rasmus-z/clrmd/typeinfo"
)

// Segment is a contiguous region of the managed heap (spec.md §3).
type Segment struct {
	Start              address.Address
	FirstObjectAddress address.Address
	End                address.Address
	IsLargeObjectSegment bool
}

// Length returns End-Start.
func (s Segment) Length() int64 {
	return s.End.Sub(s.Start)
}

// FinalizerQueueSegment is a [Start,End) run of pointer-sized slots,
// each holding the address of an object pending (or a root for)
// finalization. Zero slots are skipped (spec.md §3).
type FinalizerQueueSegment struct {
	Start, End address.Address
}

// DependentHandle is a conditional strong reference: while Source is
// live, Target is reachable too (spec.md §3).
type DependentHandle struct {
	Source, Target address.Address
}

// StackRoot is a single root found while scanning a thread's stack.
type StackRoot struct {
	ThreadID uint32
	Addr     address.Address // the stack slot holding the reference.
	Type     *typeinfo.Type  // static type of the slot, if known.
}

// Runtime is the collaborator that hands the heap walker its raw
// per-snapshot inputs: the set of heap segments, allocation contexts,
// finalizer queues, dependent handles, strong handles, and stack
// roots. clrmd consumes this contract but does not implement it — it
// is the in-process analogue of a DAC/SOS-style runtime inspection
// interface, scoped out of the core the same way DataReader and the
// type factory are (spec.md §1).
type Runtime interface {
	Reader() target.DataReader
	Factory() typeinfo.Factory

	Segments() []Segment
	AllocationContexts() map[address.Address]address.Address
	FinalizerRootSegments() []FinalizerQueueSegment
	FinalizerObjectSegments() []FinalizerQueueSegment
	DependentHandles() iter.Seq2[address.Address, address.Address]
	StrongHandles() iter.Seq[address.Address]
	StackRoots() iter.Seq[StackRoot]

	IsServer() bool
	LogicalHeapCount() int
	CanWalkHeap() bool
}
