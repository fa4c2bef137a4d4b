package heap

import (
	"encoding/binary"
	"iter"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
	"github.com/rasmus-z/clrmd/typeinfo"
)

// fakeReader is a sparse byte-addressable in-memory DataReader used by
// every test in this package, in place of a real core file or live
// process.
type fakeReader struct {
	ptrSize int
	mem     map[address.Address]byte
}

func newFakeReader(ptrSize int) *fakeReader {
	return &fakeReader{ptrSize: ptrSize, mem: map[address.Address]byte{}}
}

func (f *fakeReader) setUint64(a address.Address, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	for i, b := range buf[:f.ptrSize] {
		f.mem[a.Add(int64(i))] = b
	}
}

func (f *fakeReader) setUint32(a address.Address, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	for i, b := range buf {
		f.mem[a.Add(int64(i))] = b
	}
}

func (f *fakeReader) PointerSize() int { return f.ptrSize }

func (f *fakeReader) ReadPointer(a address.Address) (uint64, bool) {
	buf := make([]byte, f.ptrSize)
	for i := range buf {
		b, ok := f.mem[a.Add(int64(i))]
		if !ok {
			return 0, false
		}
		buf[i] = b
	}
	if f.ptrSize == 4 {
		return uint64(binary.LittleEndian.Uint32(buf)), true
	}
	return binary.LittleEndian.Uint64(buf), true
}

func (f *fakeReader) ReadUint8(a address.Address) (uint8, bool) {
	b, ok := f.mem[a]
	return b, ok
}

func (f *fakeReader) ReadUint32(a address.Address) (uint32, bool) {
	buf := make([]byte, 4)
	for i := range buf {
		b, ok := f.mem[a.Add(int64(i))]
		if !ok {
			return 0, false
		}
		buf[i] = b
	}
	return binary.LittleEndian.Uint32(buf), true
}

func (f *fakeReader) ReadAt(buf []byte, a address.Address) (int, bool) {
	for i := range buf {
		b, ok := f.mem[a.Add(int64(i))]
		if !ok {
			return i, false
		}
		buf[i] = b
	}
	return len(buf), true
}

func (f *fakeReader) GetVersionInfo(address.Address) (target.VersionInfo, bool) {
	return target.VersionInfo{}, false
}

// fakeFactory resolves method tables from a fixed map, as if every
// type had already been discovered.
type fakeFactory struct {
	byMethodTable map[address.Address]*typeinfo.Type
	systemTypes   map[typeinfo.WellKnown]*typeinfo.Type
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		byMethodTable: map[address.Address]*typeinfo.Type{},
		systemTypes:   map[typeinfo.WellKnown]*typeinfo.Type{},
	}
}

func (f *fakeFactory) GetOrCreateType(mt address.Address, _ address.Address) (*typeinfo.Type, bool) {
	t, ok := f.byMethodTable[mt]
	return t, ok
}

func (f *fakeFactory) CreateSystemType(w typeinfo.WellKnown) *typeinfo.Type {
	if t, ok := f.systemTypes[w]; ok {
		return t
	}
	t := &typeinfo.Type{Name: "system"}
	f.systemTypes[w] = t
	return t
}

// fakeRuntime is a fully in-memory Runtime used to synthesize the
// snapshots described by spec.md §8's scenarios.
type fakeRuntime struct {
	reader  *fakeReader
	factory *fakeFactory

	segments    []Segment
	allocCtx    map[address.Address]address.Address
	finRoots    []FinalizerQueueSegment
	finObjects  []FinalizerQueueSegment
	depHandles  []DependentHandle
	strong      []address.Address
	stackRoots  []StackRoot

	isServer         bool
	logicalHeapCount int
	canWalkHeap      bool
}

func newFakeRuntime(ptrSize int) *fakeRuntime {
	return &fakeRuntime{
		reader:           newFakeReader(ptrSize),
		factory:          newFakeFactory(),
		allocCtx:         map[address.Address]address.Address{},
		canWalkHeap:      true,
		logicalHeapCount: 1,
	}
}

func (r *fakeRuntime) Reader() target.DataReader    { return r.reader }
func (r *fakeRuntime) Factory() typeinfo.Factory    { return r.factory }
func (r *fakeRuntime) Segments() []Segment          { return r.segments }
func (r *fakeRuntime) AllocationContexts() map[address.Address]address.Address {
	return r.allocCtx
}
func (r *fakeRuntime) FinalizerRootSegments() []FinalizerQueueSegment   { return r.finRoots }
func (r *fakeRuntime) FinalizerObjectSegments() []FinalizerQueueSegment { return r.finObjects }

func (r *fakeRuntime) DependentHandles() iter.Seq2[address.Address, address.Address] {
	return func(yield func(address.Address, address.Address) bool) {
		for _, h := range r.depHandles {
			if !yield(h.Source, h.Target) {
				return
			}
		}
	}
}

func (r *fakeRuntime) StrongHandles() iter.Seq[address.Address] {
	return func(yield func(address.Address) bool) {
		for _, a := range r.strong {
			if !yield(a) {
				return
			}
		}
	}
}

func (r *fakeRuntime) StackRoots() iter.Seq[StackRoot] {
	return func(yield func(StackRoot) bool) {
		for _, sr := range r.stackRoots {
			if !yield(sr) {
				return
			}
		}
	}
}

func (r *fakeRuntime) IsServer() bool        { return r.isServer }
func (r *fakeRuntime) LogicalHeapCount() int { return r.logicalHeapCount }
func (r *fakeRuntime) CanWalkHeap() bool     { return r.canWalkHeap }
