package typeinfo

import (
	"testing"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
)

type fakeReader struct {
	ptrSize int
	mem     map[address.Address]uint64
}

func (f *fakeReader) PointerSize() int { return f.ptrSize }

func (f *fakeReader) ReadPointer(a address.Address) (uint64, bool) {
	v, ok := f.mem[a]
	return v, ok
}

func (f *fakeReader) ReadUint8(address.Address) (uint8, bool)   { return 0, false }
func (f *fakeReader) ReadUint32(address.Address) (uint32, bool) { return 0, false }
func (f *fakeReader) ReadAt([]byte, address.Address) (int, bool) { return 0, false }
func (f *fakeReader) GetVersionInfo(address.Address) (target.VersionInfo, bool) {
	return target.VersionInfo{}, false
}

func TestGCDescFixedSeries(t *testing.T) {
	r := &fakeReader{ptrSize: 8, mem: map[address.Address]uint64{
		0x1000: 0xAAAA,
		0x1008: 0xBBBB,
	}}
	d := &GCDesc{Fixed: []Series{{Offset: 0, PointerCount: 2}}}
	var got []address.Address
	for a, off := range d.Walk(0x1000, 16, 8, r) {
		got = append(got, a)
		_ = off
	}
	if len(got) != 2 || got[0] != 0xAAAA || got[1] != 0xBBBB {
		t.Fatalf("unexpected walk result: %v", got)
	}
}

func TestGCDescRepeatingStride(t *testing.T) {
	// Array of 3 elements, each 16 bytes, with a single pointer at
	// offset 0 within each element.
	r := &fakeReader{ptrSize: 8, mem: map[address.Address]uint64{
		0x2000: 1,
		0x2010: 2,
		0x2020: 3,
	}}
	d := &GCDesc{Repeat: &RepeatSeries{Start: 0, Stride: 16, PointerOffsets: []int64{0}}}
	var got []address.Address
	for a := range d.Walk(0x2000, 48, 8, r) {
		got = append(got, a)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 references, got %d", len(got))
	}
}

func TestGCDescStopsEarly(t *testing.T) {
	r := &fakeReader{ptrSize: 8, mem: map[address.Address]uint64{
		0x1000: 1,
		0x1008: 2,
	}}
	d := &GCDesc{Fixed: []Series{{Offset: 0, PointerCount: 2}}}
	n := 0
	for range d.Walk(0x1000, 16, 8, r) {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected early stop after 1 item, got %d", n)
	}
}
