package module

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
)

// fakeReader serves a single flat byte buffer starting at base, as if
// it were the bytes of a loaded PE image. Every DataReader method it
// doesn't need for these tests reports failure.
type fakeReader struct {
	base address.Address
	data []byte
}

func (f *fakeReader) index(a address.Address) (int, bool) {
	off := int64(a) - int64(f.base)
	if off < 0 || off >= int64(len(f.data)) {
		return 0, false
	}
	return int(off), true
}

func (f *fakeReader) PointerSize() int { return 8 }

func (f *fakeReader) ReadPointer(a address.Address) (uint64, bool) {
	i, ok := f.index(a)
	if !ok || i+8 > len(f.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(f.data[i : i+8]), true
}

func (f *fakeReader) ReadUint8(a address.Address) (uint8, bool) {
	i, ok := f.index(a)
	if !ok {
		return 0, false
	}
	return f.data[i], true
}

func (f *fakeReader) ReadUint32(a address.Address) (uint32, bool) {
	i, ok := f.index(a)
	if !ok || i+4 > len(f.data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(f.data[i : i+4]), true
}

func (f *fakeReader) ReadAt(buf []byte, a address.Address) (int, bool) {
	i, ok := f.index(a)
	if !ok {
		return 0, false
	}
	n := copy(buf, f.data[i:])
	return n, n == len(buf)
}

func (f *fakeReader) GetVersionInfo(address.Address) (target.VersionInfo, bool) {
	return target.VersionInfo{Major: 4, Minor: 8, Patch: 0, Revision: 1}, true
}

const (
	sectionOffset = 0x200
	debugDirSize  = 28
)

// buildSyntheticPE assembles a minimal PE32+ image byte-for-byte, with
// one section holding a single CodeView debug directory entry, and
// the CLR runtime header data directory populated so isManaged()
// reports true. The section's VirtualAddress is set equal to its file
// Offset, so RVAs and file offsets coincide and the same bytes satisfy
// both an is_virtual=true and an is_virtual=false Module.
func buildSyntheticPE(managed bool, pdbPath string) []byte {
	const totalSize = 640
	buf := make([]byte, totalSize)

	// FileHeader @ 0.
	binary.LittleEndian.PutUint16(buf[0:2], 0x8664) // IMAGE_FILE_MACHINE_AMD64
	binary.LittleEndian.PutUint16(buf[2:4], 1)       // NumberOfSections
	binary.LittleEndian.PutUint16(buf[16:18], 240)   // SizeOfOptionalHeader
	// TimeDateStamp, PointerToSymbolTable, NumberOfSymbols, Characteristics: zero.

	// OptionalHeader64 @ 20.
	const oh = 20
	binary.LittleEndian.PutUint16(buf[oh:oh+2], 0x20b)       // Magic: PE32+
	binary.LittleEndian.PutUint32(buf[oh+32:oh+36], 0x1000)  // SectionAlignment
	binary.LittleEndian.PutUint32(buf[oh+36:oh+40], 0x200)   // FileAlignment
	binary.LittleEndian.PutUint32(buf[oh+56:oh+60], 0x10000) // SizeOfImage
	binary.LittleEndian.PutUint16(buf[oh+68:oh+70], 3)    // Subsystem: CUI
	binary.LittleEndian.PutUint32(buf[oh+108:oh+112], 16) // NumberOfRvaAndSizes

	dataDir := oh + 112 // fixed part of OptionalHeader64 is 112 bytes.
	if managed {
		const clrIndex = 14
		binary.LittleEndian.PutUint32(buf[dataDir+clrIndex*8:dataDir+clrIndex*8+4], 0x1000)
		binary.LittleEndian.PutUint32(buf[dataDir+clrIndex*8+4:dataDir+clrIndex*8+8], 72)
	}

	debugEntryRVA := uint32(sectionOffset)
	if pdbPath != "" {
		const debugIndex = 6
		binary.LittleEndian.PutUint32(buf[dataDir+debugIndex*8:dataDir+debugIndex*8+4], debugEntryRVA)
		binary.LittleEndian.PutUint32(buf[dataDir+debugIndex*8+4:dataDir+debugIndex*8+8], debugDirSize)
	}

	// Section header @ 260.
	const sh = 260
	copy(buf[sh:sh+8], ".text\x00\x00\x00")
	binary.LittleEndian.PutUint32(buf[sh+8:sh+12], 128)            // VirtualSize
	binary.LittleEndian.PutUint32(buf[sh+12:sh+16], sectionOffset) // VirtualAddress == Offset
	binary.LittleEndian.PutUint32(buf[sh+16:sh+20], 128)           // SizeOfRawData
	binary.LittleEndian.PutUint32(buf[sh+20:sh+24], sectionOffset) // PointerToRawData

	if pdbPath != "" {
		// Debug directory entry @ sectionOffset.
		rsdsRVA := debugEntryRVA + debugDirSize
		binary.LittleEndian.PutUint32(buf[sectionOffset+12:sectionOffset+16], 2) // Type: CodeView
		rsds := buildRSDS(pdbPath)
		binary.LittleEndian.PutUint32(buf[sectionOffset+16:sectionOffset+20], uint32(len(rsds))) // SizeOfData
		binary.LittleEndian.PutUint32(buf[sectionOffset+20:sectionOffset+24], rsdsRVA)            // AddressOfRawData
		binary.LittleEndian.PutUint32(buf[sectionOffset+24:sectionOffset+28], rsdsRVA)            // PointerToRawData

		copy(buf[sectionOffset+debugDirSize:], rsds)
	}

	return buf
}

func buildRSDS(path string) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(0x53445352)) // "RSDS"
	out.Write(make([]byte, 16))                                 // GUID, zeroed for the test.
	binary.Write(&out, binary.LittleEndian, uint32(3))          // Age
	out.WriteString(path)
	out.WriteByte(0)
	return out.Bytes()
}

func TestGetPEImageParsesManagedModule(t *testing.T) {
	data := buildSyntheticPE(true, "clrmd.pdb")
	base := address.Address(0x140000000)
	reader := &fakeReader{base: base, data: data}

	m := New(reader, base, uint32(len(data)), 0, "clr.dll", true, nil)

	img, err := m.GetPEImage()
	require.NoError(t, err)
	defer img.Close()

	assert.True(t, m.IsManaged())
}

func TestGetPEImagePDBReference(t *testing.T) {
	data := buildSyntheticPE(true, "clrmd.pdb")
	base := address.Address(0x140000000)
	reader := &fakeReader{base: base, data: data}

	m := New(reader, base, uint32(len(data)), 0, "clr.dll", true, nil)

	ref, err := m.PDB()
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "clrmd.pdb", ref.Path)
	assert.EqualValues(t, 3, ref.Age)
}

func TestIsManagedFalseWithoutCLRHeader(t *testing.T) {
	data := buildSyntheticPE(false, "")
	base := address.Address(0x140000000)
	reader := &fakeReader{base: base, data: data}

	m := New(reader, base, uint32(len(data)), 0, "native.dll", true, nil)
	assert.False(t, m.IsManaged())
}

func TestPDBNilWithoutDebugDirectory(t *testing.T) {
	data := buildSyntheticPE(true, "")
	base := address.Address(0x140000000)
	reader := &fakeReader{base: base, data: data}

	m := New(reader, base, uint32(len(data)), 0, "clr.dll", true, nil)
	ref, err := m.PDB()
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestGetPEImageNonVirtualSameBytes(t *testing.T) {
	data := buildSyntheticPE(true, "clrmd.pdb")
	base := address.Address(0x140000000)
	reader := &fakeReader{base: base, data: data}

	// IsVirtual false exercises the section-table RVA translation path;
	// the section's VirtualAddress equals its Offset, so the result is
	// identical to the virtual=true case.
	m := New(reader, base, uint32(len(data)), 0, "clr.dll", false, nil)
	ref, err := m.PDB()
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "clrmd.pdb", ref.Path)
}

func TestVersionFromReader(t *testing.T) {
	reader := &fakeReader{base: 0, data: make([]byte, 8)}
	m := New(reader, 0, 8, 0, "clr.dll", true, nil)

	v, ok := m.Version()
	require.True(t, ok)
	assert.Equal(t, target.VersionInfo{Major: 4, Minor: 8, Patch: 0, Revision: 1}, v)
}

func TestVersionPresupplied(t *testing.T) {
	reader := &fakeReader{base: 0, data: make([]byte, 8)}
	m := New(reader, 0, 8, 0, "clr.dll", true, nil).WithVersion(target.VersionInfo{Major: 9})

	v, ok := m.Version()
	require.True(t, ok)
	assert.EqualValues(t, 9, v.Major)
}

func TestGetPEImageZeroIndexFileSize(t *testing.T) {
	reader := &fakeReader{base: 0, data: make([]byte, 8)}
	m := New(reader, 0, 0, 0, "clr.dll", true, nil)

	_, err := m.GetPEImage()
	assert.Error(t, err)
}
