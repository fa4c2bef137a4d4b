// Package pdbref implements just enough of Microsoft's PDB container
// format (§6) to answer one question: which symbol file does a module
// claim to have been built with. Full stream/TPI/DBI parsing is out of
// scope; callers that need symbols hand the Reference's Path/GUID/Age
// to an external symbol server.
package pdbref

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// msfMagic is the MSF 7.00 container signature, checked by ReadSuperBlock.
var msfMagic = []byte("Microsoft C/C++ MSF 7.00\r\n\x1aDS\x00\x00\x00")

// SuperBlock is the 52-byte fixed header at the start of every
// MSF-container PDB, plus the DirectoryRoot page-index array that
// follows it immediately on disk (§6). clrmd only ever inspects
// PageSize and DirectorySize (to sanity-check a PDB a caller has opened
// independently); it does not walk the stream directory DirectoryRoot
// points into.
type SuperBlock struct {
	Magic         [32]byte
	PageSize      uint32
	FreePageMap   uint32
	PagesUsed     uint32
	DirectorySize uint32
	Zero          uint32

	// DirectoryRoot holds the page indices of the blocks making up the
	// stream directory, read immediately following the fixed header.
	// Its length is ceil(ceil(DirectorySize/PageSize)*4/PageSize) (§6).
	DirectoryRoot []uint32
}

// SuperBlockFixedSize is the on-disk size of SuperBlock's fixed part,
// not counting the variable-length DirectoryRoot array that follows it.
const SuperBlockFixedSize = 52

// ReadSuperBlock reads and validates the MSF header, including its
// trailing DirectoryRoot array, from r.
func ReadSuperBlock(r io.Reader) (*SuperBlock, error) {
	var sb SuperBlock
	if _, err := io.ReadFull(r, sb.Magic[:]); err != nil {
		return nil, fmt.Errorf("pdbref: reading MSF magic: %w", err)
	}
	if !bytes.Equal(sb.Magic[:], msfMagic) {
		return nil, fmt.Errorf("pdbref: not an MSF container")
	}
	for _, field := range []*uint32{&sb.PageSize, &sb.FreePageMap, &sb.PagesUsed, &sb.DirectorySize, &sb.Zero} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("pdbref: reading MSF header: %w", err)
		}
	}
	if sb.PageSize == 0 {
		return nil, fmt.Errorf("pdbref: zero MSF page size")
	}

	n := sb.DirectoryRootLength()
	sb.DirectoryRoot = make([]uint32, n)
	for i := range sb.DirectoryRoot {
		if err := binary.Read(r, binary.LittleEndian, &sb.DirectoryRoot[i]); err != nil {
			return nil, fmt.Errorf("pdbref: reading directory_root[%d]: %w", i, err)
		}
	}
	return &sb, nil
}

// NumDirectoryBlocks returns how many pages the stream directory itself
// occupies: ceil(DirectorySize/PageSize).
func (sb *SuperBlock) NumDirectoryBlocks() uint32 {
	return (sb.DirectorySize + sb.PageSize - 1) / sb.PageSize
}

// DirectoryRootLength returns the number of 32-bit page indices the
// directory_root[] array holds: ceil(NumDirectoryBlocks()*4/PageSize),
// i.e. the number of pages needed to hold the directory's own page
// list (§6).
func (sb *SuperBlock) DirectoryRootLength() uint32 {
	bytesNeeded := sb.NumDirectoryBlocks() * 4
	return (bytesNeeded + sb.PageSize - 1) / sb.PageSize
}

// Reference identifies a PDB the way a PE image's debug directory
// does: a path a linker recorded at build time, plus the GUID/Age pair
// a symbol server uses to tell a rebuilt PDB from a stale one.
type Reference struct {
	Path string
	GUID [16]byte
	Age  uint32
}

const codeViewRSDSSignature = 0x53445352 // "RSDS" read as a little-endian uint32.

// ParseCodeViewRSDS decodes an RSDS CodeView record — the de facto
// standard debug-directory entry every modern PE linker emits — read
// from r starting at off, spanning size bytes.
func ParseCodeViewRSDS(r io.ReaderAt, off, size int64) (*Reference, error) {
	if size < 24 {
		return nil, fmt.Errorf("pdbref: CodeView record too short (%d bytes)", size)
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("pdbref: reading CodeView record: %w", err)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != codeViewRSDSSignature {
		return nil, fmt.Errorf("pdbref: unrecognized CodeView signature")
	}

	var ref Reference
	copy(ref.GUID[:], buf[4:20])
	ref.Age = binary.LittleEndian.Uint32(buf[20:24])

	name := buf[24:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	ref.Path = string(name)
	return &ref, nil
}
