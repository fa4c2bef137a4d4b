// Package module implements the per-module snapshot (C8, spec.md §3,
// §4.8): the immutable base/size/timestamp/file-name/virtual quintuple
// (plus optional build-ID) a data target publishes when it enumerates
// loaded images, plus the lazily
// computed version, managed-ness, and PDB reference.
package module

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/pdbref"
	"github.com/rasmus-z/clrmd/target"
)

// Module is one loaded image in the target process.
type Module struct {
	Base           address.Address
	IndexFileSize  uint32 // PE SizeOfImage, used for symbol-server lookup.
	IndexTimestamp uint32
	FileName       string
	IsVirtual      bool   // image laid out as-in-memory vs as-on-disk.
	BuildID        []byte // optional, Linux ELF build-ID.

	reader target.DataReader

	versionOnce sync.Once
	version     target.VersionInfo
	versionOK   bool

	managedOnce sync.Once
	isManaged   bool
	managedOK   bool

	// presuppliedVersion, when non-nil, short-circuits Version()
	// entirely: some data targets already know the version (e.g. from
	// a companion symbol file) and should not pay for a reader round
	// trip.
	presuppliedVersion *target.VersionInfo
}

// New constructs a module descriptor with its immutable fields. reader
// is used lazily by GetPEImage/Version and is not touched here.
func New(reader target.DataReader, base address.Address, indexFileSize, indexTimestamp uint32, fileName string, isVirtual bool, buildID []byte) *Module {
	return &Module{
		Base:           base,
		IndexFileSize:  indexFileSize,
		IndexTimestamp: indexTimestamp,
		FileName:       fileName,
		IsVirtual:      isVirtual,
		BuildID:        buildID,
		reader:         reader,
	}
}

// WithVersion pre-supplies the version quadruple, e.g. when the data
// target already extracted it from a companion file. Version() will
// never consult the reader for a module built this way.
func (m *Module) WithVersion(v target.VersionInfo) *Module {
	m.presuppliedVersion = &v
	return m
}

// GetPEImage constructs a PE image view over the module by wrapping a
// windowed reader over [Base, Base+IndexFileSize) (spec.md §4.8). On
// any failure it returns a nil image and a non-nil error; callers must
// close the returned image on every exit path.
func (m *Module) GetPEImage() (*Image, error) {
	img, err := m.openPEImage()
	if err != nil {
		return nil, err
	}

	m.managedOnce.Do(func() {
		m.isManaged = img.isManaged()
		m.managedOK = true
	})

	return img, nil
}

// openPEImage parses the PE image without touching managedOnce, so
// IsManaged can call it from inside that latch.
func (m *Module) openPEImage() (*Image, error) {
	if m.IndexFileSize == 0 {
		return nil, errors.New("module: zero index file size")
	}
	win := &target.Window{Reader: m.reader, Base: m.Base, Size: int64(m.IndexFileSize), Virtual: m.IsVirtual}
	f, err := pe.NewFile(win)
	if err != nil {
		return nil, fmt.Errorf("module: parsing PE image at %v: %w", m.Base, err)
	}
	return &Image{file: f, win: win, virtual: m.IsVirtual}, nil
}

// IsManaged reports whether the module is a managed (CLR) image,
// latching the result on first computation (spec.md §4.8).
func (m *Module) IsManaged() bool {
	m.managedOnce.Do(func() {
		img, err := m.openPEImage()
		if err != nil {
			return
		}
		defer img.Close()
		m.isManaged = img.isManaged()
		m.managedOK = true
	})
	return m.managedOK && m.isManaged
}

// PDB returns the default PDB reference published by the module's PE
// image, or nil if no image is available (spec.md §4.8).
func (m *Module) PDB() (*pdbref.Reference, error) {
	img, err := m.GetPEImage()
	if err != nil {
		return nil, nil //nolint: nilerr // "no image" is not an error for PDB(): it just means no reference.
	}
	defer img.Close()
	return img.DefaultPDB()
}

// Version returns the module's four-part file version, asking the
// reader for it at Base and latching the result if it was not
// pre-supplied (spec.md §4.8).
func (m *Module) Version() (target.VersionInfo, bool) {
	if m.presuppliedVersion != nil {
		return *m.presuppliedVersion, true
	}
	m.versionOnce.Do(func() {
		m.version, m.versionOK = m.reader.GetVersionInfo(m.Base)
	})
	return m.version, m.versionOK
}

// Image wraps a parsed PE file together with the windowed reader it
// was parsed from, so a caller can resolve RVAs the same way the
// image itself was read.
type Image struct {
	file    *pe.File
	win     *target.Window
	virtual bool
}

// Close releases resources associated with the image. PE images parsed
// from a DataReader hold no OS handles, but Close is kept so callers
// that scope image lifetime to defer img.Close() work unchanged if a
// future DataReader implementation needs to release something.
func (img *Image) Close() error { return nil }

// File returns the parsed PE file.
func (img *Image) File() *pe.File { return img.file }

func (img *Image) isManaged() bool {
	dir, ok := img.dataDirectory(clrRuntimeHeaderIndex)
	return ok && dir.VirtualAddress != 0 && dir.Size != 0
}

const (
	clrRuntimeHeaderIndex  = 14
	debugDirectoryIndex    = 6
	imageDebugTypeCodeView = 2
)

func (img *Image) dataDirectory(i int) (pe.DataDirectory, bool) {
	switch oh := img.file.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if i >= len(oh.DataDirectory) {
			return pe.DataDirectory{}, false
		}
		return oh.DataDirectory[i], true
	case *pe.OptionalHeader64:
		if i >= len(oh.DataDirectory) {
			return pe.DataDirectory{}, false
		}
		return oh.DataDirectory[i], true
	}
	return pe.DataDirectory{}, false
}

// rvaOffset resolves a relative virtual address to an offset within
// img.win, following spec.md §6's is_virtual rule: when the image is
// laid out as-in-memory, an RVA is already the offset from Base; when
// it is laid out as-on-disk, the RVA must be translated through the
// section table to a file offset.
func (img *Image) rvaOffset(rva uint32) (int64, bool) {
	if img.virtual {
		return int64(rva), true
	}
	for _, s := range img.file.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			return int64(s.Offset) + int64(rva-s.VirtualAddress), true
		}
	}
	return 0, false
}

// DefaultPDB locates the CodeView (RSDS) debug directory entry and
// decodes the PDB reference it publishes (spec.md §4.8, §6).
func (img *Image) DefaultPDB() (*pdbref.Reference, error) {
	dir, ok := img.dataDirectory(debugDirectoryIndex)
	if !ok || dir.Size == 0 {
		return nil, nil
	}
	off, ok := img.rvaOffset(dir.VirtualAddress)
	if !ok {
		return nil, errors.New("module: debug directory RVA does not resolve to any section")
	}

	const entrySize = 28
	n := int(dir.Size) / entrySize
	buf := make([]byte, entrySize)
	for i := 0; i < n; i++ {
		if _, err := img.win.ReadAt(buf, off+int64(i*entrySize)); err != nil {
			return nil, fmt.Errorf("module: reading debug directory entry %d: %w", i, err)
		}
		typ := binary.LittleEndian.Uint32(buf[12:16])
		if typ != imageDebugTypeCodeView {
			continue
		}
		size := binary.LittleEndian.Uint32(buf[16:20])
		addrOfRawData := binary.LittleEndian.Uint32(buf[20:24])
		recordOff, ok := img.rvaOffset(addrOfRawData)
		if !ok {
			continue
		}
		return pdbref.ParseCodeViewRSDS(img.win, recordOff, int64(size))
	}
	return nil, nil
}
