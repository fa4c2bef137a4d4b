// Package targets implements concrete target.DataReader backends: an
// ELF core file and a live, ptrace-attached process. Neither backend
// is part of the heap-walking core; they exist so the core is runnable
// end to end without a caller having to write its own DataReader.
package targets

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"

	"github.com/rasmus-z/clrmd/address"
	"github.com/rasmus-z/clrmd/target"
)

// CloseFunc releases the resources a target opened: a core file handle,
// or a ptrace attachment.
type CloseFunc func() error

// region is one PT_LOAD segment's worth of readable bytes, padded with
// zeros between Filesz and Memsz exactly as the loader would leave an
// anonymous zero page.
type region struct {
	min, max address.Address
	data     []byte // len(data) == max-min
}

// CoreFile is a target.DataReader backed by an ELF core dump, grounded
// on the PT_LOAD walk in the teacher's core.Process.readCore/readLoad.
// Unlike the teacher, it loads segment contents eagerly into memory
// instead of mmap'ing the file, trading peak memory for a much smaller
// implementation — an acceptable trade for post-mortem analysis of the
// core sizes this package targets.
type CoreFile struct {
	ptrSize int
	regions []region // sorted by min, non-overlapping
}

// OpenCoreFile parses the ELF core dump at path and returns a reader
// over its PT_LOAD segments.
func OpenCoreFile(path string) (target.DataReader, CloseFunc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("targets: opening core file: %w", err)
	}
	cf, err := loadCoreFile(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return cf, f.Close, nil
}

func loadCoreFile(f *os.File) (*CoreFile, error) {
	e, err := elf.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("targets: parsing ELF core file: %w", err)
	}
	if e.Type != elf.ET_CORE {
		return nil, fmt.Errorf("targets: %s is not a core file", f.Name())
	}

	cf := &CoreFile{}
	switch e.Class {
	case elf.ELFCLASS32:
		cf.ptrSize = 4
	case elf.ELFCLASS64:
		cf.ptrSize = 8
	default:
		return nil, fmt.Errorf("targets: unknown ELF class %s", e.Class)
	}

	for _, prog := range e.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		min := address.Address(prog.Vaddr)
		max := min.Add(int64(prog.Memsz))
		if min == max {
			continue
		}
		data := make([]byte, prog.Memsz)
		if prog.Filesz > 0 {
			if _, err := f.ReadAt(data[:prog.Filesz], int64(prog.Off)); err != nil {
				return nil, fmt.Errorf("targets: reading PT_LOAD segment at %v: %w", min, err)
			}
		}
		cf.regions = append(cf.regions, region{min: min, max: max, data: data})
	}
	sort.Slice(cf.regions, func(i, j int) bool { return cf.regions[i].min < cf.regions[j].min })

	return cf, nil
}

func (cf *CoreFile) find(a address.Address) (*region, int64) {
	i := sort.Search(len(cf.regions), func(i int) bool { return cf.regions[i].max > a })
	if i >= len(cf.regions) || a < cf.regions[i].min {
		return nil, 0
	}
	r := &cf.regions[i]
	return r, int64(a) - int64(r.min)
}

func (cf *CoreFile) PointerSize() int { return cf.ptrSize }

func (cf *CoreFile) ReadAt(buf []byte, a address.Address) (int, bool) {
	total := 0
	for total < len(buf) {
		r, off := cf.find(a.Add(int64(total)))
		if r == nil {
			return total, false
		}
		n := copy(buf[total:], r.data[off:])
		total += n
		if n == 0 {
			return total, false
		}
	}
	return total, true
}

func (cf *CoreFile) ReadPointer(a address.Address) (uint64, bool) {
	return readUint(cf, a, cf.ptrSize)
}

func (cf *CoreFile) ReadUint8(a address.Address) (uint8, bool) {
	v, ok := readUint(cf, a, 1)
	return uint8(v), ok
}

func (cf *CoreFile) ReadUint32(a address.Address) (uint32, bool) {
	v, ok := readUint(cf, a, 4)
	return uint32(v), ok
}

// GetVersionInfo is unsupported for core files: ELF carries no PE
// resource section, so module.Module.Version reports no version (ok
// false) for a module read through a CoreFile unless one was
// pre-supplied with WithVersion.
func (cf *CoreFile) GetVersionInfo(address.Address) (target.VersionInfo, bool) {
	return target.VersionInfo{}, false
}

func readUint(r target.DataReader, a address.Address, n int) (uint64, bool) {
	buf := make([]byte, n)
	if m, ok := r.ReadAt(buf, a); !ok || m != n {
		return 0, false
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, true
}
