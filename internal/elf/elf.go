// Package elf implements just enough ELF32 parsing to locate sections and
// segments in a 32-bit MIPS executable, translate file offsets to virtual
// addresses, and read typed values out of untrusted byte spans with bounds
// checks.
package elf

import (
	"bytes"

	"mdebug.dev/ccc/internal/ccerr"
)

// Address is a MIPS virtual address.
type Address uint32

const (
	classELF32  = 1
	data2LSB    = 1
	machineMIPS = 8

	// MIPSDebug is the section type tag for a .mdebug section.
	MIPSDebug uint32 = 0x70000005
)

var magic = []byte{0x7f, 'E', 'L', 'F'}

// Section describes one ELF section header.
type Section struct {
	Name   string
	Type   uint32
	Flags  uint32
	Offset uint32
	Size   uint32
	Addr   Address
	// HasAddr is true exactly when SHF_ALLOC is set (the section is
	// memory-mapped), distinguishing "maps to address zero" (which does not
	// occur in practice) from "has no address".
	HasAddr bool
}

// Segment describes one ELF program header (a PT_LOAD segment, in
// practice — this module has no use for any other segment type).
type Segment struct {
	Offset uint32
	Size   uint32
	Addr   Address
}

// File is a parsed ELF32 image: the raw bytes plus the section and segment
// tables. A File never copies out of its backing buffer except when asked
// to via ReadVirtual/Get/Copy.
type File struct {
	raw      []byte
	Sections []Section
	Segments []Segment
}

// Parse validates and parses a 32-bit little-endian MIPS ELF image.
func Parse(raw []byte) (*File, error) {
	if len(raw) < 52 || !bytes.Equal(raw[:4], magic) {
		return nil, ccerr.New(ccerr.BadInput, "bad ELF magic")
	}
	if raw[4] != classELF32 {
		return nil, ccerr.New(ccerr.UnsupportedTarget, "not a 32-bit ELF")
	}
	if raw[5] != data2LSB {
		return nil, ccerr.New(ccerr.UnsupportedTarget, "not little-endian")
	}

	machine, ok := Get[uint16](raw, 18)
	if !ok {
		return nil, ccerr.New(ccerr.BadInput, "truncated ELF header")
	}
	if machine != machineMIPS {
		return nil, ccerr.New(ccerr.UnsupportedTarget, "not a MIPS ELF")
	}

	phoff, _ := Get[uint32](raw, 28)
	shoff, _ := Get[uint32](raw, 32)
	phentsize, _ := Get[uint16](raw, 42)
	phnum, _ := Get[uint16](raw, 44)
	shentsize, _ := Get[uint16](raw, 46)
	shnum, _ := Get[uint16](raw, 48)
	shstrndx, _ := Get[uint16](raw, 50)

	f := &File{raw: raw}

	for i := 0; i < int(phnum); i++ {
		base := int(phoff) + i*int(phentsize)
		off, ok1 := Get[uint32](raw, base+4)
		vaddr, ok2 := Get[uint32](raw, base+8)
		filesz, ok3 := Get[uint32](raw, base+16)
		if !ok1 || !ok2 || !ok3 {
			return nil, ccerr.New(ccerr.BadInput, "truncated program header")
		}
		f.Segments = append(f.Segments, Segment{Offset: off, Size: filesz, Addr: Address(vaddr)})
	}

	type rawSection struct {
		nameOff, typ, flags, addr, offset, size uint32
	}
	raws := make([]rawSection, shnum)
	for i := 0; i < int(shnum); i++ {
		base := int(shoff) + i*int(shentsize)
		var r rawSection
		var ok1, ok2, ok3, ok4, ok5, ok6 bool
		r.nameOff, ok1 = Get[uint32](raw, base)
		r.typ, ok2 = Get[uint32](raw, base+4)
		r.flags, ok3 = Get[uint32](raw, base+8)
		r.addr, ok4 = Get[uint32](raw, base+12)
		r.offset, ok5 = Get[uint32](raw, base+16)
		r.size, ok6 = Get[uint32](raw, base+20)
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
			return nil, ccerr.New(ccerr.BadInput, "truncated section header")
		}
		raws[i] = r
	}

	var strtab []byte
	if int(shstrndx) < len(raws) {
		r := raws[shstrndx]
		if int(r.offset+r.size) <= len(raw) {
			strtab = raw[r.offset : r.offset+r.size]
		}
	}

	for _, r := range raws {
		const shfAlloc = 0x2
		f.Sections = append(f.Sections, Section{
			Name:    cString(strtab, int(r.nameOff)),
			Type:    r.typ,
			Flags:   r.flags,
			Offset:  r.offset,
			Size:    r.size,
			Addr:    Address(r.addr),
			HasAddr: r.flags&shfAlloc != 0,
		})
	}

	return f, nil
}

func cString(strtab []byte, offset int) string {
	if offset < 0 || offset >= len(strtab) {
		return ""
	}
	end := offset
	for end < len(strtab) && strtab[end] != 0 {
		end++
	}
	return string(strtab[offset:end])
}

// Bytes returns the raw backing buffer for this image.
func (f *File) Bytes() []byte { return f.raw }

// Section looks up a section by exact name.
func (f *File) Section(name string) (*Section, bool) {
	for i := range f.Sections {
		if f.Sections[i].Name == name {
			return &f.Sections[i], true
		}
	}
	return nil, false
}

// FileOffsetToVirtualAddress translates a file offset to a virtual address
// by finding the segment that contains it; sections alone cannot do this
// for data that was only ever mapped via a program header.
func (f *File) FileOffsetToVirtualAddress(offset uint32) (Address, bool) {
	for _, s := range f.Segments {
		if offset >= s.Offset && offset < s.Offset+s.Size {
			return s.Addr + Address(offset-s.Offset), true
		}
	}
	for _, s := range f.Sections {
		if s.HasAddr && offset >= s.Offset && offset < s.Offset+s.Size {
			return s.Addr + Address(offset-s.Offset), true
		}
	}
	return 0, false
}

// ReadVirtual copies len(dest) bytes starting at va into dest, searching
// modules in order. A read fails unless every byte of [va, va+len(dest)) is
// mapped across the given modules' segments, splicing together as many
// contiguous chunks as necessary (a read is allowed to cross a segment or
// module boundary, as long as every byte in between is covered by some
// segment of some module); a read fails if any byte of the requested window
// is not mapped by anything.
func ReadVirtual(dest []byte, va Address, modules ...*File) error {
	addr := uint32(va)
	remaining := dest

	for len(remaining) > 0 {
		mapped := false

		for _, f := range modules {
			if f == nil {
				continue
			}
			for _, s := range f.Segments {
				if addr < s.Addr.val() || addr >= s.Addr.val()+s.Size {
					continue
				}
				rel := addr - s.Addr.val()
				chunk := s.Size - rel
				if chunk > uint32(len(remaining)) {
					chunk = uint32(len(remaining))
				}
				off := uint64(s.Offset) + uint64(rel)
				if off+uint64(chunk) > uint64(len(f.raw)) {
					continue
				}
				copy(remaining[:chunk], f.raw[off:off+uint64(chunk)])
				remaining = remaining[chunk:]
				addr += chunk
				mapped = true
				break
			}
			if mapped {
				break
			}
		}

		if !mapped {
			return ccerr.New(ccerr.OutOfBoundsMemory, "read_virtual")
		}
	}
	return nil
}

func (a Address) val() uint32 { return uint32(a) }
