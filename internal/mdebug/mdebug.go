// Package mdebug parses the MIPS-specific ".mdebug" ELF section: a fixed
// header followed by the procedure-descriptor, local-symbol, file-
// descriptor, and external-symbol tables. This sits between the Binary
// Reader and the STABS parser: it produces the per-file symbol streams the
// STABS parser consumes, but does not itself interpret any STABS string.
//
// The real SGI "symbolic header" this is modeled on is a packed C struct
// whose exact field layout the retrieved reference sources for this project
// didn't carry (see DESIGN.md). The layout below is this module's own
// fixed-size rendition of the four-table structure, not a byte-exact
// reproduction of the original toolchain's header.
package mdebug

import (
	"mdebug.dev/ccc/internal/ccerr"
	"mdebug.dev/ccc/internal/elf"
)

// SymbolType is the type byte carried by every local and external symbol,
// matching the SymbolType enum consumed by the original toolchain's STABS
// reader.
type SymbolType uint8

const (
	NIL SymbolType = iota
	GLOBAL
	STATIC
	PARAM
	LOCAL
	LABEL
	PROC
	BLOCK
	END
	MEMBER
	TYPEDEF
	FILE
	_ // 12: reserved, unused by the original toolchain
	_ // 13: reserved, unused by the original toolchain
	STATICPROC
	CONSTANT
)

// Symbol is one local or external symbol: a STABS string, a value, and a
// type tag.
type Symbol struct {
	Type  SymbolType
	Value uint32
	Str   string
}

// ProcedureDescriptor is one entry of the procedure-descriptor table,
// bounding the address range of a single function's generated code.
type ProcedureDescriptor struct {
	Name    string
	Address elf.Address
	Size    uint32
}

// FileDescriptor is one compilation unit: its name, its base text address,
// and the slice of the procedure- and local-symbol tables that belong to
// it.
type FileDescriptor struct {
	Name        string
	TextAddress elf.Address
	Procedures  []ProcedureDescriptor
	Symbols     []Symbol
}

// Table is the fully parsed contents of a .mdebug section.
type Table struct {
	Files    []FileDescriptor
	External []Symbol
}

const headerSize = 36

// Parse locates and parses the .mdebug section of f. Both a named
// ".mdebug" section and one tagged with the MIPS_DEBUG section type are
// accepted, since some toolchains only set one of the two.
func Parse(f *elf.File) (*Table, error) {
	sec, ok := f.Section(".mdebug")
	if !ok {
		for i := range f.Sections {
			if f.Sections[i].Type == elf.MIPSDebug {
				sec = &f.Sections[i]
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, ccerr.New(ccerr.BadInput, "no .mdebug section")
	}

	raw := f.Bytes()
	base := int(sec.Offset)
	if base+headerSize > len(raw) {
		return nil, ccerr.New(ccerr.BadInput, "truncated mdebug header")
	}

	procOff := must32(raw, base+4)
	procCount := must32(raw, base+8)
	localSymOff := must32(raw, base+12)
	fileOff := must32(raw, base+20)
	fileCount := must32(raw, base+24)
	extOff := must32(raw, base+28)
	extCount := must32(raw, base+32)

	procs, err := parseSymbolFreeProcedures(raw, int(procOff), int(procCount))
	if err != nil {
		return nil, err
	}

	files, err := parseFiles(raw, int(fileOff), int(fileCount), int(localSymOff), procs)
	if err != nil {
		return nil, err
	}

	ext, err := parseSymbols(raw, int(extOff), int(extCount))
	if err != nil {
		return nil, err
	}

	return &Table{Files: files, External: ext}, nil
}

const procRecordSize = 12

func parseSymbolFreeProcedures(raw []byte, off, count int) ([]ProcedureDescriptor, error) {
	out := make([]ProcedureDescriptor, 0, count)
	for i := 0; i < count; i++ {
		rec := off + i*procRecordSize
		nameOff, ok1 := elf.Get[uint32](raw, rec)
		addr, ok2 := elf.Get[uint32](raw, rec+4)
		size, ok3 := elf.Get[uint32](raw, rec+8)
		if !ok1 || !ok2 || !ok3 {
			return nil, ccerr.New(ccerr.BadInput, "truncated procedure descriptor table")
		}
		out = append(out, ProcedureDescriptor{
			Name:    cString(raw, int(nameOff)),
			Address: elf.Address(addr),
			Size:    size,
		})
	}
	return out, nil
}

const symRecordSize = 12
const fileRecordSize = 24

func parseFiles(raw []byte, off, count, localSymOff int, procs []ProcedureDescriptor) ([]FileDescriptor, error) {
	out := make([]FileDescriptor, 0, count)
	for i := 0; i < count; i++ {
		rec := off + i*fileRecordSize
		nameOff, ok1 := elf.Get[uint32](raw, rec)
		procIndex, ok2 := elf.Get[uint32](raw, rec+4)
		procCount, ok3 := elf.Get[uint32](raw, rec+8)
		symIndex, ok4 := elf.Get[uint32](raw, rec+12)
		symCount, ok5 := elf.Get[uint32](raw, rec+16)
		textAddr, ok6 := elf.Get[uint32](raw, rec+20)
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
			return nil, ccerr.New(ccerr.BadInput, "truncated file descriptor table")
		}
		if int(procIndex+procCount) > len(procs) {
			return nil, ccerr.New(ccerr.BadInput, "file descriptor procedure range out of bounds")
		}

		symbols, err := parseSymbols(raw, localSymOff+int(symIndex)*symRecordSize, int(symCount))
		if err != nil {
			return nil, err
		}

		out = append(out, FileDescriptor{
			Name:        cString(raw, int(nameOff)),
			TextAddress: elf.Address(textAddr),
			Procedures:  procs[procIndex : procIndex+procCount],
			Symbols:     symbols,
		})
	}
	return out, nil
}

func parseSymbols(raw []byte, off, count int) ([]Symbol, error) {
	out := make([]Symbol, 0, count)
	for i := 0; i < count; i++ {
		rec := off + i*symRecordSize
		strOff, ok1 := elf.Get[uint32](raw, rec)
		value, ok2 := elf.Get[uint32](raw, rec+4)
		typ, ok3 := elf.Get[uint8](raw, rec+8)
		if !ok1 || !ok2 || !ok3 {
			return nil, ccerr.New(ccerr.BadInput, "truncated symbol table")
		}
		out = append(out, Symbol{
			Type:  SymbolType(typ),
			Value: value,
			Str:   cString(raw, int(strOff)),
		})
	}
	return out, nil
}

func cString(raw []byte, offset int) string {
	if offset < 0 || offset >= len(raw) {
		return ""
	}
	end := offset
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return string(raw[offset:end])
}

func must32(raw []byte, off int) uint32 {
	v, _ := elf.Get[uint32](raw, off)
	return v
}
