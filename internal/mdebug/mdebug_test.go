package mdebug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdebug.dev/ccc/internal/elf"
	"mdebug.dev/ccc/internal/mdebug"
)

// buildMinimalMdebug constructs a raw .mdebug section by hand: one
// procedure, one file descriptor owning that procedure and one local
// symbol, no external symbols.
func buildMinimalMdebug(t *testing.T) (sectionOffset uint32, raw []byte) {
	t.Helper()

	put32 := func(b []byte, off int, v uint32) {
		b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}

	const headerSize = 36
	const procRecordSize = 12
	const symRecordSize = 12
	const fileRecordSize = 24

	strtab := []byte{0}
	procNameOff := len(strtab)
	strtab = append(strtab, []byte("main\x00")...)
	fileNameOff := len(strtab)
	strtab = append(strtab, []byte("main.c\x00")...)
	symNameOff := len(strtab)
	strtab = append(strtab, []byte(":tv(0,1)=*1\x00")...)

	// Offsets stored in the section are file offsets, so every one written
	// below is rebased onto where wrapAsMdebugSection places the section:
	// right after the 52-byte ELF header.
	sectionOffset = 52
	abs := func(off int) uint32 { return sectionOffset + uint32(off) }
	strtabOff := headerSize
	procOff := strtabOff + len(strtab)
	symOff := procOff + procRecordSize
	fileOff := symOff + symRecordSize

	buf := make([]byte, fileOff+fileRecordSize)

	put32(buf, 4, abs(procOff))
	put32(buf, 8, 1) // procCount
	put32(buf, 12, abs(symOff))
	put32(buf, 20, abs(fileOff))
	put32(buf, 24, 1) // fileCount
	put32(buf, 28, 0) // extOff
	put32(buf, 32, 0) // extCount

	copy(buf[strtabOff:], strtab)

	put32(buf, procOff, abs(strtabOff+procNameOff))
	put32(buf, procOff+4, 0x1000)
	put32(buf, procOff+8, 0x40)

	put32(buf, symOff, abs(strtabOff+symNameOff))
	put32(buf, symOff+4, 0)
	buf[symOff+8] = byte(mdebug.TYPEDEF)

	put32(buf, fileOff, abs(strtabOff+fileNameOff))
	put32(buf, fileOff+4, 0) // procIndex
	put32(buf, fileOff+8, 1) // procCount
	put32(buf, fileOff+12, 0) // symIndex
	put32(buf, fileOff+16, 1) // symCount
	put32(buf, fileOff+20, 0x1000) // text address

	return sectionOffset, buf
}

func TestParse(t *testing.T) {
	t.Parallel()

	_, mdebugBytes := buildMinimalMdebug(t)

	raw := wrapAsMdebugSection(mdebugBytes)
	f, err := elf.Parse(raw)
	require.NoError(t, err)

	table, err := mdebug.Parse(f)
	require.NoError(t, err)
	require.Len(t, table.Files, 1)

	fd := table.Files[0]
	assert.Equal(t, "main.c", fd.Name)
	assert.Equal(t, elf.Address(0x1000), fd.TextAddress)
	require.Len(t, fd.Procedures, 1)
	assert.Equal(t, "main", fd.Procedures[0].Name)
	assert.Equal(t, uint32(0x40), fd.Procedures[0].Size)
	require.Len(t, fd.Symbols, 1)
	assert.Equal(t, mdebug.TYPEDEF, fd.Symbols[0].Type)
	assert.Equal(t, ":tv(0,1)=*1", fd.Symbols[0].Str)
}

// wrapAsMdebugSection builds a minimal valid ELF32 MIPS image with a single
// ".mdebug" section containing sectionData.
func wrapAsMdebugSection(sectionData []byte) []byte {
	const (
		ehsize    = 52
		shentsize = 40
	)

	shstrtab := []byte{0}
	mdebugNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".mdebug\x00")...)
	shstrtabNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".shstrtab\x00")...)

	mdebugOffset := ehsize
	shstrtabOffset := mdebugOffset + len(sectionData)
	shoff := shstrtabOffset + len(shstrtab)

	buf := make([]byte, shoff+3*shentsize)

	put32 := func(off int, v uint32) {
		buf[off], buf[off+1], buf[off+2], buf[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	put16 := func(off int, v uint16) {
		buf[off], buf[off+1] = byte(v), byte(v>>8)
	}

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 1
	buf[5] = 1
	put16(18, 8)
	put32(28, 0) // phoff (no segments)
	put32(32, uint32(shoff))
	put16(42, 32)
	put16(44, 0)
	put16(46, shentsize)
	put16(48, 3)
	put16(50, 2)

	copy(buf[mdebugOffset:], sectionData)
	copy(buf[shstrtabOffset:], shstrtab)

	s1 := shoff + shentsize
	put32(s1, uint32(mdebugNameOff))
	put32(s1+4, 1)
	put32(s1+16, uint32(mdebugOffset))
	put32(s1+20, uint32(len(sectionData)))

	s2 := shoff + 2*shentsize
	put32(s2, uint32(shstrtabNameOff))
	put32(s2+4, 3)
	put32(s2+16, uint32(shstrtabOffset))
	put32(s2+20, uint32(len(shstrtab)))

	return buf
}
