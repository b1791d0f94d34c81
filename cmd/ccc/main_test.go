package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdebug.dev/ccc/internal/mdebug"
)

// buildMinimalMdebugImage constructs a full ELF32 MIPS image with a single
// ".mdebug" section describing one file, one procedure, and one local
// typedef symbol, following the same layout internal/mdebug's own tests
// build a raw .mdebug section and wrap it in a minimal ELF image.
func buildMinimalMdebugImage(t *testing.T) []byte {
	t.Helper()

	put32 := func(b []byte, off int, v uint32) {
		b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	put16 := func(b []byte, off int, v uint16) {
		b[off], b[off+1] = byte(v), byte(v>>8)
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
	strtab = append(strtab, []byte("v:t(0,1)=*1\x00")...)

	// Offsets stored in the section are file offsets; the section is placed
	// right after the 52-byte ELF header below.
	abs := func(off int) uint32 { return uint32(52 + off) }
	strtabOff := headerSize
	procOff := strtabOff + len(strtab)
	symOff := procOff + procRecordSize
	fileOff := symOff + symRecordSize

	mdebugBytes := make([]byte, fileOff+fileRecordSize)
	put32(mdebugBytes, 4, abs(procOff))
	put32(mdebugBytes, 8, 1)
	put32(mdebugBytes, 12, abs(symOff))
	put32(mdebugBytes, 20, abs(fileOff))
	put32(mdebugBytes, 24, 1)
	put32(mdebugBytes, 28, 0)
	put32(mdebugBytes, 32, 0)
	copy(mdebugBytes[strtabOff:], strtab)
	put32(mdebugBytes, procOff, abs(strtabOff+procNameOff))
	put32(mdebugBytes, procOff+4, 0x1000)
	put32(mdebugBytes, procOff+8, 0x40)
	put32(mdebugBytes, symOff, abs(strtabOff+symNameOff))
	put32(mdebugBytes, symOff+4, 0)
	mdebugBytes[symOff+8] = byte(mdebug.TYPEDEF)
	put32(mdebugBytes, fileOff, abs(strtabOff+fileNameOff))
	put32(mdebugBytes, fileOff+4, 0)
	put32(mdebugBytes, fileOff+8, 1)
	put32(mdebugBytes, fileOff+12, 0)
	put32(mdebugBytes, fileOff+16, 1)
	put32(mdebugBytes, fileOff+20, 0x1000)

	const ehsize = 52
	const shentsize = 40

	shstrtab := []byte{0}
	mdebugNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".mdebug\x00")...)
	shstrtabNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".shstrtab\x00")...)

	mdebugOffset := ehsize
	shstrtabOffset := mdebugOffset + len(mdebugBytes)
	shoff := shstrtabOffset + len(shstrtab)

	buf := make([]byte, shoff+3*shentsize)
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 1
	buf[5] = 1
	put16(buf, 18, 8) // EM_MIPS
	put32(buf, 28, 0) // e_phoff
	put32(buf, 32, uint32(shoff))
	put16(buf, 42, 32)
	put16(buf, 44, 0)
	put16(buf, 46, shentsize)
	put16(buf, 48, 3)
	put16(buf, 50, 2)

	copy(buf[mdebugOffset:], mdebugBytes)
	copy(buf[shstrtabOffset:], shstrtab)

	s1 := shoff + shentsize
	put32(buf, s1, uint32(mdebugNameOff))
	put32(buf, s1+4, 1)
	put32(buf, s1+16, uint32(mdebugOffset))
	put32(buf, s1+20, uint32(len(mdebugBytes)))

	s2 := shoff + 2*shentsize
	put32(buf, s2, uint32(shstrtabNameOff))
	put32(buf, s2+4, 3)
	put32(buf, s2+16, uint32(shstrtabOffset))
	put32(buf, s2+20, uint32(len(shstrtab)))

	return buf
}

func TestRunFilesPrintsSourceFilePaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.out")
	require.NoError(t, os.WriteFile(path, buildMinimalMdebugImage(t), 0o644))

	var out bytes.Buffer
	require.NoError(t, runFiles([]string{path}, &out))
	assert.Equal(t, "main.c\n", out.String())
}

func TestRunTypesPrintsEveryDataTypeName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.out")
	require.NoError(t, os.WriteFile(path, buildMinimalMdebugImage(t), 0o644))

	var out bytes.Buffer
	require.NoError(t, runTypes([]string{path}, &out))
	assert.NotEmpty(t, out.String())
}

func TestRunTypesRejectsMissingImageArgument(t *testing.T) {
	err := runTypes(nil, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunLoadSucceedsWithNoDemangler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.out")
	require.NoError(t, os.WriteFile(path, buildMinimalMdebugImage(t), 0o644))

	var out bytes.Buffer
	require.NoError(t, runLoad([]string{path}, &out))
}
