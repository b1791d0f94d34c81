package elf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mdebug.dev/ccc/internal/elf"
)

func TestDecodeGNULinkOnce(t *testing.T) {
	t.Parallel()

	bss, ok := elf.DecodeGNULinkOnce(".gnu.linkonce.b.MyBSSGlobal")
	assert.True(t, ok)
	assert.Equal(t, elf.LinkOnce{Location: elf.BSS, Symbol: "MyBSSGlobal"}, bss)

	text, ok := elf.DecodeGNULinkOnce(".gnu.linkonce.t.MyFunction")
	assert.True(t, ok)
	assert.Equal(t, elf.LinkOnce{Location: elf.NIL, IsText: true, Symbol: "MyFunction"}, text)

	_, ok = elf.DecodeGNULinkOnce(".gnu.linkonce.a.Hello")
	assert.False(t, ok)

	_, ok = elf.DecodeGNULinkOnce("not.a.linkonce.section")
	assert.False(t, ok)
}

func TestGetBoundsChecked(t *testing.T) {
	t.Parallel()

	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	v, ok := elf.Get[uint32](data, 0)
	assert.True(t, ok)
	assert.Equal(t, uint32(0x04030201), v)

	_, ok = elf.Get[uint32](data, 2)
	assert.False(t, ok, "read would run past the end of data")

	_, ok = elf.Get[uint16](data, -1)
	assert.False(t, ok)
}

func TestParseRejectsBadMagic(t *testing.T) {
	t.Parallel()

	_, err := elf.Parse([]byte("not an elf file"))
	assert.Error(t, err)
}

// buildMinimalELF constructs a tiny valid 32-bit MIPS ELF with one PT_LOAD
// segment and one named section, entirely in memory, so tests don't need a
// testdata binary checked in.
func buildMinimalELF(t *testing.T) []byte {
	t.Helper()

	const (
		ehsize    = 52
		phentsize = 32
		shentsize = 40
	)

	shstrtab := []byte{0}
	textNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".text\x00")...)
	shstrtabNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".shstrtab\x00")...)

	phoff := ehsize
	textData := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	textOffset := phoff + phentsize
	shstrtabOffset := textOffset + len(textData)
	shoff := shstrtabOffset + len(shstrtab)

	buf := make([]byte, shoff+3*shentsize)

	put32 := func(off int, v uint32) {
		buf[off], buf[off+1], buf[off+2], buf[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	put16 := func(off int, v uint16) {
		buf[off], buf[off+1] = byte(v), byte(v>>8)
	}

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	put16(18, 8) // EM_MIPS
	put32(28, uint32(phoff))
	put32(32, uint32(shoff))
	put16(42, phentsize)
	put16(44, 1)
	put16(46, shentsize)
	put16(48, 3)
	put16(50, 2) // shstrndx

	// One PT_LOAD segment: file [textOffset, +4) -> vaddr 0x1000.
	put32(phoff+4, uint32(textOffset))
	put32(phoff+8, 0x1000)
	put32(phoff+16, uint32(len(textData)))

	copy(buf[textOffset:], textData)
	copy(buf[shstrtabOffset:], shstrtab)

	// Section 0: SHT_NULL.
	// Section 1: .text
	s1 := shoff + shentsize
	put32(s1, uint32(textNameOff))
	put32(s1+4, 1) // SHT_PROGBITS
	put32(s1+8, 0x2) // SHF_ALLOC
	put32(s1+12, 0x1000)
	put32(s1+16, uint32(textOffset))
	put32(s1+20, uint32(len(textData)))
	// Section 2: .shstrtab
	s2 := shoff + 2*shentsize
	put32(s2, uint32(shstrtabNameOff))
	put32(s2+4, 3) // SHT_STRTAB
	put32(s2+16, uint32(shstrtabOffset))
	put32(s2+20, uint32(len(shstrtab)))

	return buf
}

func TestParseAndReadVirtual(t *testing.T) {
	t.Parallel()

	raw := buildMinimalELF(t)
	f, err := elf.Parse(raw)
	assert.NoError(t, err)

	sec, ok := f.Section(".text")
	assert.True(t, ok)
	assert.Equal(t, elf.Address(0x1000), sec.Addr)

	va, ok := f.FileOffsetToVirtualAddress(sec.Offset)
	assert.True(t, ok)
	assert.Equal(t, elf.Address(0x1000), va)

	var dest [4]byte
	assert.NoError(t, elf.ReadVirtual(dest[:], 0x1000, f))
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, dest[:])

	assert.Error(t, elf.ReadVirtual(dest[:], 0x9999, f))
}
