package elf

// Unsigned is the set of integer widths the unaligned readers below support.
// ELF32 headers never carry floating point fields, so this constraint is
// intentionally narrower than a general-purpose "any scalar" helper would
// be; float decoding belongs to internal/refine, which reads IEEE-754
// globals out of program data, not structure headers.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int8 | ~int16 | ~int32 | ~int64
}

// Get performs an unaligned, bounds-checked little-endian read of a T out
// of data at offset, returning ok=false instead of panicking if any byte of
// the read falls outside data.
func Get[T Unsigned](data []byte, offset int) (value T, ok bool) {
	size := sizeOf[T]()
	if offset < 0 || size < 0 || offset+size > len(data) {
		return 0, false
	}

	var bits uint64
	for i := size - 1; i >= 0; i-- {
		bits = bits<<8 | uint64(data[offset+i])
	}
	return T(bits), true
}

// Copy is Get, but panics instead of returning ok=false. Used where the
// caller has already range-checked the offset by construction (e.g.
// iterating offset in range) and a failure would indicate a bug in this
// module, not bad input.
func Copy[T Unsigned](data []byte, offset int) T {
	v, ok := Get[T](data, offset)
	if !ok {
		panic("ccc/internal/elf: Copy read out of bounds")
	}
	return v
}

func sizeOf[T Unsigned]() int {
	var zero T
	switch any(zero).(type) {
	case uint8, int8:
		return 1
	case uint16, int16:
		return 2
	case uint32, int32:
		return 4
	case uint64, int64:
		return 8
	default:
		return -1
	}
}
