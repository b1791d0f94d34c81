// Package registers maps DBX register numbers — the numeric register
// identifiers STABS variable-storage descriptors carry — to a MIPS
// register class and a within-class index.
package registers

import "strconv"

// Class is the MIPS register file a DBX number belongs to.
type Class int

const (
	GPR Class = iota
	FPR
	Unknown
)

func (c Class) String() string {
	switch c {
	case GPR:
		return "gpr"
	case FPR:
		return "fpr"
	default:
		return "unknown"
	}
}

// Location is the decoded form of a DBX register number: which register
// file it belongs to, and its index within that file.
type Location struct {
	Class Class
	Index int
}

// gprNames are the 32 general-purpose register DBX numbers, 0-31, in the
// conventional MIPS o32 calling-convention order.
var gprNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

// Lookup maps a DBX register number to its (class, relative-index). DBX
// numbers 0-31 are GPRs; 32-63 are FPRs (f0-f31); anything else is
// Unknown.
func Lookup(dbxNumber int) Location {
	switch {
	case dbxNumber >= 0 && dbxNumber < 32:
		return Location{Class: GPR, Index: dbxNumber}
	case dbxNumber >= 32 && dbxNumber < 64:
		return Location{Class: FPR, Index: dbxNumber - 32}
	default:
		return Location{Class: Unknown, Index: dbxNumber}
	}
}

// Name returns the conventional assembler name for a GPR location, "f<n>"
// for an FPR location, or "" for anything else.
func (l Location) Name() string {
	if l.Class == GPR && l.Index >= 0 && l.Index < len(gprNames) {
		return gprNames[l.Index]
	}
	if l.Class == FPR && l.Index >= 0 && l.Index < 32 {
		return "f" + strconv.Itoa(l.Index)
	}
	return ""
}
