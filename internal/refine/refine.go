// Package refine walks a global (or static local) variable's resolved type
// against a program image's virtual-memory contents and materializes its
// initial value as a tree of formatted scalars and composites, grounded on
// the original chaoticgd/ccc data-refinement pass (original_source/ccc/
// data_refinement.cpp).
package refine

import (
	"math"
	"strconv"
	"strings"

	"mdebug.dev/ccc/internal/ast"
	"mdebug.dev/ccc/internal/config"
	"mdebug.dev/ccc/internal/elf"
	"mdebug.dev/ccc/internal/table"
	"mdebug.dev/ccc/internal/xdebug"
)

// context is the read-only state threaded through one refinement run: where
// every known function/global lives in memory, the canonical type list
// TypeName placeholders resolve against, the program images to read bytes
// from, the configured string-literal clamp, and a cycle guard.
//
// processing is scoped to this one Run call and keyed by canonical node
// identity, not by a shared field on the node itself — Common deliberately
// carries no is_currently_processing field, since the published AST may be
// walked by many concurrent Symbol Database readers (see ast.Common's doc
// comment); refinement's own walk is single-threaded, so a plain map local
// to this call is sufficient and avoids the goroutine-local machinery
// internal/dedup needs for its own (also potentially-concurrent) walk.
type context struct {
	addressToNode table.Table[ast.Node]
	files         []*ast.SourceFile
	types         []ast.Node
	modules       []*elf.File
	clamp         int
	processing    map[ast.Node]bool
}

// Run refines every global variable and every static local variable across
// files: for each whose storage names a fixed address in a non-BSS/SBSS
// section, it walks the variable's type against modules' program data and
// stores the result on Variable.Data. cfg may be nil, in which case the
// default string-literal clamp applies.
func Run(files []*ast.SourceFile, types []ast.Node, cfg *config.Session, modules ...*elf.File) {
	// Globals are appended before functions so that on the pathological
	// case of a collision (a global and a function sharing one address)
	// the global wins the lookup, matching the global's higher-priority
	// entry a last-write-wins map would have produced.
	var entries []table.Entry[ast.Node]
	for _, f := range files {
		for _, g := range f.Globals {
			if gl, ok := g.Storage.(ast.Global); ok {
				entries = append(entries, table.Entry[ast.Node]{Key: int32(gl.Address), Value: g})
			}
		}
	}
	for _, f := range files {
		for _, fn := range f.Functions {
			entries = append(entries, table.Entry[ast.Node]{Key: int32(fn.AddressLow), Value: fn})
		}
	}

	ctx := &context{
		addressToNode: table.New(entries),
		files:         files,
		types:         types,
		modules:       modules,
		clamp:         cfg.Clamp(),
		processing:    make(map[ast.Node]bool),
	}

	for _, f := range files {
		for _, g := range f.Globals {
			refineVariable(g, ctx)
		}
		for _, fn := range f.Functions {
			for _, l := range fn.Locals {
				if v, ok := l.(*ast.Variable); ok {
					refineVariable(v, ctx)
				}
			}
		}
	}
}

// refineVariable implements the original's refine_variable gate: only a
// Global-storage variable with a known address outside BSS/SBSS (which is
// always zero-initialized, so refining it would just read zeros) gets a
// materialized value.
func refineVariable(v *ast.Variable, ctx *context) {
	g, ok := v.Storage.(ast.Global)
	if !ok {
		return
	}
	switch strings.ToLower(g.Section) {
	case "bss", "sbss":
		return
	}
	v.Data = refineNode(g.Address, v.Type, ctx)
}

// refineNode is the per-type-kind dispatch mirroring the original's
// refine_node switch over ast::NodeDescriptor.
func refineNode(addr uint32, t ast.Node, ctx *context) *ast.Initializer {
	switch n := t.(type) {
	case *ast.Array:
		return refineArray(addr, n, ctx)
	case *ast.Bitfield:
		// Never materialized: a sub-byte field can't be read as a
		// standalone scalar the way a full field can.
		return &ast.Initializer{Scalar: "CCC_BITFIELD"}
	case *ast.Builtin:
		return &ast.Initializer{Scalar: refineBuiltin(addr, n.Class, n.SizeBits, ctx.modules)}
	case *ast.Enum:
		return refineEnum(addr, n, ctx)
	case *ast.StructOrUnion:
		return refineStruct(addr, n, ctx)
	case *ast.Pointer:
		return refinePointerOrReference(addr, n, n.Pointee, ctx)
	case *ast.Reference:
		return refinePointerOrReference(addr, n, n.Pointee, ctx)
	case *ast.PointerToDataMember:
		return &ast.Initializer{Scalar: refineBuiltin(addr, ast.BuiltinUnsignedInt, 32, ctx.modules)}
	case *ast.TypeName:
		return refineTypeName(addr, n, ctx)
	default:
		xdebug.Assert(false, "refine: unexpected type kind %d for value at 0x%x", t.Kind(), addr)
		return nil
	}
}

// refineArray implements the original's per-index recursion, guarded by
// elementSizeBytes since STABS doesn't always let us compute it (e.g. a
// pointer element whose declared size was never recorded).
func refineArray(addr uint32, n *ast.Array, ctx *context) *ast.Initializer {
	elemSize := elementSizeBytes(n.Element)
	if elemSize < 0 {
		return &ast.Initializer{Scalar: "CCC_CANNOT_COMPUTE_ELEMENT_SIZE"}
	}

	out := &ast.Initializer{Elements: make([]*ast.Initializer, 0, max64(n.Count, 0))}
	for i := int64(0); i < n.Count; i++ {
		child := refineNode(addr+uint32(i*elemSize), n.Element, ctx)
		child.FieldName = "[" + strconv.FormatInt(i, 10) + "]"
		out.Elements = append(out.Elements, child)
	}
	return out
}

// refineStruct implements the original's InlineStructOrUnion recursion:
// non-static fields only, each at addr + its bit offset converted to bytes.
// Base classes are not refined, matching the original, which never walks
// struct_or_union.base_classes from this function.
func refineStruct(addr uint32, n *ast.StructOrUnion, ctx *context) *ast.Initializer {
	out := &ast.Initializer{Elements: make([]*ast.Initializer, 0, len(n.Fields))}
	for _, f := range n.Fields {
		if f.IsStatic {
			continue
		}
		child := refineNode(addr+uint32(f.OffsetBits/8), f.Type, ctx)
		child.FieldName = "." + f.Name
		out.Elements = append(out.Elements, child)
	}
	return out
}

// refineEnum reads a 4-byte value and looks it up against the named
// constants, falling back to its signed decimal form.
func refineEnum(addr uint32, n *ast.Enum, ctx *context) *ast.Initializer {
	value := int64(int32(readUint(addr, 4, ctx.modules)))
	for _, c := range n.Constants {
		if c.Value == value {
			return &ast.Initializer{Scalar: c.Name}
		}
	}
	return &ast.Initializer{Scalar: strconv.FormatInt(value, 10)}
}

// refineTypeName resolves a post-dedup TypeName via its canonical index,
// guarded against a lookup-graph cycle by tracking the resolved canonical
// node's identity for the duration of this one recursive descent — not the
// TypeName placeholder's own identity, since many distinct placeholders
// across files resolve to the very same canonical node and only the
// resolved node's own recursive expansion can actually cycle.
func refineTypeName(addr uint32, tn *ast.TypeName, ctx *context) *ast.Initializer {
	if tn.HasCanonicalIndex && tn.CanonicalIndex >= 0 && tn.CanonicalIndex < len(ctx.types) {
		resolved := ctx.types[tn.CanonicalIndex]
		if !ctx.processing[resolved] {
			ctx.processing[resolved] = true
			result := refineNode(addr, resolved, ctx)
			delete(ctx.processing, resolved)
			return result
		}
	}
	return &ast.Initializer{Scalar: "CCC_TYPE_LOOKUP_FAILED"}
}

// refinePointerOrReference reads a 4-byte address and resolves it against
// the global address->node map; a miss on a char* falls back to reading a
// quoted string literal out of the pointee bytes (the
// CCC_STRING_LITERAL_TOO_LONG supplement), and any other miss falls back to
// a bare hex address.
func refinePointerOrReference(addr uint32, ptrType ast.Node, pointee ast.Node, ctx *context) *ast.Initializer {
	target := readUint(addr, 4, ctx.modules)
	if target == 0 {
		return &ast.Initializer{Scalar: "NULL"}
	}

	if nodePtr := ctx.addressToNode.Lookup(int32(uint32(target))); nodePtr != nil {
		node := *nodePtr
		prefix := ""
		if v, ok := node.(*ast.Variable); ok {
			if _, isPointer := ptrType.(*ast.Pointer); isPointer {
				if _, isArray := resolveConcrete(v.Type, ctx).(*ast.Array); !isArray {
					prefix = "&"
				}
			}
		}
		return &ast.Initializer{Scalar: prefix + node.Common().Name}
	}

	if isCharPointer(ptrType, pointee, ctx) {
		if lit, ok := readStringLiteral(uint32(target), ctx.clamp, ctx.modules); ok {
			return &ast.Initializer{Scalar: lit}
		}
		return &ast.Initializer{Scalar: "CCC_STRING_LITERAL_TOO_LONG"}
	}

	return &ast.Initializer{Scalar: "0x" + strconv.FormatUint(target, 16)}
}

// isCharPointer reports whether ptrType is a Pointer (not Reference) to an
// 8-bit integer builtin, the shape the string-literal clamp supplement
// applies to.
func isCharPointer(ptrType, pointee ast.Node, ctx *context) bool {
	if _, ok := ptrType.(*ast.Pointer); !ok {
		return false
	}
	b, ok := resolveConcrete(pointee, ctx).(*ast.Builtin)
	if !ok {
		return false
	}
	return b.SizeBits == 8 && (b.Class == ast.BuiltinSignedInt || b.Class == ast.BuiltinUnsignedInt)
}

// resolveConcrete follows a chain of resolved TypeName placeholders (without
// mutating the cycle guard) to the underlying node, or returns n unchanged
// if it isn't a TypeName. Bounded by the canonical type count so a
// malformed cycle of canonical indices can't loop forever.
func resolveConcrete(n ast.Node, ctx *context) ast.Node {
	for range ctx.types {
		tn, ok := n.(*ast.TypeName)
		if !ok {
			return n
		}
		if !tn.HasCanonicalIndex || tn.CanonicalIndex < 0 || tn.CanonicalIndex >= len(ctx.types) {
			return n
		}
		n = ctx.types[tn.CanonicalIndex]
	}
	return n
}

// readStringLiteral reads bytes starting at addr until a NUL terminator
// within clamp bytes, returning it quoted; ok is false if no terminator was
// found within the clamp or a byte couldn't be read.
func readStringLiteral(addr uint32, clamp int, modules []*elf.File) (string, bool) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for i := 0; i < clamp; i++ {
		if err := elf.ReadVirtual(buf, elf.Address(addr)+elf.Address(i), modules...); err != nil {
			return "", false
		}
		if buf[0] == 0 {
			return strconv.Quote(sb.String()), true
		}
		sb.WriteByte(buf[0])
	}
	return "", false
}

// elementSizeBytes returns a type's size in bytes if it can be determined
// from what the analyser actually recorded, or -1 if not (the original's
// computed_size_bytes comes from a separate size-computation pass this
// rewrite's scope doesn't include; see DESIGN.md).
func elementSizeBytes(n ast.Node) int64 {
	switch v := n.(type) {
	case *ast.Builtin:
		return v.SizeBits / 8
	case *ast.StructOrUnion:
		return v.Common().SizeBits / 8
	case *ast.Pointer, *ast.Reference, *ast.PointerToDataMember:
		return 4
	case *ast.Enum:
		return 4
	case *ast.Array:
		elem := elementSizeBytes(v.Element)
		if elem < 0 {
			return -1
		}
		return elem * v.Count
	default:
		return -1
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// readUint reads size bytes (1, 2, 4, or 8) at addr as a little-endian
// unsigned value, treating an out-of-bounds read as all zeros (matching the
// original, which ignores read_virtual's return value).
func readUint(addr uint32, size int, modules []*elf.File) uint64 {
	buf := make([]byte, size)
	if err := elf.ReadVirtual(buf, elf.Address(addr), modules...); err != nil {
		xdebug.NoteError()
	}
	switch size {
	case 1:
		v, _ := elf.Get[uint8](buf, 0)
		return uint64(v)
	case 2:
		v, _ := elf.Get[uint16](buf, 0)
		return uint64(v)
	case 4:
		v, _ := elf.Get[uint32](buf, 0)
		return uint64(v)
	case 8:
		v, _ := elf.Get[uint64](buf, 0)
		return v
	default:
		return 0
	}
}

// readInt is readUint's signed, sign-extended counterpart.
func readInt(addr uint32, size int, modules []*elf.File) int64 {
	buf := make([]byte, size)
	if err := elf.ReadVirtual(buf, elf.Address(addr), modules...); err != nil {
		xdebug.NoteError()
	}
	switch size {
	case 1:
		v, _ := elf.Get[int8](buf, 0)
		return int64(v)
	case 2:
		v, _ := elf.Get[int16](buf, 0)
		return int64(v)
	case 4:
		v, _ := elf.Get[int32](buf, 0)
		return int64(v)
	case 8:
		v, _ := elf.Get[int64](buf, 0)
		return v
	default:
		return 0
	}
}

// refineBuiltin formats a scalar value read at addr per bclass, matching
// the original's refine_builtin: unsigned/signed decimal by width, bool as
// true/false, IEEE-754 floats with 9 (single) or 17 (double) significant
// digits, and 128-bit classes as a 4-float VECTOR(...).
func refineBuiltin(addr uint32, bclass ast.BuiltinClass, sizeBits int64, modules []*elf.File) string {
	size := int(sizeBits / 8)

	switch bclass {
	case ast.BuiltinVoid:
		return ""
	case ast.BuiltinUnsignedInt:
		return strconv.FormatUint(readUint(addr, clampWidth(size), modules), 10)
	case ast.BuiltinSignedInt:
		return strconv.FormatInt(readInt(addr, clampWidth(size), modules), 10)
	case ast.BuiltinBool:
		return boolString(readUint(addr, 1, modules) != 0)
	case ast.BuiltinFloat:
		bits := uint32(readUint(addr, 4, modules))
		return strconv.FormatFloat(float64(math.Float32frombits(bits)), 'g', 9, 32)
	case ast.BuiltinDouble:
		bits := readUint(addr, 8, modules)
		return strconv.FormatFloat(math.Float64frombits(bits), 'g', 17, 64)
	case ast.BuiltinVector128:
		var lanes [4]string
		for i := range lanes {
			bits := uint32(readUint(addr+uint32(i*4), 4, modules))
			lanes[i] = strconv.FormatFloat(float64(math.Float32frombits(bits)), 'g', 9, 32)
		}
		return "VECTOR(" + strings.Join(lanes[:], ", ") + ")"
	default:
		return ""
	}
}

// clampWidth rounds a byte width to one of the four the reader helpers
// support, matching whatever the analyser actually recorded for a range's
// size (guessIntWidth in internal/ast only ever produces 1, 2, 4, or 8).
func clampWidth(size int) int {
	switch {
	case size <= 1:
		return 1
	case size <= 2:
		return 2
	case size <= 4:
		return 4
	default:
		return 8
	}
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
