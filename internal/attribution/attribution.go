// Package attribution narrows each canonical type's Common.Files set — set
// by internal/dedup to every file that contributed a candidate definition —
// down to the file(s) that most plausibly defined it, by applying the
// this-pointer and reference-count heuristics over the whole deduplicated
// program in turn.
package attribution

import (
	"path/filepath"

	"mdebug.dev/ccc/internal/ast"
)

// Run applies both heuristics in order: the this-pointer heuristic first
// (it carries the stronger signal — an explicit member function can only
// have been compiled against the file that defines it), then the
// reference-count heuristic over whatever Common.Files the first pass
// left behind.
func Run(files []*ast.SourceFile, types []ast.Node) {
	byIdentity := make(map[ast.Node]int, len(types))
	for i, t := range types {
		byIdentity[t] = i
	}
	applyThisPointer(files, types, byIdentity)
	applyReferenceCount(files, types, byIdentity)
}

// applyThisPointer implements: if a member function's first parameter is a
// pointer to T, T's defining file is set to that function's own file
// (overriding whatever Common.Files dedup left), and if that makes
// Files a single-entry set, ProbablyDefinedInCppFile is set when the
// file's extension is .c or .cpp.
func applyThisPointer(files []*ast.SourceFile, types []ast.Node, byIdentity map[ast.Node]int) {
	for fileIdx, f := range files {
		for _, fn := range f.Functions {
			firstParam := firstParamType(fn)
			if firstParam == nil {
				continue
			}
			t := resolveCanonical(firstParam, f, types, byIdentity)
			ptr, ok := t.(*ast.Pointer)
			if !ok {
				continue
			}
			owner := resolveCanonical(ptr.Pointee, f, types, byIdentity)
			if owner == nil {
				continue
			}

			common := owner.Common()
			common.Files = []int{fileIdx}
			if len(common.Files) == 1 {
				switch filepath.Ext(f.Path) {
				case ".c", ".cpp":
					common.ProbablyDefinedInCppFile = true
				}
			}
		}
	}
}

// firstParamType returns the type of fn's first parameter. FunctionType's
// own Params slot is usually nil — STABS rarely records the full signature
// on the PROC descriptor itself — so this falls back to fn.Locals[0]:
// PARAM symbols are always emitted before any LOCAL or BLOCK within a
// function's symbol range, so the first entry in Locals is the first
// parameter whenever the function took any arguments at all.
func firstParamType(fn *ast.FunctionDefinition) ast.Node {
	if ft, ok := fn.Type.(*ast.FunctionType); ok && len(ft.Params) > 0 {
		return ft.Params[0]
	}
	if len(fn.Locals) == 0 {
		return nil
	}
	v, ok := fn.Locals[0].(*ast.Variable)
	if !ok {
		return nil
	}
	return v.Type
}

// applyReferenceCount implements: tally, for every canonical type, how many
// times each file references it (through a field, parameter, return type,
// array element, or variable declaration), and assign the type exclusively
// to whichever file's count is strictly highest. A tie leaves Common.Files
// untouched, whatever the this-pointer pass (or dedup's initial set) left.
func applyReferenceCount(files []*ast.SourceFile, types []ast.Node, byIdentity map[ast.Node]int) {
	counts := make([]map[int]int, len(types))
	for i := range counts {
		counts[i] = make(map[int]int)
	}

	for fileIdx, f := range files {
		countFileReferences(f, fileIdx, counts, byIdentity)
	}

	for i, byFile := range counts {
		bestFile, bestCount, tie := -1, 0, false
		for fileIdx, c := range byFile {
			switch {
			case c > bestCount:
				bestFile, bestCount, tie = fileIdx, c, false
			case c == bestCount:
				tie = true
			}
		}
		if bestFile >= 0 && !tie {
			types[i].Common().Files = []int{bestFile}
		}
	}
}

// countFileReferences walks every type, function, and global this file
// itself lowered, counting one reference per child slot that names a
// canonical type — either directly (internal/dedup now rewrites every
// same-file direct reference to the canonical node's own identity, so a
// byIdentity hit is the common case) or through an already-rewritten
// TypeName placeholder. Each top-level declaration (one global, one
// function, one child of one type) gets its own cycle-guard set: a shared
// set across declarations would make the second of two globals of the same
// struct type silently stop counting, since the analyser's ByStabsNumber
// cache hands out the identical node pointer to both, and dedup in turn
// retargets both to the identical canonical pointer.
func countFileReferences(f *ast.SourceFile, fileIdx int, counts []map[int]int, byIdentity map[ast.Node]int) {
	count := func(n ast.Node) {
		visited := make(map[ast.Node]bool)

		var walk func(n ast.Node)
		walk = func(n ast.Node) {
			if n == nil || visited[n] {
				return
			}
			visited[n] = true

			if idx, ok := canonicalIndexOf(n, f, byIdentity); ok {
				counts[idx][fileIdx]++
			}
			for _, c := range children(n) {
				walk(c)
			}
		}
		walk(n)
	}

	for _, t := range f.Types {
		for _, c := range children(t) {
			count(c)
		}
	}
	for _, fn := range f.Functions {
		count(fn.Type)
		for _, l := range fn.Locals {
			count(l)
		}
	}
	for _, g := range f.Globals {
		count(g.Type)
	}
}

// canonicalIndexOf reports the canonical index n refers to. n may already
// be the canonical node itself — internal/dedup retargets every direct
// reference it finds, not just TypeName placeholders — in which case
// byIdentity resolves it directly; otherwise n is a rewritten TypeName
// placeholder, or (should dedup ever leave a direct reference unretargeted)
// falls back to this file's own StabsTypeNumberToDeduplicatedIndex.
func canonicalIndexOf(n ast.Node, f *ast.SourceFile, byIdentity map[ast.Node]int) (int, bool) {
	if idx, ok := byIdentity[n]; ok {
		return idx, true
	}
	if tn, ok := n.(*ast.TypeName); ok {
		if tn.HasCanonicalIndex {
			return tn.CanonicalIndex, true
		}
		return 0, false
	}
	idx, ok := f.StabsTypeNumberToDeduplicatedIndex[n.Common().StabsTypeNumber]
	return idx, ok
}

// resolveCanonical follows n to the canonical types[] entry it stands for.
// n may already be that canonical node (the common case post-dedup: a
// same-file reference that bypassed a TypeName placeholder comes back
// already retargeted to canonical identity), a rewritten TypeName
// placeholder, or — only if dedup left something unretargeted — a node
// this file still owns, resolved via its own StabsTypeNumberToDeduplicatedIndex.
// Returns nil if n names no canonical type at all.
func resolveCanonical(n ast.Node, f *ast.SourceFile, types []ast.Node, byIdentity map[ast.Node]int) ast.Node {
	if idx, ok := byIdentity[n]; ok {
		return types[idx]
	}
	if tn, ok := n.(*ast.TypeName); ok {
		if !tn.HasCanonicalIndex || tn.CanonicalIndex < 0 || tn.CanonicalIndex >= len(types) {
			return nil
		}
		return types[tn.CanonicalIndex]
	}
	idx, ok := f.StabsTypeNumberToDeduplicatedIndex[n.Common().StabsTypeNumber]
	if !ok || idx < 0 || idx >= len(types) {
		return n
	}
	return types[idx]
}

// children mirrors internal/dedup's child enumerator: the same closed set
// of node variants, the same immediate Node-valued references. Kept as an
// independent copy rather than an exported helper from internal/dedup,
// since the two packages walk for different reasons (structural hashing
// vs. reference counting) and dedup's version is deliberately unexported.
func children(n ast.Node) []ast.Node {
	switch v := n.(type) {
	case *ast.Array:
		return []ast.Node{v.Element}
	case *ast.Pointer:
		return []ast.Node{v.Pointee}
	case *ast.Reference:
		return []ast.Node{v.Pointee}
	case *ast.PointerToDataMember:
		return []ast.Node{v.Class, v.Member}
	case *ast.StructOrUnion:
		out := make([]ast.Node, 0, len(v.Fields)+len(v.BaseClasses)+len(v.MemberFunctions))
		for _, field := range v.Fields {
			out = append(out, field.Type)
		}
		for _, b := range v.BaseClasses {
			out = append(out, b.Type)
		}
		for _, m := range v.MemberFunctions {
			out = append(out, m.Type)
		}
		return out
	case *ast.FunctionType:
		out := make([]ast.Node, 0, len(v.Params)+1)
		out = append(out, v.Return)
		out = append(out, v.Params...)
		return out
	case *ast.Bitfield:
		return []ast.Node{v.Storage}
	case *ast.Variable:
		return []ast.Node{v.Type}
	case *ast.FunctionDefinition:
		out := make([]ast.Node, 0, len(v.Locals)+1)
		out = append(out, v.Type)
		out = append(out, v.Locals...)
		return out
	default:
		return nil
	}
}
