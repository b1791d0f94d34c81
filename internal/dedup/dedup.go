// Package dedup collapses the per-file ASTs internal/ast produces into one
// canonical type list, rewriting every TypeName placeholder to point at its
// canonical index. A single logical type (struct Vec3, say) shows up once
// per file that included its declaring header; this is where those copies
// become one node.
package dedup

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"iter"
	"reflect"

	"github.com/tiendc/go-deepcopy"
	"golang.org/x/crypto/blake2b"

	"mdebug.dev/ccc/internal/ast"
	"mdebug.dev/ccc/internal/scc"
	"mdebug.dev/ccc/internal/swiss"
	"mdebug.dev/ccc/internal/xdebug"
)

// Result is the outcome of deduplicating a set of per-file ASTs: the
// canonical type list (in the order each bucket was first resolved) and a
// count of conflicting redefinitions found along the way.
type Result struct {
	Types     []ast.Node
	Conflicts int
}

// candidate is one file's contribution to a bucket: the definition itself,
// its owning file (for canonical-index bookkeeping), and its precomputed
// structural hash (for the equality check bucketing alone can't give us
// for named types, where differently-shaped candidates still share a
// bucket).
type candidate struct {
	file      *ast.SourceFile
	fileIndex int
	node      ast.Node
	hash      string
}

// Run deduplicates every type definition reachable from files' Types
// lists, populates each file's StabsTypeNumberToDeduplicatedIndex, and
// rewrites every TypeName placeholder in every file (types, functions,
// globals) to carry a canonical index. files must be indexed exactly as
// the ast.Analyser that produced each one was constructed — ReferencedFile
// on every TypeName, and every entry of a canonical type's Common.Files,
// is an index into this same slice.
func Run(files []*ast.SourceFile) *Result {
	buckets := swiss.New[string, []candidate](64)

	for fileIdx, f := range files {
		for _, t := range f.Types {
			dag := scc.Sort(t, graphFor(f))
			h := structuralHash(t, f, dag)
			key := bucketKey(t, h)

			list, _ := buckets.Get(key)
			list = append(list, candidate{file: f, fileIndex: fileIdx, node: t, hash: h})
			buckets.Insert(key, list)
		}
	}

	result := &Result{}
	// interned maps every candidate's original, per-file node to the
	// canonical clone its bucket produced. A direct (non-TypeName) child
	// reference elsewhere in that same file — the analyser's ByStabsNumber
	// cache handing out the identical node to a second field or parameter —
	// is keyed by Go pointer identity here, not by stabs number, so it is
	// found regardless of which AST slot holds it.
	interned := make(map[ast.Node]ast.Node)

	buckets.Iter(func(_ string, cands []candidate) bool {
		winner := cands[0]
		for _, c := range cands[1:] {
			if !hasBody(winner.node) && hasBody(c.node) {
				winner = c
			}
		}

		canonical := cloneNode(winner.node)

		canonicalIdx := len(result.Types)
		result.Types = append(result.Types, canonical)

		contributingFiles := make([]int, 0, len(cands))
		for _, c := range cands {
			if c.hash != winner.hash {
				canonical.Common().ConflictingTypes = true
				result.Conflicts++
			}
			c.file.StabsTypeNumberToDeduplicatedIndex[c.node.Common().StabsTypeNumber] = canonicalIdx
			contributingFiles = append(contributingFiles, c.fileIndex)
			interned[c.node] = canonical
		}
		// Common.Files starts as "every file that contributed a candidate
		// to this bucket"; internal/attribution narrows it further with the
		// this-pointer and reference-count heuristics once the whole
		// canonical list exists.
		canonical.Common().Files = contributingFiles

		return true
	})

	// Rewrite every direct, non-TypeName reference to a bucketed node before
	// touching TypeName placeholders: the two rewrites are independent (a
	// node is never both), but doing the direct pass first means a node
	// reached only through an interned parent is still visited with its
	// final, canonical identity.
	internDirectReferences(files, interned)

	// Every TypeName placeholder still needs rewriting to a canonical index
	// after bucketing — including the ones inside the canonical clones just
	// made above, which are now independent subtrees reachable from
	// result.Types rather than from any file.
	rewriteReferences(files, result.Types)

	return result
}

// bucketKey is the tag name for named, non-anonymous definitions, and the
// structural hash for anonymous ones (an empty Common.Name).
func bucketKey(n ast.Node, hash string) string {
	if name := n.Common().Name; name != "" {
		return "name:" + name
	}
	return "hash:" + hash
}

// hasBody reports whether n is a complete definition rather than a forward
// declaration. Only struct/union nodes can be incomplete in this AST (every
// other node variant is only ever produced once its body has been lowered
// in full), so this is the tie-break rule's only real test in practice.
func hasBody(n ast.Node) bool {
	su, ok := n.(*ast.StructOrUnion)
	if !ok {
		return true
	}
	return su.Common.SizeBits > 0 || len(su.Fields) > 0 || len(su.BaseClasses) > 0
}

// resolve follows a same-file TypeName{Source: SourceReference} placeholder
// back to the real node it stands in for. Cross-file and error references
// are left as-is: at hashing time no file's canonical indices exist yet,
// and a cross-file cycle through a TypeName would be a vanishingly rare
// pathology this module doesn't chase.
func resolve(n ast.Node, file *ast.SourceFile) ast.Node {
	tn, ok := n.(*ast.TypeName)
	if !ok || tn.Source != ast.SourceReference {
		return n
	}
	if real, ok := file.ByStabsNumber[tn.ReferencedStabsNumber]; ok {
		return real
	}
	return n
}

// children returns n's immediate Node-valued references, for both the
// structural-hash walk and the SCC graph. It does not resolve TypeName
// placeholders itself — callers needing that (the hash walk, the SCC
// graph) call resolve on each child explicitly, since resolve needs the
// owning file that children does not have.
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
		for _, f := range v.Fields {
			out = append(out, f.Type)
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

// graphFor adapts children/resolve to scc.Graph, scoped to one file: edges
// that cross a TypeName placeholder are only followed when they stay
// inside this file, which is exactly the set of edges that can possibly
// form a cycle before cross-file rewriting happens.
func graphFor(file *ast.SourceFile) scc.Graph[ast.Node] {
	return func(n ast.Node) iter.Seq[ast.Node] {
		return func(yield func(ast.Node) bool) {
			for _, c := range children(n) {
				if c == nil {
					continue
				}
				if !yield(resolve(c, file)) {
					return
				}
			}
		}
	}
}

// structuralHash computes the kind/size/member-count/member-tuple hash
// spec'd for bucket comparison. dag, precomputed over root's reachable
// closure, tells the walk which nodes can possibly recurse back into
// themselves; an explicit in-progress set (required regardless, since a
// component can contain the same node reached by two different paths that
// aren't themselves cyclic) supplies the actual "currently on the stack"
// answer that Cyclic alone can't.
func structuralHash(root ast.Node, file *ast.SourceFile, dag *scc.DAG[ast.Node]) string {
	h, err := blake2b.New256(nil)
	xdebug.Assert(err == nil, "blake2b.New256 with a nil key never fails")

	inProgress := make(map[ast.Node]bool)
	graph := graphFor(file)

	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		n = resolve(n, file)
		if n == nil {
			_, _ = h.Write([]byte{0})
			return
		}

		if comp := dag.ForNode(n); comp != nil && comp.Cyclic(graph) {
			if inProgress[n] {
				_, _ = h.Write([]byte("self"))
				return
			}
			inProgress[n] = true
			defer delete(inProgress, n)
		}

		writeHeader(h, n)
		for _, c := range children(n) {
			walk(c)
		}
	}
	walk(root)

	return hex.EncodeToString(h.Sum(nil))
}

func writeHeader(w io.Writer, n ast.Node) {
	_ = binary.Write(w, binary.LittleEndian, int32(n.Kind()))
	_, _ = io.WriteString(w, n.Common().Name)
	_ = binary.Write(w, binary.LittleEndian, n.Common().SizeBits)

	switch v := n.(type) {
	case *ast.Builtin:
		_, _ = w.Write([]byte{byte(v.Class)})
	case *ast.Array:
		_ = binary.Write(w, binary.LittleEndian, v.Count)
	case *ast.StructOrUnion:
		_ = binary.Write(w, binary.LittleEndian, int64(len(v.Fields)))
		for _, f := range v.Fields {
			_ = binary.Write(w, binary.LittleEndian, f.OffsetBits)
			_ = binary.Write(w, binary.LittleEndian, f.SizeBits)
			_, _ = io.WriteString(w, f.Name)
		}
	case *ast.Enum:
		_ = binary.Write(w, binary.LittleEndian, int64(len(v.Constants)))
		for _, c := range v.Constants {
			_, _ = io.WriteString(w, c.Name)
			_ = binary.Write(w, binary.LittleEndian, c.Value)
		}
	case *ast.TypeName:
		// ReferencedFile/ReferencedStabsNumber are per-file bookkeeping,
		// not part of a type's shape: two files' identical dangling or
		// numeric cross-file references must hash the same even though
		// their raw (file, number) pairs necessarily differ. Only a
		// named cross-reference's tag text is structural.
		_, _ = io.WriteString(w, "typename")
		_ = binary.Write(w, binary.LittleEndian, int32(v.Source))
		_, _ = io.WriteString(w, v.Text)
	}
}

// rewriteReferences walks every type, function, and global reachable from
// every file, plus extraRoots (the canonical clones, which are no longer
// reachable from any file's own slices), and substitutes each TypeName's
// canonical index, per its owning file's StabsTypeNumberToDeduplicatedIndex
// (already populated by the bucket pass above — ReferencedFile is always an
// index into files, whether the reference was same-file or cross-file). A
// reference whose target was never bucketed (a dangling same-file number,
// an unresolved cross-file tag) is left with Source == SourceError.
func rewriteReferences(files []*ast.SourceFile, extraRoots []ast.Node) {
	v := ast.NewVisitor()

	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		if n == nil || v.Enter(n) {
			return
		}
		defer v.Leave(n)

		if tn, ok := n.(*ast.TypeName); ok {
			rewriteOne(tn, files)
		}
		for _, c := range children(n) {
			walk(c)
		}
	}

	for _, f := range files {
		for _, t := range f.Types {
			walk(t)
		}
		for _, fn := range f.Functions {
			walk(fn)
		}
		for _, g := range f.Globals {
			walk(g)
		}
	}
	for _, n := range extraRoots {
		walk(n)
	}
}

// internDirectReferences walks every type, function, and global reachable
// from every file and rewrites each node's immediate Node-valued fields
// in place, substituting the canonical clone wherever a field's current
// value is a key in interned. This is the identity-preserving counterpart
// to rewriteReferences: a TypeName placeholder carries its target as a
// (file, stabs-number) pair and gets resolved by lookup, but a direct
// reference — the common case, since the analyser hands out the same Go
// node for every same-file use of an already-lowered type — carries no
// such pair to look up. The only way to retarget it is to recognize the
// stale pointer itself.
func internDirectReferences(files []*ast.SourceFile, interned map[ast.Node]ast.Node) {
	v := ast.NewVisitor()

	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		if n == nil || v.Enter(n) {
			return
		}
		defer v.Leave(n)

		internChildren(n, interned)
		for _, c := range children(n) {
			walk(c)
		}
	}

	for _, f := range files {
		for _, t := range f.Types {
			walk(t)
		}
		for _, fn := range f.Functions {
			walk(fn)
		}
		for _, g := range f.Globals {
			walk(g)
		}
	}
}

// internChildren retargets n's immediate Node-valued fields to their
// canonical replacement per interned, mirroring children's enumeration but
// writing back through the field instead of only reading it.
func internChildren(n ast.Node, interned map[ast.Node]ast.Node) {
	intern := func(c ast.Node) ast.Node {
		if c == nil {
			return nil
		}
		if canon, ok := interned[c]; ok {
			return canon
		}
		return c
	}

	switch v := n.(type) {
	case *ast.Array:
		v.Element = intern(v.Element)
	case *ast.Pointer:
		v.Pointee = intern(v.Pointee)
	case *ast.Reference:
		v.Pointee = intern(v.Pointee)
	case *ast.PointerToDataMember:
		v.Class = intern(v.Class)
		v.Member = intern(v.Member)
	case *ast.StructOrUnion:
		for i := range v.Fields {
			v.Fields[i].Type = intern(v.Fields[i].Type)
		}
		for i := range v.BaseClasses {
			v.BaseClasses[i].Type = intern(v.BaseClasses[i].Type)
		}
		for i := range v.MemberFunctions {
			v.MemberFunctions[i].Type = intern(v.MemberFunctions[i].Type)
		}
	case *ast.FunctionType:
		v.Return = intern(v.Return)
		for i := range v.Params {
			v.Params[i] = intern(v.Params[i])
		}
	case *ast.Bitfield:
		v.Storage = intern(v.Storage)
	case *ast.Variable:
		v.Type = intern(v.Type)
	case *ast.FunctionDefinition:
		v.Type = intern(v.Type)
		for i := range v.Locals {
			v.Locals[i] = intern(v.Locals[i])
		}
	}
}

// cloneNode deep-copies n's concrete subtree out of whichever file's AST
// supplied it, via go-deepcopy, so the canonical node's lifetime is
// decoupled from that file: nothing about result.Types should change if
// its source *ast.SourceFile is later discarded. reflect.New of n's own
// concrete pointer type keeps this generic over the closed Node variant
// set without a type switch per kind.
func cloneNode(n ast.Node) ast.Node {
	if n == nil {
		return nil
	}
	dst := reflect.New(reflect.TypeOf(n).Elem()).Interface()
	if err := deepcopy.Copy(dst, n); err != nil {
		xdebug.Log(nil, "cloneNode", "deepcopy clone of %T failed, keeping original node: %v", n, err)
		return n
	}
	return dst.(ast.Node)
}

func rewriteOne(tn *ast.TypeName, files []*ast.SourceFile) {
	if tn.Source != ast.SourceReference && tn.Source != ast.SourceCrossReference {
		return
	}
	if tn.ReferencedFile < 0 || tn.ReferencedFile >= len(files) {
		tn.Source = ast.SourceError
		return
	}
	idx, ok := files[tn.ReferencedFile].StabsTypeNumberToDeduplicatedIndex[tn.ReferencedStabsNumber]
	if !ok {
		tn.Source = ast.SourceError
		return
	}
	tn.CanonicalIndex = idx
	tn.HasCanonicalIndex = true
}
