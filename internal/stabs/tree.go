// Package stabs tokenizes and parses STABS symbol-descriptor strings into a
// per-file, unresolved type tree keyed by (file-index, type-number). It
// never dereferences a cross-file reference — internal/ast lowers one to a
// placeholder and internal/dedup resolves it once all files have been
// lexed, parsed and lowered.
package stabs

// TypeNumber identifies a type definition within one file's type tree. Most
// STABS strings carry a bare number meaning "this file"; the "(file,num)"
// form names a type defined in a different compilation unit, to be resolved
// once every file has been parsed.
type TypeNumber struct {
	File int
	Num  int
}

// Kind discriminates the closed set of Stabs Type Tree node variants.
type Kind int

const (
	KindTypeRef Kind = iota
	KindArray
	KindRange
	KindFunction
	KindStructOrUnion
	KindEnum
	KindCrossRef
	KindReference
	KindPointer
	KindPointerToMember
	KindMember
	KindMethod
)

// Node is any Stabs Type Tree node. The set of implementations is closed;
// callers switch on Kind() rather than type-asserting against an open
// interface.
type Node interface {
	Kind() Kind
	base() *Base
}

// Base is the payload every node shares: an optional tag name and whether
// this occurrence of the type established a body (n=<descriptor>) as
// opposed to merely referencing one (bare n).
type Base struct {
	Name     string
	HasBody  bool
	Number   TypeNumber
	HasError bool // set when this node's payload was truncated or malformed
}

func (b *Base) base() *Base { return b }

// TypeRef is a bare reference to another type number: the "(digit)"
// descriptor, or the implicit reference a type expression reduces to when
// it carries no descriptor letter at all.
type TypeRef struct {
	Base
	Target TypeNumber
}

func (*TypeRef) Kind() Kind { return KindTypeRef }

// Array is the "a" descriptor: an index type (almost always a Range) and
// an element type.
type Array struct {
	Base
	Index   TypeNumber
	Element TypeNumber
}

func (*Array) Kind() Kind { return KindArray }

// Range is the "r" descriptor: a base type plus low/high bound literals.
// Bounds are kept as the raw decimal text STABS encodes them as — some
// compilers emit an empty high bound to mean "dynamic size" — parsing them
// to an integer is internal/ast's concern, not the lexer's.
type Range struct {
	Base
	BaseType TypeNumber
	Low      string
	High     string
}

func (*Range) Kind() Kind { return KindRange }

// Function is the "f" descriptor: the return type. STABS never encodes
// parameter types on the function descriptor itself; those arrive as
// sibling PARAM symbols in the enclosing scope, stitched together by
// internal/ast.
type Function struct {
	Base
	Return TypeNumber
}

func (*Function) Kind() Kind { return KindFunction }

// Field is one member of a struct or union's field list.
type Field struct {
	Name          string
	Type          TypeNumber
	OffsetBits    int
	SizeBits      int
	IsStatic      bool
	StaticAddress string // physical name of the static's symbol, for IsStatic fields
}

// BaseClass is one entry of a struct's base-class list.
type BaseClass struct {
	Type       TypeNumber
	OffsetBits int
	Virtual    bool
}

// StructOrUnion is the "s"/"u" descriptor.
type StructOrUnion struct {
	Base
	IsUnion     bool
	SizeBytes   int
	BaseClasses []BaseClass
	Fields      []Field
	Methods     []Method
}

func (*StructOrUnion) Kind() Kind { return KindStructOrUnion }

// EnumConstant is one "name:value" pair of an enum's constant list.
type EnumConstant struct {
	Name  string
	Value int64
}

// Enum is the "e" descriptor.
type Enum struct {
	Base
	Constants []EnumConstant
}

func (*Enum) Kind() Kind { return KindEnum }

// CrossRefTag is the kind tag a cross-reference names its target by.
type CrossRefTag byte

const (
	CrossRefStruct CrossRefTag = 's'
	CrossRefUnion  CrossRefTag = 'u'
	CrossRefEnum   CrossRefTag = 'e'
)

// CrossRef is the "x" descriptor: a type named by tag and identifier,
// resolved against other files' definitions later in the pipeline.
type CrossRef struct {
	Base
	Tag        CrossRefTag
	Identifier string
}

func (*CrossRef) Kind() Kind { return KindCrossRef }

// Reference is the "&" descriptor.
type Reference struct {
	Base
	Pointee TypeNumber
}

func (*Reference) Kind() Kind { return KindReference }

// Pointer is the "*" descriptor.
type Pointer struct {
	Base
	Pointee TypeNumber
}

func (*Pointer) Kind() Kind { return KindPointer }

// PointerToMember is the "@" descriptor: a pointer-to-data-member, carrying
// the owning class and the pointed-to member's type.
type PointerToMember struct {
	Base
	Class  TypeNumber
	Member TypeNumber
}

func (*PointerToMember) Kind() Kind { return KindPointerToMember }

// Member is a standalone member-type node, used when a field list entry
// needs its own (file, type-number) identity rather than an inline Field
// payload (e.g. a member whose type is itself being defined for the first
// time at this position).
type Member struct {
	Base
	Type TypeNumber
}

func (*Member) Kind() Kind { return KindMember }

// Method is one entry of a struct's member-function list.
type Method struct {
	Base
	Type         TypeNumber
	VtableIndex  int
	IsVirtual    bool
	IsConst      bool
	IsVolatile   bool
	Access       Access
}

func (*Method) Kind() Kind { return KindMethod }

// Access is a member or method's visibility, decoded from the STABS
// visibility character ('0'=private, '1'=protected, '2'=public).
type Access int

const (
	AccessPublic Access = iota
	AccessProtected
	AccessPrivate
)

// Tree is the full set of type definitions parsed out of one file's symbol
// stream, keyed by type number. A reference whose Num is never a key of
// this map at the end of parsing is either a forward use resolved once the
// defining symbol is seen, or, if it's never defined, left dangling for
// internal/ast to turn into an error TypeName.
type Tree struct {
	Nodes map[int]Node
}

// NewTree returns an empty Tree ready to accumulate definitions.
func NewTree() *Tree {
	return &Tree{Nodes: make(map[int]Node)}
}

// Define records a node under type number n, overwriting any previous
// forward-reference placeholder.
func (t *Tree) Define(n int, node Node) {
	t.Nodes[n] = node
}

// Lookup returns the node defined at n, if any.
func (t *Tree) Lookup(n int) (Node, bool) {
	node, ok := t.Nodes[n]
	return node, ok
}
