// Package ast is the post-parse unified representation every STABS type,
// function, and variable definition is lowered to: a closed set of node
// variants sharing one attribute set, so downstream stages (dedup,
// attribution, refinement) can walk the tree without caring which
// compilation unit a node came from.
package ast

import "mdebug.dev/ccc/internal/stabs"

// Kind discriminates the closed set of AST node variants.
type Kind int

const (
	KindBuiltin Kind = iota
	KindArray
	KindBitfield
	KindEnum
	KindStructOrUnion
	KindPointer
	KindReference
	KindPointerToDataMember
	KindFunctionType
	KindFunctionDefinition
	KindVariable
	KindTypeName
	KindSourceFile
	KindLabel
)

// StorageClass is the C storage-class keyword (if any) a declaration
// carried, independent of where a Variable node's value physically lives
// (see Storage).
type StorageClass int

const (
	StorageClassNone StorageClass = iota
	StorageClassExtern
	StorageClassStatic
	StorageClassAuto
	StorageClassRegister
	StorageClassTypedef
)

// Common is the attribute set every node variant carries, matching the
// shared fields of the unified node representation: name, storage class,
// offsets, size, qualifiers, the originating STABS type number, and which
// files this logical node has been observed in.
//
// There is deliberately no is_currently_processing field here: with the
// Symbol Database allowing arbitrarily many concurrent reader goroutines to
// walk the same published, otherwise-immutable tree, a shared per-node
// cycle-guard bool would race. internal/dedup instead keeps a
// goroutine-local visited set keyed by routine.Goid() (see Visitor) for the
// duration of one walk, and internal/refine keeps its own per-Run set.
type Common struct {
	Name                     string
	StorageClass             StorageClass
	RelativeOffsetBytes      int64
	AbsoluteOffsetBytes      int64
	SizeBits                 int64
	IsConst                  bool
	IsVolatile               bool
	Access                   stabs.Access
	StabsTypeNumber          int
	Files                    []int
	ProbablyDefinedInCppFile bool
	// ConflictingTypes is set by internal/dedup when two same-named
	// definitions from different files turned out structurally unequal;
	// the first one seen still wins as canonical, but printers can use
	// this to surface a warning.
	ConflictingTypes bool
}

// Node is any AST node. The set of implementations is closed.
type Node interface {
	Kind() Kind
	Common() *Common
}

// Builtin is a primitive scalar type (int, float, bool, ...). BuiltinClass
// distinguishes how internal/refine formats a value of this type.
type Builtin struct {
	Common
	Class BuiltinClass
}

func (*Builtin) Kind() Kind { return KindBuiltin }

// BuiltinClass is how a Builtin's bytes should be interpreted when
// refining a value.
type BuiltinClass int

const (
	BuiltinUnsignedInt BuiltinClass = iota
	BuiltinSignedInt
	BuiltinBool
	BuiltinFloat
	BuiltinDouble
	BuiltinVector128
	BuiltinVoid
)

// Array is a fixed-length homogeneous sequence.
type Array struct {
	Common
	Element Node
	Count   int64
}

func (*Array) Kind() Kind { return KindArray }

// Bitfield is a sub-byte member. Refinement never materializes its value,
// only its width and offset, since a partial-byte read can't be formatted
// as a standalone scalar the way a full field can.
type Bitfield struct {
	Common
	Storage Node
	Width   int64
	Offset  int64
}

func (*Bitfield) Kind() Kind { return KindBitfield }

// EnumConstant is one name/value pair of an Enum's constant list.
type EnumConstant struct {
	Name  string
	Value int64
}

// Enum is a set of named integer constants.
type Enum struct {
	Common
	Constants []EnumConstant
}

func (*Enum) Kind() Kind { return KindEnum }

// Field is one non-static or static member of a StructOrUnion. Name and
// offset live on Field itself rather than on Type's Common, since the same
// Type node (e.g. a shared int Builtin) can back many differently-named,
// differently-placed fields across a file.
type Field struct {
	Name          string
	Type          Node
	OffsetBits    int64
	SizeBits      int64
	IsStatic      bool
	StaticAddress string
}

// BaseClass is one entry of a StructOrUnion's base-class list.
type BaseClass struct {
	Type       Node
	OffsetBits int64
	Virtual    bool
}

// MemberFunction is one entry of a StructOrUnion's member-function list.
type MemberFunction struct {
	Name   string
	Type   Node // a *FunctionType
	Access stabs.Access
}

// StructOrUnion is a struct or union type: base classes, fields, and
// member functions (the latter feeding the this-pointer file-attribution
// heuristic).
type StructOrUnion struct {
	Common
	IsStruct        bool
	BaseClasses     []BaseClass
	Fields          []Field
	MemberFunctions []MemberFunction
}

func (*StructOrUnion) Kind() Kind { return KindStructOrUnion }

// Pointer is a pointer-to-T type.
type Pointer struct {
	Common
	Pointee Node
}

func (*Pointer) Kind() Kind { return KindPointer }

// Reference is a C++ reference-to-T type.
type Reference struct {
	Common
	Pointee Node
}

func (*Reference) Kind() Kind { return KindReference }

// PointerToDataMember is a pointer-to-member type: "T Class::*".
type PointerToDataMember struct {
	Common
	Class  Node
	Member Node
}

func (*PointerToDataMember) Kind() Kind { return KindPointerToDataMember }

// FunctionModifier distinguishes a plain function type from a
// constructor/destructor/operator, which refinement and printing treat
// specially.
type FunctionModifier int

const (
	FunctionPlain FunctionModifier = iota
	FunctionConstructor
	FunctionDestructor
	FunctionStaticMethod
	FunctionNonStaticMethod
)

// FunctionType is a function signature: return type, optional parameter
// types (STABS frequently omits these), and virtual-dispatch metadata.
type FunctionType struct {
	Common
	Return      Node
	Params      []Node // nil when the parameter list wasn't recorded
	Modifier    FunctionModifier
	VtableIndex int
	IsConstructor bool
}

func (*FunctionType) Kind() Kind { return KindFunctionType }

// LineEntry maps a code address to a source line number.
type LineEntry struct {
	Address uint32
	Line    int
}

// FunctionDefinition is a function body: its type, the address range its
// generated code occupies, its line-number table, any nested source files
// it was inlined from, and its local variables.
type FunctionDefinition struct {
	Common
	Type             Node // a *FunctionType
	AddressLow       uint32
	AddressHigh      uint32
	LineNumbers      []LineEntry
	SubFiles         []string
	Locals           []Node // *Variable
}

func (*FunctionDefinition) Kind() Kind { return KindFunctionDefinition }

// Global is Variable storage living at a fixed virtual address in a named
// ELF section.
type Global struct {
	Section string // "bss", "data", "sbss", "sdata", ...
	Address uint32
}

// Register is Variable storage held in a machine register for its whole
// lifetime (or passed by reference in one, for aggregates too large to fit).
type Register struct {
	DBXNumber    int
	IsByReference bool
}

// Stack is Variable storage at a fixed offset from the frame pointer.
type Stack struct {
	PointerOffset int64
}

// Storage is the tagged union of places a Variable's value can live.
// Exactly one of the three concrete types below populates it.
type Storage interface {
	storage()
}

func (Global) storage()   {}
func (Register) storage() {}
func (Stack) storage()    {}

// Variable is a global, parameter, or local variable declaration.
type Variable struct {
	Common
	Type    Node
	Storage Storage
	Block   int // lexical block depth the declaration occurred in
	// Data is this variable's refined initial value, populated by
	// internal/refine for globals (and static locals) with a known address
	// and a non-BSS/SBSS location. nil until refined, and nil permanently
	// for anything refinement skips or for a void-typed variable.
	Data *Initializer
}

// Initializer is a refined variable's materialized value: either a single
// formatted scalar (Scalar set, Elements nil) or a composite of child
// initializers (Elements set, Scalar empty), one per array element or
// non-static struct/union field. FieldName carries the "[i]" or ".name"
// tag a parent refinement step stamped onto this child; it is empty for a
// top-level variable's own Initializer.
type Initializer struct {
	FieldName string
	Scalar    string
	Elements  []*Initializer
}

func (*Variable) Kind() Kind { return KindVariable }

// TypeNameSource classifies how a TypeName placeholder should eventually
// be resolved, or why it couldn't be.
type TypeNameSource int

const (
	// SourceReference is a same-file forward use, resolved once the
	// defining symbol in the same file has been lowered.
	SourceReference TypeNameSource = iota
	// SourceCrossReference is an x-descriptor tag naming a type defined
	// in some other file, resolved by internal/dedup once every file has
	// been lowered.
	SourceCrossReference
	// SourceAnonymous names a type with no tag at all (an anonymous
	// struct/union/enum); it can only ever be resolved structurally.
	SourceAnonymous
	// SourceError marks a reference that could not be resolved: a
	// dangling same-file number, an unknown cross-file tag, or the
	// downstream fallout of a truncated stab.
	SourceError
)

// TypeName is a placeholder reference to a type defined elsewhere, carrying
// enough information for internal/dedup to substitute the real node once
// dedup has run. After dedup, CanonicalIndex is valid unless Source ==
// SourceError.
type TypeName struct {
	Common
	Source                TypeNameSource
	ReferencedFile        int
	ReferencedStabsNumber int
	Text                  string
	CanonicalIndex        int
	HasCanonicalIndex     bool
}

func (*TypeName) Kind() Kind { return KindTypeName }

// SourceFile is one compilation unit's lowered types, functions, and
// globals, plus the per-file map from STABS type number to canonical index
// that internal/dedup populates (empty immediately after lowering).
type SourceFile struct {
	Common
	Path                               string
	RelativePath                       string
	TextAddress                        uint32
	Types                              []Node
	Functions                          []*FunctionDefinition
	Globals                            []*Variable
	Labels                             []*Label
	StabsTypeNumberToDeduplicatedIndex map[int]int
	// ByStabsNumber is this file's own pre-dedup index of every type this
	// file has already lowered, keyed by its STABS type number. It backs
	// TypeName{Source: SourceReference} resolution both during lowering
	// (self/forward references within this file) and during
	// internal/dedup's structural hashing (dereferencing same-file
	// placeholders to detect cycles).
	ByStabsNumber map[int]Node
}

func (*SourceFile) Kind() Kind { return KindSourceFile }

// Label is a named code address that is neither a function entry nor a
// variable — a branch target or case label captured from an mdebug LABEL
// symbol, kept so the Symbol Database's Label list (spec'd alongside
// DataType/Function/GlobalVariable/SourceFile) has real data to publish.
type Label struct {
	Common
	Address uint32
}

func (*Label) Kind() Kind { return KindLabel }

// Common accessors for every variant. Defined explicitly per type (rather
// than naming the embedded field's promoted method after the interface
// method) to keep the field named Common and the accessor named Common
// unambiguous at call sites.
func (n *Array) Common() *Common               { return &n.Common }
func (n *Bitfield) Common() *Common            { return &n.Common }
func (n *Enum) Common() *Common                { return &n.Common }
func (n *StructOrUnion) Common() *Common       { return &n.Common }
func (n *Pointer) Common() *Common             { return &n.Common }
func (n *Reference) Common() *Common           { return &n.Common }
func (n *PointerToDataMember) Common() *Common { return &n.Common }
func (n *FunctionType) Common() *Common        { return &n.Common }
func (n *FunctionDefinition) Common() *Common  { return &n.Common }
func (n *Variable) Common() *Common            { return &n.Common }
func (n *TypeName) Common() *Common            { return &n.Common }
func (n *SourceFile) Common() *Common          { return &n.Common }
func (n *Builtin) Common() *Common             { return &n.Common }
func (n *Label) Common() *Common               { return &n.Common }
