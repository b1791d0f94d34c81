package ast

import (
	"strconv"
	"strings"

	"mdebug.dev/ccc/internal/mdebug"
	"mdebug.dev/ccc/internal/stabs"
	"mdebug.dev/ccc/internal/xdebug"
)

// Analyser lowers one compilation unit's STABS symbol stream into a
// SourceFile. It is scoped to exactly one file descriptor: a fresh Analyser
// must be created per file, since its in-progress and ByStabsNumber caches
// are keyed by type number alone (file-local).
type Analyser struct {
	fileIndex  int
	parser     *stabs.Parser
	sourceFile *SourceFile
	inProgress map[int]bool

	currentFunc *FunctionDefinition
	blockDepth  int
}

// NewAnalyser returns an Analyser for the file at fileIndex (the file's
// position in the module-wide file list, matching the File half of every
// stabs.TypeNumber it will emit).
func NewAnalyser(fileIndex int) *Analyser {
	return &Analyser{
		fileIndex:  fileIndex,
		parser:     stabs.NewParser(fileIndex),
		inProgress: make(map[int]bool),
	}
}

// AnalyseFile walks fd's local symbol stream in order, maintaining a
// file/function/block scope stack, and returns the lowered SourceFile.
// Malformed symbols are localized: they're noted via xdebug.NoteError and
// skipped rather than aborting the rest of the file.
func (a *Analyser) AnalyseFile(fd mdebug.FileDescriptor) *SourceFile {
	a.sourceFile = &SourceFile{
		Common:                             Common{Name: fd.Name},
		Path:                               fd.Name,
		RelativePath:                       fd.Name,
		TextAddress:                        uint32(fd.TextAddress),
		ByStabsNumber:                      make(map[int]Node),
		StabsTypeNumberToDeduplicatedIndex: make(map[int]int),
	}

	procIdx := 0
	for _, sym := range fd.Symbols {
		a.visitSymbol(sym, fd, &procIdx)
	}
	a.closeCurrentFunction()

	return a.sourceFile
}

func (a *Analyser) visitSymbol(sym mdebug.Symbol, fd mdebug.FileDescriptor, procIdx *int) {
	switch sym.Type {
	case mdebug.PROC, mdebug.STATICPROC:
		a.beginFunction(sym, fd, procIdx)
	case mdebug.BLOCK:
		a.blockDepth++
	case mdebug.END:
		if a.blockDepth > 0 {
			a.blockDepth--
			return
		}
		a.closeCurrentFunction()
	case mdebug.TYPEDEF:
		a.defineType(sym)
	case mdebug.GLOBAL:
		a.defineGlobal(sym, StorageClassExtern)
	case mdebug.STATIC:
		a.defineGlobal(sym, StorageClassStatic)
	case mdebug.PARAM, mdebug.LOCAL:
		a.defineLocal(sym)
	case mdebug.CONSTANT:
		a.defineConstant(sym)
	case mdebug.FILE:
		if a.currentFunc != nil && sym.Str != "" {
			a.currentFunc.SubFiles = append(a.currentFunc.SubFiles, sym.Str)
		}
	case mdebug.LABEL:
		a.defineLabel(sym)
	case mdebug.MEMBER, mdebug.NIL:
		// Struct/union members arrive inline in the owning TYPEDEF's
		// descriptor body, never as a standalone local symbol, so MEMBER
		// never reaches here in practice.
	}
}

func (a *Analyser) closeCurrentFunction() {
	if a.currentFunc == nil {
		return
	}
	a.sourceFile.Functions = append(a.sourceFile.Functions, a.currentFunc)
	a.currentFunc = nil
	a.blockDepth = 0
}

func (a *Analyser) beginFunction(sym mdebug.Symbol, fd mdebug.FileDescriptor, procIdx *int) {
	// A PROC with no matching END before it (a malformed or truncated
	// stream) still gets flushed rather than discarded.
	a.closeCurrentFunction()

	name := sym.Str
	var funcType Node = &FunctionType{Modifier: FunctionPlain}

	parsed, err := a.parser.ParseSymbol(sym.Str)
	if err != nil {
		xdebug.NoteError()
	} else {
		name = parsed.Name
		lowered := a.lowerByNumber(parsed.Type)
		if ft, ok := lowered.(*FunctionType); ok {
			funcType = ft
		} else {
			funcType = &FunctionType{Return: lowered, Modifier: FunctionPlain}
		}
	}

	var addrLow, addrHigh uint32
	if *procIdx < len(fd.Procedures) {
		p := fd.Procedures[*procIdx]
		addrLow = uint32(p.Address)
		addrHigh = addrLow + p.Size
		*procIdx++
	}

	sc := StorageClassExtern
	if sym.Type == mdebug.STATICPROC {
		sc = StorageClassStatic
	}

	a.currentFunc = &FunctionDefinition{
		Common:      Common{Name: name, StorageClass: sc},
		Type:        funcType,
		AddressLow:  addrLow,
		AddressHigh: addrHigh,
	}
}

func (a *Analyser) defineType(sym mdebug.Symbol) {
	parsed, err := a.parser.ParseSymbol(sym.Str)
	if err != nil {
		xdebug.NoteError()
		return
	}
	node := a.lowerByNumber(parsed.Type)
	if c := node.Common(); c.Name == "" {
		c.Name = parsed.Name
	}
	a.sourceFile.Types = append(a.sourceFile.Types, node)
}

// defineGlobal handles both GLOBAL and STATIC mdebug symbols: a variable
// living at a fixed address in some data/bss section. Which section isn't
// knowable from the symbol stream alone — that's filled in by the root Load,
// which has the ELF section table in hand, matching the address against
// each section's range.
func (a *Analyser) defineGlobal(sym mdebug.Symbol, sc StorageClass) {
	parsed, err := a.parser.ParseSymbol(sym.Str)
	if err != nil {
		xdebug.NoteError()
		return
	}
	v := &Variable{
		Common:  Common{Name: parsed.Name, StorageClass: sc},
		Type:    a.lowerByNumber(parsed.Type),
		Storage: Global{Address: sym.Value},
	}
	a.sourceFile.Globals = append(a.sourceFile.Globals, v)
}

func (a *Analyser) defineLocal(sym mdebug.Symbol) {
	parsed, err := a.parser.ParseSymbol(sym.Str)
	if err != nil {
		xdebug.NoteError()
		return
	}

	var storage Storage = Stack{PointerOffset: int64(int32(sym.Value))}
	sc := StorageClassAuto
	if parsed.Descriptor == stabs.DescRegisterVar {
		storage = Register{DBXNumber: int(sym.Value)}
		sc = StorageClassRegister
	}

	v := &Variable{
		Common:  Common{Name: parsed.Name, StorageClass: sc},
		Type:    a.lowerByNumber(parsed.Type),
		Storage: storage,
		Block:   a.blockDepth,
	}

	if a.currentFunc != nil {
		a.currentFunc.Locals = append(a.currentFunc.Locals, v)
		return
	}
	// A PARAM/LOCAL symbol outside any open function is malformed input;
	// keep it visible as a file-scope global rather than dropping it
	// silently.
	a.sourceFile.Globals = append(a.sourceFile.Globals, v)
}

func (a *Analyser) defineConstant(sym mdebug.Symbol) {
	parsed, err := a.parser.ParseSymbol(sym.Str)
	if err != nil {
		xdebug.NoteError()
		return
	}
	v := &Variable{
		Common: Common{Name: parsed.Name, StorageClass: StorageClassNone},
		Type:   a.lowerByNumber(parsed.Type),
	}
	a.sourceFile.Globals = append(a.sourceFile.Globals, v)
}

// defineLabel records a LABEL symbol's name and address. Unlike every other
// symbol type, a label carries no STABS type string to parse: sym.Str is
// the bare label name.
func (a *Analyser) defineLabel(sym mdebug.Symbol) {
	a.sourceFile.Labels = append(a.sourceFile.Labels, &Label{
		Common:  Common{Name: sym.Str},
		Address: sym.Value,
	})
}

// lowerByNumber resolves a STABS type number to an AST node. A number
// belonging to another file always becomes a cross-reference placeholder:
// internal/dedup is the only stage that ever looks across files. A number
// currently being lowered (a struct referencing itself through a pointer,
// directly or through a chain of other types) also becomes a placeholder
// rather than a raw back-pointer, so the produced tree is never cyclic.
func (a *Analyser) lowerByNumber(num stabs.TypeNumber) Node {
	if num.File != a.fileIndex {
		return &TypeName{
			Common:                Common{StabsTypeNumber: num.Num},
			Source:                SourceCrossReference,
			ReferencedFile:        num.File,
			ReferencedStabsNumber: num.Num,
		}
	}

	if node, ok := a.sourceFile.ByStabsNumber[num.Num]; ok {
		return node
	}

	if a.inProgress[num.Num] {
		return &TypeName{
			Common:                Common{StabsTypeNumber: num.Num},
			Source:                SourceReference,
			ReferencedFile:        a.fileIndex,
			ReferencedStabsNumber: num.Num,
		}
	}

	stabsNode, ok := a.parser.Tree().Lookup(num.Num)
	if !ok {
		return &TypeName{
			Common:                Common{StabsTypeNumber: num.Num},
			Source:                SourceError,
			ReferencedFile:        a.fileIndex,
			ReferencedStabsNumber: num.Num,
		}
	}

	a.inProgress[num.Num] = true
	lowered := a.lowerNode(num.Num, stabsNode)
	delete(a.inProgress, num.Num)

	a.sourceFile.ByStabsNumber[num.Num] = lowered
	return lowered
}

func (a *Analyser) lowerNode(num int, node stabs.Node) Node {
	switch n := node.(type) {
	case *stabs.TypeRef:
		return a.lowerByNumber(n.Target)
	case *stabs.Array:
		return a.lowerArray(n)
	case *stabs.Range:
		return a.lowerRange(n)
	case *stabs.Function:
		return &FunctionType{Common: commonFromBase(&n.Base), Return: a.lowerByNumber(n.Return)}
	case *stabs.StructOrUnion:
		return a.lowerStructOrUnion(n)
	case *stabs.Enum:
		return a.lowerEnum(n)
	case *stabs.CrossRef:
		return &TypeName{
			Common: commonFromBase(&n.Base),
			Source: SourceCrossReference,
			Text:   n.Identifier,
		}
	case *stabs.Reference:
		return &Reference{Common: commonFromBase(&n.Base), Pointee: a.lowerByNumber(n.Pointee)}
	case *stabs.Pointer:
		return &Pointer{Common: commonFromBase(&n.Base), Pointee: a.lowerByNumber(n.Pointee)}
	case *stabs.PointerToMember:
		return &PointerToDataMember{
			Common: commonFromBase(&n.Base),
			Class:  a.lowerByNumber(n.Class),
			Member: a.lowerByNumber(n.Member),
		}
	case *stabs.Member:
		return a.lowerByNumber(n.Type)
	default:
		xdebug.NoteError()
		return &TypeName{
			Common:                Common{StabsTypeNumber: num},
			Source:                SourceError,
			ReferencedFile:        a.fileIndex,
			ReferencedStabsNumber: num,
		}
	}
}

func commonFromBase(b *stabs.Base) Common {
	return Common{Name: b.Name, StabsTypeNumber: b.Number.Num}
}

func (a *Analyser) lowerArray(n *stabs.Array) Node {
	elem := a.lowerByNumber(n.Element)
	count := int64(-1)
	if idxNode, ok := a.parser.Tree().Lookup(n.Index.Num); ok {
		if rng, ok := idxNode.(*stabs.Range); ok {
			if low, high, ok := parseRangeBounds(rng); ok {
				count = high - low + 1
			}
		}
	}
	return &Array{Common: commonFromBase(&n.Base), Element: elem, Count: count}
}

func parseRangeBounds(r *stabs.Range) (low, high int64, ok bool) {
	lo, err1 := strconv.ParseInt(r.Low, 10, 64)
	hi, err2 := strconv.ParseInt(r.High, 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// lowerRange turns a "range of N" descriptor into a Builtin. STABS encodes
// a scalar's signedness and width as the low/high bounds of a range over
// itself; this module's retrieved reference sources didn't carry the exact
// byte-size sentinel convention a real compiler emits for floating-point
// ranges, so when the low bound is empty float/double are told apart by the
// high bound alone ("4" or "8"), any other non-numeric range is taken as a
// float, and integer width is guessed from the magnitude of the bounds
// rather than read directly.
func (a *Analyser) lowerRange(n *stabs.Range) Node {
	class, sizeBits := classifyRange(n)
	return &Builtin{
		Common: Common{Name: n.Name, StabsTypeNumber: n.Number.Num, SizeBits: sizeBits},
		Class:  class,
	}
}

func classifyRange(r *stabs.Range) (BuiltinClass, int64) {
	low, errL := strconv.ParseInt(r.Low, 10, 64)
	high, errH := strconv.ParseInt(r.High, 10, 64)

	switch {
	case errL == nil && errH == nil && low == 0 && high == 1:
		return BuiltinBool, 8
	case errL == nil && errH == nil && low < 0:
		return BuiltinSignedInt, guessIntWidth(low, high)
	case errL == nil && errH == nil:
		return BuiltinUnsignedInt, guessIntWidth(low, high)
	case r.Low == "" && r.High == "4":
		return BuiltinFloat, 32
	case r.Low == "" && r.High == "8":
		return BuiltinDouble, 64
	default:
		return BuiltinFloat, 32
	}
}

func guessIntWidth(low, high int64) int64 {
	switch {
	case low >= -128 && high <= 255:
		return 8
	case low >= -32768 && high <= 65535:
		return 16
	case low >= -2147483648 && high <= 4294967295:
		return 32
	default:
		return 64
	}
}

func (a *Analyser) lowerStructOrUnion(n *stabs.StructOrUnion) Node {
	su := &StructOrUnion{
		Common:   commonFromBase(&n.Base),
		IsStruct: !n.IsUnion,
	}
	su.Common.SizeBits = int64(n.SizeBytes) * 8

	for _, bc := range n.BaseClasses {
		su.BaseClasses = append(su.BaseClasses, BaseClass{
			Type:       a.lowerByNumber(bc.Type),
			OffsetBits: int64(bc.OffsetBits),
			Virtual:    bc.Virtual,
		})
	}

	for _, f := range n.Fields {
		fieldType := a.lowerByNumber(f.Type)
		if isBitfieldWidth(f.SizeBits, fieldType) {
			fieldType = &Bitfield{
				Common:  Common{Name: f.Name},
				Storage: fieldType,
				Width:   int64(f.SizeBits),
				Offset:  int64(f.OffsetBits),
			}
		}
		su.Fields = append(su.Fields, Field{
			Name:          f.Name,
			Type:          fieldType,
			OffsetBits:    int64(f.OffsetBits),
			SizeBits:      int64(f.SizeBits),
			IsStatic:      f.IsStatic,
			StaticAddress: f.StaticAddress,
		})
	}

	for _, m := range n.Methods {
		lowered := a.lowerByNumber(m.Type)
		fn, ok := lowered.(*FunctionType)
		if !ok {
			fn = &FunctionType{Return: lowered}
		}
		fn.VtableIndex = m.VtableIndex
		switch {
		case m.Name == su.Common.Name:
			fn.Modifier = FunctionConstructor
		case strings.HasPrefix(m.Name, "~"):
			fn.Modifier = FunctionDestructor
		default:
			fn.Modifier = FunctionNonStaticMethod
		}
		su.MemberFunctions = append(su.MemberFunctions, MemberFunction{
			Name:   m.Name,
			Type:   fn,
			Access: m.Access,
		})
	}

	return su
}

// isBitfieldWidth reports whether a field's declared width differs from
// its type's natural size — the only signal STABS gives for "this member
// is packed into fewer bits than its type". Refinement never materializes
// a bitfield's value, only its width and offset.
func isBitfieldWidth(sizeBits int, t Node) bool {
	b, ok := t.(*Builtin)
	if !ok || sizeBits <= 0 {
		return false
	}
	return int64(sizeBits) != b.SizeBits
}

func (a *Analyser) lowerEnum(n *stabs.Enum) Node {
	en := &Enum{Common: commonFromBase(&n.Base)}
	for _, c := range n.Constants {
		en.Constants = append(en.Constants, EnumConstant{Name: c.Name, Value: c.Value})
	}
	return en
}
