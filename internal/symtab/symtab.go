// Package symtab is the publication container the rest of the pipeline
// writes into: per-kind lists of data types, functions, global variables,
// labels, and source files, each addressed by a phantom-typed handle that
// can never alias across kinds, fronted by a Guardian that gives readers a
// generation-checked, mutex-guarded view and gives a single writer the
// ability to swap the whole database out atomically.
package symtab

import (
	"sync"

	"mdebug.dev/ccc/internal/ast"
)

// Handle is a generational index into one per-kind list: a slot position
// plus the generation stamped on that slot when it was added. K is a
// marker type with no fields, used only to keep handles from different
// lists from type-checking as interchangeable — a phantom-typed Addr[T]
// applied to a two-field struct instead of a raw integer, since a handle
// needs both an index and a generation.
type Handle[K any] struct {
	index      uint32
	generation uint32
}

// Marker kind types, one per per-kind list. They carry no data; they exist
// only to instantiate Handle so two kinds' handles are distinct Go types.
type (
	dataTypeKind       struct{}
	functionKind       struct{}
	globalVariableKind struct{}
	labelKind          struct{}
	sourceFileKind     struct{}
)

// Named handle types, one per per-kind list.
type (
	DataTypeHandle       = Handle[dataTypeKind]
	FunctionHandle       = Handle[functionKind]
	GlobalVariableHandle = Handle[globalVariableKind]
	LabelHandle          = Handle[labelKind]
	SourceFileHandle     = Handle[sourceFileKind]
)

// slot is one entry of a list: a value, the generation it was added under,
// and a soft-delete tombstone. Removal never shifts indices or frees the
// slot for reuse at a different generation; a tombstoned slot simply stops
// answering to lookups and iteration without needing a fresh generation to
// do so.
type slot[T any] struct {
	value      T
	generation uint32
	tombstoned bool
}

// list is the generational, soft-deleting storage behind one per-kind list
// (DataType, Function, GlobalVariable, Label, SourceFile). Every exported
// kind wraps one of these, parameterized by its own marker kind K.
type list[K any, T any] struct {
	slots     []slot[T]
	byName    map[string]int32
	byAddress map[uint32]int32
	nextGen   uint32
}

func newList[K any, T any]() *list[K, T] {
	return &list[K, T]{byName: make(map[string]int32), byAddress: make(map[uint32]int32)}
}

// add appends value, returning the handle that addresses it. If hasAddress
// is set and a live entry already occupies address, that entry is
// tombstoned first — the unique-address enforcement spec'd for add.
func (l *list[K, T]) add(name string, address uint32, hasAddress bool, value T) Handle[K] {
	if hasAddress {
		if prev, ok := l.byAddress[address]; ok {
			l.slots[prev].tombstoned = true
		}
	}

	l.nextGen++
	idx := uint32(len(l.slots))
	l.slots = append(l.slots, slot[T]{value: value, generation: l.nextGen})

	if name != "" {
		l.byName[name] = int32(idx)
	}
	if hasAddress {
		l.byAddress[address] = int32(idx)
	}
	return Handle[K]{index: idx, generation: l.nextGen}
}

func (l *list[K, T]) valid(h Handle[K]) bool {
	return int(h.index) < len(l.slots) && l.slots[h.index].generation == h.generation
}

// remove tombstones h's slot, reporting whether h named a live entry.
func (l *list[K, T]) remove(h Handle[K]) bool {
	if !l.valid(h) || l.slots[h.index].tombstoned {
		return false
	}
	l.slots[h.index].tombstoned = true
	return true
}

// get returns h's value, or ok=false if h is out of range, stale, or names
// a tombstoned entry.
func (l *list[K, T]) get(h Handle[K]) (value T, ok bool) {
	if !l.valid(h) || l.slots[h.index].tombstoned {
		return value, false
	}
	return l.slots[h.index].value, true
}

func (l *list[K, T]) findByName(name string) (Handle[K], bool) {
	idx, ok := l.byName[name]
	if !ok || l.slots[idx].tombstoned {
		return Handle[K]{}, false
	}
	return Handle[K]{index: uint32(idx), generation: l.slots[idx].generation}, true
}

func (l *list[K, T]) findByAddress(addr uint32) (Handle[K], bool) {
	idx, ok := l.byAddress[addr]
	if !ok || l.slots[idx].tombstoned {
		return Handle[K]{}, false
	}
	return Handle[K]{index: uint32(idx), generation: l.slots[idx].generation}, true
}

// rangeLive visits every non-tombstoned entry in insertion order, stopping
// early if fn returns false.
func (l *list[K, T]) rangeLive(fn func(Handle[K], T) bool) {
	for i := range l.slots {
		s := &l.slots[i]
		if s.tombstoned {
			continue
		}
		if !fn(Handle[K]{index: uint32(i), generation: s.generation}, s.value) {
			return
		}
	}
}

// Database is one immutable snapshot of the five per-kind lists. Built up
// via the Add* methods while a load is in progress, then handed to a
// Guardian's Overwrite — after that it is logically immutable and is only
// ever replaced wholesale, never mutated in place.
type Database struct {
	types       *list[dataTypeKind, ast.Node]
	functions   *list[functionKind, *ast.FunctionDefinition]
	globals     *list[globalVariableKind, *ast.Variable]
	labels      *list[labelKind, *ast.Label]
	sourceFiles *list[sourceFileKind, *ast.SourceFile]
}

// NewDatabase returns an empty Database ready to be populated.
func NewDatabase() *Database {
	return &Database{
		types:       newList[dataTypeKind, ast.Node](),
		functions:   newList[functionKind, *ast.FunctionDefinition](),
		globals:     newList[globalVariableKind, *ast.Variable](),
		labels:      newList[labelKind, *ast.Label](),
		sourceFiles: newList[sourceFileKind, *ast.SourceFile](),
	}
}

// AddDataType appends a canonical type (as produced by internal/dedup),
// keyed by name; data types have no address.
func (db *Database) AddDataType(t ast.Node) DataTypeHandle {
	return db.types.add(t.Common().Name, 0, false, t)
}

func (db *Database) RemoveDataType(h DataTypeHandle) bool { return db.types.remove(h) }

func (db *Database) DataType(h DataTypeHandle) (ast.Node, bool) { return db.types.get(h) }

func (db *Database) FindDataTypeByName(name string) (DataTypeHandle, bool) {
	return db.types.findByName(name)
}

// RangeDataTypes visits every live data type in insertion order.
func (db *Database) RangeDataTypes(fn func(DataTypeHandle, ast.Node) bool) {
	db.types.rangeLive(fn)
}

// AddFunction appends a function, keyed by name and by its entry address
// (addresses are enforced unique: a second function claiming the same
// entry point tombstones the first).
func (db *Database) AddFunction(fn *ast.FunctionDefinition) FunctionHandle {
	return db.functions.add(fn.Common.Name, fn.AddressLow, true, fn)
}

func (db *Database) RemoveFunction(h FunctionHandle) bool { return db.functions.remove(h) }

func (db *Database) Function(h FunctionHandle) (*ast.FunctionDefinition, bool) {
	return db.functions.get(h)
}

func (db *Database) FindFunctionByName(name string) (FunctionHandle, bool) {
	return db.functions.findByName(name)
}

func (db *Database) FindFunctionByAddress(addr uint32) (FunctionHandle, bool) {
	return db.functions.findByAddress(addr)
}

func (db *Database) RangeFunctions(fn func(FunctionHandle, *ast.FunctionDefinition) bool) {
	db.functions.rangeLive(fn)
}

// AddGlobalVariable appends a global, keyed by name and (if its storage is
// a fixed address) by address.
func (db *Database) AddGlobalVariable(v *ast.Variable) GlobalVariableHandle {
	addr, hasAddr := uint32(0), false
	if g, ok := v.Storage.(ast.Global); ok {
		addr, hasAddr = g.Address, true
	}
	return db.globals.add(v.Common.Name, addr, hasAddr, v)
}

func (db *Database) RemoveGlobalVariable(h GlobalVariableHandle) bool { return db.globals.remove(h) }

func (db *Database) GlobalVariable(h GlobalVariableHandle) (*ast.Variable, bool) {
	return db.globals.get(h)
}

func (db *Database) FindGlobalVariableByName(name string) (GlobalVariableHandle, bool) {
	return db.globals.findByName(name)
}

func (db *Database) FindGlobalVariableByAddress(addr uint32) (GlobalVariableHandle, bool) {
	return db.globals.findByAddress(addr)
}

func (db *Database) RangeGlobalVariables(fn func(GlobalVariableHandle, *ast.Variable) bool) {
	db.globals.rangeLive(fn)
}

// AddLabel appends a label, keyed by name and address.
func (db *Database) AddLabel(l *ast.Label) LabelHandle {
	return db.labels.add(l.Common.Name, l.Address, true, l)
}

func (db *Database) RemoveLabel(h LabelHandle) bool { return db.labels.remove(h) }

func (db *Database) Label(h LabelHandle) (*ast.Label, bool) { return db.labels.get(h) }

func (db *Database) FindLabelByName(name string) (LabelHandle, bool) {
	return db.labels.findByName(name)
}

func (db *Database) FindLabelByAddress(addr uint32) (LabelHandle, bool) {
	return db.labels.findByAddress(addr)
}

func (db *Database) RangeLabels(fn func(LabelHandle, *ast.Label) bool) {
	db.labels.rangeLive(fn)
}

// AddSourceFile appends a source file, keyed by its path; source files
// have no address.
func (db *Database) AddSourceFile(f *ast.SourceFile) SourceFileHandle {
	return db.sourceFiles.add(f.Path, 0, false, f)
}

func (db *Database) RemoveSourceFile(h SourceFileHandle) bool { return db.sourceFiles.remove(h) }

func (db *Database) SourceFile(h SourceFileHandle) (*ast.SourceFile, bool) {
	return db.sourceFiles.get(h)
}

func (db *Database) FindSourceFileByName(path string) (SourceFileHandle, bool) {
	return db.sourceFiles.findByName(path)
}

func (db *Database) RangeSourceFiles(fn func(SourceFileHandle, *ast.SourceFile) bool) {
	db.sourceFiles.rangeLive(fn)
}

// SnapshotHandle is the Guardian's own handle: not an index into any one
// list, but a stamp of "the database version this handle was issued
// against". Deliberately a different type than Handle[K] above — a
// SnapshotHandle gates whether a Database may be read at all, while a
// Handle[K] addresses one entry inside a Database already known to be
// current.
type SnapshotHandle struct {
	generation uint64
}

// Guardian is the sole concurrency surface over a Database: a single mutex
// plus a monotonically increasing generation counter, one per Guardian,
// backing Overwrite/Read's publish-and-invalidate contract. A plain
// sync.Mutex and uint64 counter are enough here: a lock-free atomic
// wrapper built for CASing a float through an integer-only atomic solves
// a different problem than a monotonic integer counter ever runs into,
// so it isn't a fit.
type Guardian struct {
	mu         sync.Mutex
	generation uint64
	db         *Database
}

// NewGuardian wraps db as generation 1.
func NewGuardian(db *Database) *Guardian {
	return &Guardian{generation: 1, db: db}
}

// CurrentHandle returns a handle valid for reading the Guardian's database
// as of this call. The handle is invalidated by any subsequent Overwrite.
func (g *Guardian) CurrentHandle() SnapshotHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return SnapshotHandle{generation: g.generation}
}

// Overwrite atomically replaces the guarded database and bumps the
// generation, invalidating every handle issued before this call returns.
// No I/O runs while the mutex is held: db must already be fully built.
func (g *Guardian) Overwrite(db *Database) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.db = db
	g.generation++
}

// Read invokes callback with the guarded database iff h is still the
// current generation, returning whether it ran. The mutex is held for the
// duration of callback, so callback must not itself call back into this
// Guardian or block on unrelated I/O.
func (g *Guardian) Read(h SnapshotHandle, callback func(*Database)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h.generation != g.generation {
		return false
	}
	callback(g.db)
	return true
}
