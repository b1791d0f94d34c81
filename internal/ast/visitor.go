package ast

import (
	"sync"

	"github.com/timandy/routine"
)

// Visitor is a goroutine-local cycle guard for walking the published,
// otherwise-immutable AST. See Common's doc comment for why this lives
// per-walk-per-goroutine instead of as a shared per-node field:
// the Symbol Database hands out the same tree to arbitrarily many
// concurrent readers, so a shared "currently processing" bool would race.
type Visitor struct {
	mu          sync.Mutex
	byGoroutine map[int64]map[Node]bool
}

// NewVisitor returns a Visitor ready to guard one or more walks. A single
// Visitor may be reused across walks on different goroutines; each
// goroutine gets its own independent visited set.
func NewVisitor() *Visitor {
	return &Visitor{byGoroutine: make(map[int64]map[Node]bool)}
}

// Enter records n as being visited by the calling goroutine and reports
// whether it was already on that goroutine's stack. Callers must pair a
// successful Enter with a deferred Leave.
func (v *Visitor) Enter(n Node) (alreadyVisiting bool) {
	gid := routine.Goid()

	v.mu.Lock()
	set, ok := v.byGoroutine[gid]
	if !ok {
		set = make(map[Node]bool)
		v.byGoroutine[gid] = set
	}
	v.mu.Unlock()

	// set itself is only ever touched by this one goroutine (gid is
	// unique to it), so no lock is needed past the outer map lookup.
	if set[n] {
		return true
	}
	set[n] = true
	return false
}

// Leave removes n from the calling goroutine's visited set.
func (v *Visitor) Leave(n Node) {
	gid := routine.Goid()
	v.mu.Lock()
	set := v.byGoroutine[gid]
	v.mu.Unlock()
	if set != nil {
		delete(set, n)
	}
}
