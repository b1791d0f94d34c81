// Package xdebug provides the only logging and assertion surface in this
// module: thin stderr tracing, filtered by the -ccc.filter regexp flag, in
// the spirit of a library that doesn't want to impose a structured logger on
// its embedders. There is no build-tag gate: Log writes every line unless a
// filter is set and the line does not match it.
package xdebug

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/timandy/routine"
)

var (
	pattern  atomic.Pointer[regexp.Regexp]
	errCount atomic.Int64
)

func init() {
	flag.Func("ccc.filter", "regexp to filter debug trace lines by", func(s string) error {
		re, err := regexp.Compile(s)
		if err != nil {
			return err
		}
		pattern.Store(re)
		return nil
	})
}

// Log prints a trace line to stderr, tagged with the caller's package, file,
// line, and goroutine id. ctx is an optional leading (format, args...) pair
// used to identify a group of related calls (e.g. "file=%s", path).
func Log(ctx []any, operation, format string, args ...any) {
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	name := fn.Name()
	if slash := strings.LastIndex(name, "/"); slash >= 0 {
		name = name[slash+1:]
	}
	pkg := name
	if dot := strings.Index(pkg, "."); dot >= 0 {
		pkg = pkg[:dot]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s:%d [g%04d", pkg, filepath.Base(file), line, routine.Goid())
	if len(ctx) >= 1 {
		fmt.Fprintf(&b, ", "+ctx[0].(string), ctx[1:]...)
	}
	fmt.Fprintf(&b, "] %s: ", operation)
	fmt.Fprintf(&b, format, args...)

	if re := pattern.Load(); re != nil && !re.MatchString(b.String()) {
		return
	}

	b.WriteByte('\n')
	_, _ = os.Stderr.WriteString(b.String())
}

// Assert panics if cond is false. Used to guard invariants that a caller
// violating them would indicate a bug in this module, not bad input — bad
// input is always reported through an error return, never an assertion.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("ccc: internal assertion failed: "+format, args...))
	}
}

// NoteError increments the process-wide localized-error counter. Parsers
// call this whenever they discard a malformed symbol instead of aborting,
// per the scoped-failure policy; callers can read it back with ErrorCount to
// surface a summary without turning a localized error into a fatal one.
func NoteError() {
	errCount.Add(1)
}

// ErrorCount returns the number of localized errors noted since process
// start via NoteError.
func ErrorCount() int64 {
	return errCount.Load()
}
