// Package demangle shells out to an external c++filt-compatible binary to
// turn a mangled C++ symbol name into its demangled form. C++ name
// demangling is an external collaborator, not something this module
// reimplements, so this package is a thin, shell-quoted wrapper over
// os/exec rather than a from-scratch demangler.
package demangle

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// Demangler shells out to a named binary (c++filt by default) to demangle
// symbol names. One invocation per batch passes every name as a separate
// argument, each individually shell-quoted, since c++filt accepts
// multiple symbols on one command line and prints one demangled line per
// input.
type Demangler struct {
	binary string
}

// New returns a Demangler that shells out to binary. An empty binary
// defaults to "c++filt".
func New(binary string) *Demangler {
	if binary == "" {
		binary = "c++filt"
	}
	return &Demangler{binary: binary}
}

// One demangles a single mangled symbol name. On any failure to run the
// demangler (binary missing, nonzero exit), name is returned unchanged
// alongside the error — a name that isn't actually mangled demangles to
// itself in every c++filt-compatible implementation, so "leave it as-is"
// is already the expected behavior for non-symbols.
func (d *Demangler) One(name string) (string, error) {
	out, err := d.Many([]string{name})
	if err != nil {
		return name, err
	}
	return out[0], nil
}

// Many demangles a batch of mangled names in one subprocess invocation,
// preserving order. Every argument is quoted with al.essio.dev/pkg/shellescape
// before being assembled into the shell command line handed to os/exec,
// since the binary name itself may come from a user-supplied configuration
// path containing spaces.
func (d *Demangler) Many(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	argv := make([]string, 0, len(names)+1)
	argv = append(argv, d.binary)
	argv = append(argv, names...)
	line := shellescape.QuoteCommand(argv)

	cmd := exec.Command("sh", "-c", line)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("demangle: run %s: %w: %s", d.binary, err, stderr.String())
	}

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != len(names) {
		return nil, fmt.Errorf("demangle: %s: expected %d lines, got %d", d.binary, len(names), len(lines))
	}
	return lines, nil
}
