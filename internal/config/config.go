// Package config loads the optional YAML session file that configures a
// load: known overlay module paths, extra section-name recognizers, a DBX
// register-table override, the string-literal refinement clamp, and
// cmd/ccc's output mode. It decodes yaml-tagged structs with
// gopkg.in/yaml.v3 rather than introducing a framework like spf13/viper
// that nothing else here pulls in. Of these settings only the clamp is read
// by the rest of the module; the others are parsed and kept on Session.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultStringLiteralClamp is the fallback length (in bytes) refinement
// reads pointed-to char data before giving up on a printable C string
// literal and falling back to the address form. The original always used
// the bare address form for char pointers; this clamp is an additive
// convenience on top of that.
const defaultStringLiteralClamp = 200

// OutputMode selects cmd/ccc's diagnostic rendering.
type OutputMode string

const (
	OutputPlain OutputMode = "plain"
	OutputColor OutputMode = "color"
)

// Session is one load's configuration, read from an optional YAML file.
// Every field has a usable zero value, so a nil *Session (no file given) is
// equivalent to an empty one once defaulted by Load.
type Session struct {
	// OverlayModules are additional module image paths (local or
	// user@host:/path, per internal/loader). The field is only parsed: the
	// root Load takes its overlays from Options.Overlays and does not read
	// it.
	OverlayModules []string `yaml:"overlay_modules"`

	// ExtraSections maps a section name to a storage-location tag. The
	// field is only parsed: internal/elf's GNU link-once decoder does not
	// read it.
	ExtraSections map[string]string `yaml:"extra_sections"`

	// RegisterOverrides maps DBX numbers to register names. The field is
	// only parsed: internal/registers' table is fixed and does not read it.
	RegisterOverrides map[int]string `yaml:"register_overrides"`

	// StringLiteralClamp is the maximum number of bytes internal/refine
	// will read when formatting a char* global as a quoted string literal
	// before falling back to the address form. Zero means "use the
	// default", not "disabled" — there is no way to disable the clamp,
	// since an unterminated string in corrupt program data must not run
	// away reading unbounded memory.
	StringLiteralClamp int `yaml:"string_literal_clamp"`

	// Output names a diagnostic rendering mode. The field is only parsed:
	// cmd/ccc picks colour from whether stderr is a terminal and does not
	// read it.
	Output OutputMode `yaml:"output"`
}

// Load reads and parses the YAML session file at path, starting from
// Default's values. Callers with no path use Default directly.
func Load(path string) (*Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ccc/config: read %s: %w", path, err)
	}

	s := Default()
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("ccc/config: parse %s: %w", path, err)
	}
	return s, nil
}

// Default returns a Session with every field at its zero-config default,
// for callers that have no session file to load.
func Default() *Session {
	return &Session{
		StringLiteralClamp: defaultStringLiteralClamp,
		Output:             OutputPlain,
	}
}

// Clamp returns s's configured string-literal clamp, or the default if s
// is nil or its clamp is unset (zero).
func (s *Session) Clamp() int {
	if s == nil || s.StringLiteralClamp <= 0 {
		return defaultStringLiteralClamp
	}
	return s.StringLiteralClamp
}
