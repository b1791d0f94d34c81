package demangle_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdebug.dev/ccc/internal/demangle"
)

// stubDemangler writes a tiny c++filt-compatible shell script mapping
// _Z3fooi to "foo(int)" and passing everything else through unchanged,
// so tests don't depend on a real demangler being installed.
func stubDemangler(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stub-cxxfilt.sh")
	script := "#!/bin/sh\n" +
		"for a in \"$@\"; do\n" +
		"  case \"$a\" in\n" +
		"    _Z3fooi) echo 'foo(int)' ;;\n" +
		"    *) echo \"$a\" ;;\n" +
		"  esac\n" +
		"done\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestOneDemanglesAKnownSymbol(t *testing.T) {
	t.Parallel()

	d := demangle.New(stubDemangler(t))
	out, err := d.One("_Z3fooi")
	require.NoError(t, err)
	assert.Equal(t, "foo(int)", out)
}

func TestManyPreservesOrder(t *testing.T) {
	t.Parallel()

	d := demangle.New(stubDemangler(t))
	out, err := d.Many([]string{"_Z3fooi", "plain_c_name", "_Z3fooi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo(int)", "plain_c_name", "foo(int)"}, out)
}

func TestManyReportsMissingBinary(t *testing.T) {
	t.Parallel()

	d := demangle.New(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := d.Many([]string{"_Z3fooi"})
	assert.Error(t, err)
}
