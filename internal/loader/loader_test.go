package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdebug.dev/ccc/internal/loader"
)

// buildImage writes a minimal 32-bit MIPS ELF (no sections, no program
// headers) to path, following the same header layout
// internal/elf's own tests construct by hand.
func buildImage(t *testing.T, path string) {
	t.Helper()

	const ehsize = 52
	buf := make([]byte, ehsize)
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	buf[18], buf[19] = 8, 0 // EM_MIPS

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestAcquireReadsLocalFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.out")
	buildImage(t, path)

	img, err := loader.Acquire(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, img.Ref)
	assert.NotNil(t, img.File)
	assert.NotEqual(t, [16]byte{}, img.LoadID)
}

func TestAcquireRejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loader.Acquire(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestAcquireAllPreservesOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var refs []string
	for _, name := range []string{"primary.out", "overlay1.out", "overlay2.out"} {
		path := filepath.Join(dir, name)
		buildImage(t, path)
		refs = append(refs, path)
	}

	images, err := loader.AcquireAll(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, images, len(refs))
	for i, img := range images {
		assert.Equal(t, refs[i], img.Ref)
	}
}

func TestAcquireAllPropagatesFirstError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.out")
	buildImage(t, good)

	_, err := loader.AcquireAll(context.Background(), []string{good, filepath.Join(dir, "missing.out")})
	assert.Error(t, err)
}
