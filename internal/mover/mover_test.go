package mover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagingrc/omero-intake/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDigestKnownValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	writeFile(t, path, "abc")

	sum, err := Digest(path)
	require.NoError(t, err)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", sum)
}

func TestDigestMissingFile(t *testing.T) {
	_, err := Digest(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestMoveRoundTrip(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "x.tif")
	writeFile(t, src, "pixel data")
	before, err := Digest(src)
	require.NoError(t, err)

	m := NewMover(3)
	dest, err := m.Move(src, dstDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "x.tif"), dest)

	after, err := Digest(dest)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source must be deleted after a verified move")

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerm), info.Mode().Perm())
}

func TestMoveOverwritesUnrelatedDestinationFile(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "x.tif")
	writeFile(t, src, "the real content")
	writeFile(t, filepath.Join(dstDir, "x.tif"), "stale unrelated bytes")

	want, err := Digest(src)
	require.NoError(t, err)

	m := NewMover(3)
	dest, err := m.Move(src, dstDir)
	require.NoError(t, err)

	got, err := Digest(dest)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

// corruptingCopy flips the copied bytes for the first n attempts.
func corruptingCopy(n int) func(src, dst string) error {
	attempt := 0
	return func(src, dst string) error {
		attempt++
		if attempt <= n {
			return os.WriteFile(dst, []byte("corrupted"), 0o666)
		}
		return copyFile(src, dst)
	}
}

func TestMoveRetriesUntilDigestMatches(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "x.tif")
	writeFile(t, src, "good bytes")

	m := NewMover(3)
	m.copyFn = corruptingCopy(2)

	dest, err := m.Move(src, dstDir)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "good bytes", string(data))
}

func TestMoveExhaustedIsNonDestructive(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "x.tif")
	writeFile(t, src, "precious bytes")

	m := NewMover(3)
	m.copyFn = corruptingCopy(99)

	_, err := m.Move(src, dstDir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotMoved))
	assert.True(t, errors.HasCategory(err, errors.CategoryIntegrity))

	// Source untouched and byte-identical.
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "precious bytes", string(data))

	// No corrupt copy left behind.
	_, err = os.Stat(filepath.Join(dstDir, "x.tif"))
	assert.True(t, os.IsNotExist(err))
}

func TestMoveMissingSource(t *testing.T) {
	m := NewMover(3)
	_, err := m.Move(filepath.Join(t.TempDir(), "nope.tif"), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFileIO))
}

func TestMoveMissingDestinationDir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "x.tif")
	writeFile(t, src, "bytes")

	m := NewMover(3)
	_, err := m.Move(src, filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)

	// Source must survive.
	_, statErr := os.Stat(src)
	assert.NoError(t, statErr)
}

func TestRetryPolicyAccounting(t *testing.T) {
	var attempts, cleanups int
	policy := RetryPolicy{
		MaxTries:  3,
		OnFailure: func(attempt int, err error) { cleanups++ },
	}

	err := policy.Do(func(attempt int) error {
		attempts++
		if attempt < 3 {
			return errors.NewStd("try again")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, cleanups)
}

func TestRetryPolicyExhaustionReturnsLastError(t *testing.T) {
	sentinel := errors.NewStd("still broken")
	policy := RetryPolicy{MaxTries: 2}
	err := policy.Do(func(attempt int) error { return sentinel })
	assert.Equal(t, sentinel, err)
}
