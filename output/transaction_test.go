package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfmu/operation"
)

func TestOpenOutputNotSpecified(t *testing.T) {
	_, err := Open(Target{}, "")
	assert.Equal(t, operation.OutputNotSpecified, operation.KindOf(err))
}

func TestOpenDefaultsToInputPath(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(in, []byte("original"), 0o600))

	_, err := Open(Target{}, in)
	require.Error(t, err)
	assert.Equal(t, operation.OutputExists, operation.KindOf(err))

	tx, err := Open(Target{Overwrite: true}, in)
	require.NoError(t, err)
	assert.Equal(t, in, tx.Path())
	tx.Abort()
}

func TestOutputExistsLeavesFileUntouched(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, os.WriteFile(out, []byte("keep me"), 0o600))

	_, err := Open(Target{Path: out}, "")
	f := operation.AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, operation.OutputExists, f.Kind)
	assert.Equal(t, out, f.Args["outputFile"])

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))
}

func TestCommitWritesWholeBuffer(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")

	tx, err := Open(Target{Path: out}, "")
	require.NoError(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "open must not touch the filesystem")

	_, err = tx.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = tx.Write([]byte("world"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, tx.Len())

	require.NoError(t, tx.Commit())
	assert.Equal(t, Committed, tx.State())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	// Abort after commit has no observable effect.
	tx.Abort()
	assert.Equal(t, Committed, tx.State())
	got, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestCommitOverwritePreservesMode(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, os.WriteFile(out, []byte("old content that is longer"), 0o600))

	tx, err := Open(Target{Path: out, Overwrite: true}, "")
	require.NoError(t, err)
	_, err = tx.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestAbortDiscards(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, os.WriteFile(out, []byte("before"), 0o644))

	tx, err := Open(Target{Path: out, Overwrite: true}, "")
	require.NoError(t, err)
	_, err = tx.Write([]byte("partial"))
	require.NoError(t, err)

	tx.Abort()
	tx.Abort()
	assert.Equal(t, Aborted, tx.State())
	assert.Error(t, tx.Commit())

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "before", string(got))

	_, err = tx.Write([]byte("late"))
	assert.Error(t, err)
}

func TestCommitOpenFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "out.pdf")

	tx, err := Open(Target{Path: out}, "")
	require.NoError(t, err)
	_, err = tx.Write([]byte("data"))
	require.NoError(t, err)

	err = tx.Commit()
	assert.Equal(t, operation.OutputOpen, operation.KindOf(err))
	assert.Equal(t, Staged, tx.State())

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	tx.Abort()
}
