package syncer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestReconcileCutoff(t *testing.T) {
	target, backup := t.TempDir(), t.TempDir()
	buildTree(t, target, map[string]string{
		"changed":   "target",
		"unchanged": "target",
		"extra":     "target",
		"olddir/f":  "x",
	})
	buildTree(t, backup, map[string]string{
		"changed":   "backup",
		"unchanged": "backup",
		"missing":   "backup",
		"sub/deep":  "backup",
	})

	cutoff := time.Now().Add(-time.Hour)
	setMtime(t, filepath.Join(backup, "changed"), cutoff.Add(time.Minute))
	setMtime(t, filepath.Join(backup, "unchanged"), cutoff.Add(-time.Minute))

	stats, err := Reconcile(target, backup, cutoff)
	require.NoError(t, err)

	got := snapshot(t, target)
	assert.Equal(t, map[string]string{
		"changed":   "backup",
		"unchanged": "target",
		"missing":   "backup",
		"sub":       "<dir>",
		"sub/deep":  "backup",
	}, got)

	assert.Equal(t, 3, stats.Copied)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 2, stats.Removed)
}

func TestReconcileWithoutCutoff(t *testing.T) {
	target, backup := t.TempDir(), t.TempDir()
	buildTree(t, target, map[string]string{"newer": "target", "older": "target"})
	buildTree(t, backup, map[string]string{"newer": "backup", "older": "backup"})

	now := time.Now()
	setMtime(t, filepath.Join(target, "newer"), now)
	setMtime(t, filepath.Join(backup, "newer"), now.Add(-time.Hour))
	setMtime(t, filepath.Join(target, "older"), now.Add(-time.Hour))
	setMtime(t, filepath.Join(backup, "older"), now)

	_, err := Reconcile(target, backup, time.Time{})
	require.NoError(t, err)

	got := snapshot(t, target)
	assert.Equal(t, "target", got["newer"])
	assert.Equal(t, "backup", got["older"])
}

func TestReconcileTypeMismatch(t *testing.T) {
	target, backup := t.TempDir(), t.TempDir()
	buildTree(t, target, map[string]string{"was-file": "x", "was-dir/f": "y"})
	buildTree(t, backup, map[string]string{"was-file/inner": "b", "was-dir": "b"})
	require.NoError(t, os.Symlink(filepath.Join(backup, "was-dir"), filepath.Join(backup, "link")))

	_, err := Reconcile(target, backup, time.Time{})
	require.NoError(t, err)

	got := snapshot(t, target)
	assert.Equal(t, "<dir>", got["was-file"])
	assert.Equal(t, "b", got["was-file/inner"])
	assert.Equal(t, "b", got["was-dir"])
	assert.Equal(t, "-> "+filepath.Join(target, "was-dir"), got["link"])
}

func TestReconcileMissingBackup(t *testing.T) {
	_, err := Reconcile(t.TempDir(), filepath.Join(t.TempDir(), "missing"), time.Time{})

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestReconcileTwoPass(t *testing.T) {
	base := time.Unix(1_000_000, 0)
	at := func(sec int64) time.Time { return base.Add(time.Duration(sec) * time.Second) }

	for _, tc := range []struct {
		cutoff int64
		wantF1 string
		copied int
	}{
		{cutoff: 80, wantF1: "backup", copied: 1},
		{cutoff: 150, wantF1: "live", copied: 0},
	} {
		target, backup := t.TempDir(), t.TempDir()
		buildTree(t, backup, map[string]string{"a/f1": "backup"})
		buildTree(t, target, map[string]string{"a/f1": "live", "a/f2": "live"})
		setMtime(t, filepath.Join(backup, "a", "f1"), at(100))
		setMtime(t, filepath.Join(target, "a", "f1"), at(50))

		stats, err := Reconcile(target, backup, at(tc.cutoff))
		require.NoError(t, err)

		got := snapshot(t, target)
		assert.Equal(t, tc.wantF1, got["a/f1"], "cutoff %d", tc.cutoff)
		assert.NotContains(t, got, "a/f2")
		assert.Equal(t, tc.copied, stats.Copied)
		assert.Equal(t, 1, stats.Removed)
	}
}

func TestReconcileRejectsNestedPaths(t *testing.T) {
	t.Run("backup inside target", func(t *testing.T) {
		target := t.TempDir()
		backup := filepath.Join(target, "bk")
		buildTree(t, target, map[string]string{"bk/f": "keep", "live": "x"})

		_, err := Reconcile(target, backup, time.Time{})

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.ErrorIs(t, err, ErrNestedDestination)
		assert.FileExists(t, filepath.Join(backup, "f"))
		assert.FileExists(t, filepath.Join(target, "live"))
	})

	t.Run("target inside backup", func(t *testing.T) {
		backup := t.TempDir()
		target := filepath.Join(backup, "t")
		buildTree(t, backup, map[string]string{"f": "x"})

		_, err := Reconcile(target, backup, time.Time{})

		assert.ErrorIs(t, err, ErrNestedDestination)
		assert.NoDirExists(t, target)
	})

	t.Run("same directory", func(t *testing.T) {
		dir := t.TempDir()

		_, err := Reconcile(dir, dir, time.Time{})

		assert.ErrorIs(t, err, ErrNestedDestination)
	})
}
