package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default.DaemonPort, cfg.DaemonPort)
	assert.Equal(t, "inotify", cfg.Backend)
	assert.Equal(t, 20*time.Millisecond, cfg.DeleteGuard)
	assert.Equal(t, filepath.Join(home, ".mirrorsync", "mirrorsync.db"), cfg.DBPath)
	assert.True(t, cfg.RecordHistory)
}

func TestLoadFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MIRRORSYNC_BACKEND", "fsnotify")

	dir := filepath.Join(home, ".mirrorsync")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(
		"daemon_port: 9200\ndb_path: /var/lib/mirrorsync.db\ndelete_guard: 50ms\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.DaemonPort)
	assert.Equal(t, "fsnotify", cfg.Backend)
	assert.Equal(t, "/var/lib/mirrorsync.db", cfg.DBPath)
	assert.Equal(t, 50*time.Millisecond, cfg.DeleteGuard)
}

func TestLoadRejectsInvalid(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MIRRORSYNC_BACKEND", "kqueue")

	_, err := Load()
	assert.Error(t, err)
}
