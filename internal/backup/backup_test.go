package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileSource "backs up" by writing fixed content, like VACUUM INTO would.
type fileSource struct {
	content string
	err     error
}

func (f *fileSource) Backup(_ context.Context, dest string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte(f.content), 0o600)
}

func newManager(t *testing.T, src Source, retention int) *Manager {
	t.Helper()
	m, err := New(Config{Source: src, BackupDir: filepath.Join(t.TempDir(), "backups"), Retention: retention})
	require.NoError(t, err)
	return m
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(Config{BackupDir: t.TempDir()})
	assert.Error(t, err)
}

func TestSnapshotAndRestore(t *testing.T) {
	m := newManager(t, &fileSource{content: "sqlite bytes"}, 0)

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Greater(t, snap.SizeBytes, int64(0))

	list, err := m.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snap.Filename, list[0].Filename)

	dest := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, m.Restore(snap.Filename, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "sqlite bytes", string(data))

	// An existing file is never overwritten.
	assert.Error(t, m.Restore(snap.Filename, dest))
}

func TestRestoreUnknown(t *testing.T) {
	m := newManager(t, &fileSource{}, 0)
	dest := filepath.Join(t.TempDir(), "x.db")

	assert.ErrorIs(t, m.Restore("history_20240101_000000.000.db.gz", dest), ErrSnapshotNotFound)
	assert.ErrorIs(t, m.Restore("../history.db.gz", dest), ErrSnapshotNotFound)
	assert.ErrorIs(t, m.Restore("notes.txt", dest), ErrSnapshotNotFound)
}

func TestSnapshotSourceError(t *testing.T) {
	m := newManager(t, &fileSource{err: errors.New("database is locked")}, 0)

	_, err := m.Snapshot(context.Background())
	assert.ErrorContains(t, err, "database is locked")

	list, err := m.ListSnapshots()
	require.NoError(t, err)
	assert.Empty(t, list)
	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary copy removed")
}

func TestRetention(t *testing.T) {
	m := newManager(t, &fileSource{content: "x"}, 2)

	var names []string
	for i := 0; i < 4; i++ {
		snap, err := m.Snapshot(context.Background())
		require.NoError(t, err)
		names = append(names, snap.Filename)
		time.Sleep(5 * time.Millisecond)
	}

	list, err := m.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, names[3], list[0].Filename)
	assert.Equal(t, names[2], list[1].Filename)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	m := newManager(t, &fileSource{content: "x"}, 0)
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "README"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "history_garbage.db.gz"), []byte("x"), 0o644))

	list, err := m.ListSnapshots()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStartStop(t *testing.T) {
	m := newManager(t, &fileSource{content: "x"}, 0)
	require.NoError(t, m.Start(), "no schedule is a no-op")
	m.Stop()

	m.cfg.Schedule = "not a schedule"
	assert.Error(t, m.Start())

	m.cfg.Schedule = "0 4 * * *"
	require.NoError(t, m.Start())
	require.NoError(t, m.Start())
	m.Stop()
}
