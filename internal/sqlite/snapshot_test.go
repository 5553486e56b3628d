package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmsantos/pacsexport/internal/config"
)

func snapshotConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.VolumeRoot = t.TempDir()
	return cfg
}

func writeSourceDB(t *testing.T, cfg config.Config) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.SourceDBPath()), 0o755))
	db := newCatalogDB(t, cfg.SourceDBPath())
	insertStudy(t, db, 1, "uid-1", "2023-01-01", "", "", "P")
	require.NoError(t, db.Close())
}

func TestObtainCreatesSnapshot(t *testing.T) {
	cfg := snapshotConfig(t)
	writeSourceDB(t, cfg)

	p := NewSnapshotProvider(cfg, discardLogger())
	path, err := p.Obtain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.SnapshotPath(), path)

	// The copy is a queryable database with the source's content.
	db, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer db.Close()
	var uid string
	require.NoError(t, db.QueryRow(`SELECT ZSTUDYINSTANCEUID FROM ZSTUDY`).Scan(&uid))
	assert.Equal(t, "uid-1", uid)
}

func TestObtainMissingSource(t *testing.T) {
	cfg := snapshotConfig(t)

	p := NewSnapshotProvider(cfg, discardLogger())
	_, err := p.Obtain(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestObtainAlwaysRefreshReplacesStaleCopy(t *testing.T) {
	cfg := snapshotConfig(t)
	cfg.Snapshot.AlwaysRefresh = true
	writeSourceDB(t, cfg)

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.SnapshotPath()), 0o755))
	require.NoError(t, os.WriteFile(cfg.SnapshotPath(), []byte("stale junk"), 0o644))

	p := NewSnapshotProvider(cfg, discardLogger())
	path, err := p.Obtain(context.Background())
	require.NoError(t, err)

	db, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ZSTUDY`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestObtainReusePolicyKeepsExistingSnapshot(t *testing.T) {
	cfg := snapshotConfig(t)
	cfg.Snapshot.AlwaysRefresh = false
	writeSourceDB(t, cfg)

	p := NewSnapshotProvider(cfg, discardLogger())

	// First call builds the one-shot copy.
	path, err := p.Obtain(context.Background())
	require.NoError(t, err)
	first, err := os.Stat(path)
	require.NoError(t, err)

	// New source content must not show up on reuse.
	db, err := Open(cfg.SourceDBPath())
	require.NoError(t, err)
	insertStudy(t, db, 2, "uid-2", "2023-02-01", "", "", "P2")
	require.NoError(t, db.Close())

	path, err = p.Obtain(context.Background())
	require.NoError(t, err)
	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())

	snap, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer snap.Close()
	var n int
	require.NoError(t, snap.QueryRow(`SELECT COUNT(*) FROM ZSTUDY`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestObtainNeverWritesSource(t *testing.T) {
	cfg := snapshotConfig(t)
	writeSourceDB(t, cfg)

	before, err := os.ReadFile(cfg.SourceDBPath())
	require.NoError(t, err)

	p := NewSnapshotProvider(cfg, discardLogger())
	_, err = p.Obtain(context.Background())
	require.NoError(t, err)

	after, err := os.ReadFile(cfg.SourceDBPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
