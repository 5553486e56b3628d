package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "export_state.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedgerMarkAndGet(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Mark(ctx, "1.2.3", "/backup/2024_07/study.zip"))

	rec, err := l.Get(ctx, "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", rec.StudyUID)
	assert.Equal(t, "/backup/2024_07/study.zip", rec.ZipPath)
	assert.False(t, rec.WhenExported.IsZero())

	_, err = l.Get(ctx, "9.9.9")
	assert.ErrorIs(t, err, ErrNotExported)
}

func TestLedgerMarkIsUpsert(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Mark(ctx, "1.2.3", NoFilesSentinel))
	require.NoError(t, l.Mark(ctx, "1.2.3", "/backup/2024_07/retried.zip"))

	rec, err := l.Get(ctx, "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "/backup/2024_07/retried.zip", rec.ZipPath)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export_state.sqlite")
	ctx := context.Background()

	l, err := OpenLedger(path)
	require.NoError(t, err)
	require.NoError(t, l.Mark(ctx, "1.2.3", "/z.zip"))
	require.NoError(t, l.Close())

	l, err = OpenLedger(path)
	require.NoError(t, err)
	defer l.Close()

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
