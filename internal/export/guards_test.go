package export

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountFilesEarly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	for i := 0; i < 4; i++ {
		name := filepath.Join(root, "sub", fmt.Sprintf("f%d", i))
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}

	assert.Equal(t, 4, countFilesEarly(root, 100))

	// Early stop: the count only needs to prove the ceiling is broken.
	assert.Equal(t, 3, countFilesEarly(root, 2))

	// Missing root counts as empty.
	assert.Equal(t, 0, countFilesEarly(filepath.Join(root, "absent"), 100))
}

func TestListMonthDirs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"2023_11", "2023_02", "2024_01", "UNKNOWN_DATE", "notes", "2023-03"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}
	// Files never count, even with a matching name.
	require.NoError(t, os.WriteFile(filepath.Join(root, "2022_06"), []byte("x"), 0o644))

	assert.Equal(t, []string{"2023_02", "2023_11", "2024_01"}, listMonthDirs(root))
}
