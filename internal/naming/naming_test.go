package naming

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "DOE_JOHN", "DOE_JOHN"},
		{"spaces", "  DOE JOHN ", "DOE_JOHN"},
		{"unsafe run collapsed", "DOE@@##JOHN", "DOE_JOHN"},
		{"accents collapsed", "JOÃO", "JO_O"},
		{"kept punctuation", "1.2.840.113-a_b", "1.2.840.113-a_b"},
		{"empty", "", "UNKNOWN"},
		{"only unsafe", "@@@", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitizeCapsAt128(t *testing.T) {
	long := strings.Repeat("a", 300)
	assert.Len(t, Sanitize(long), 128)
}

func TestBuildZipPathBasic(t *testing.T) {
	dir := t.TempDir()
	got := BuildZipPath(dir, "DOE JOHN", "1955-03-10", "2023-02-03", "1.2.840.113.7", 128)
	assert.Equal(t, filepath.Join(dir, "DOE_JOHN_1955-03-10_2023-02-03_1.2.840.113.7.zip"), got)
}

func TestBuildZipPathUnknownDates(t *testing.T) {
	dir := t.TempDir()
	got := BuildZipPath(dir, "", "", "junk", "1.2.3", 128)
	assert.Equal(t, filepath.Join(dir, "UNKNOWN_UNKNOWN_UNKNOWN_1.2.3.zip"), got)
}

func TestBuildZipPathUIDSurvivesTruncation(t *testing.T) {
	dir := t.TempDir()
	uid := "1.2.826.0.1." + strings.Repeat("9", 70) // 82 chars
	require.Len(t, uid, 82)

	got := BuildZipPath(dir, strings.Repeat("X", 200), "1950-01-01", "2020-06-15", uid, 128)
	base := strings.TrimSuffix(filepath.Base(got), ".zip")

	assert.LessOrEqual(t, len(base), 128)
	assert.True(t, strings.HasSuffix(base, "_"+uid), "uid must survive intact: %s", base)
	assert.False(t, strings.Contains(base, "__"+uid), "prefix should not end in underscore run")
}

func TestBuildZipPathCollisionProbing(t *testing.T) {
	dir := t.TempDir()

	want := []string{
		"A_1950-01-01_2020-06-15_1.2.3.zip",
		"A_1950-01-01_2020-06-15_1.2.3_2.zip",
		"A_1950-01-01_2020-06-15_1.2.3_3.zip",
		"A_1950-01-01_2020-06-15_1.2.3_4.zip",
		"A_1950-01-01_2020-06-15_1.2.3_5.zip",
		"A_1950-01-01_2020-06-15_1.2.3_6.zip",
	}
	for _, w := range want {
		got := BuildZipPath(dir, "A", "1950-01-01", "2020-06-15", "1.2.3", 128)
		assert.Equal(t, filepath.Join(dir, w), got)
		require.NoError(t, os.WriteFile(got, []byte("zip"), 0o644))
	}
}
