package fsutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestClearLocation(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	require.NoError(t, afero.WriteFile(fs, target, []byte("data"), 0o644))

	testCases := []struct {
		name        string
		prepare     func(path string)
		target      string
		expectClear bool
		expectGone  bool
	}{
		{
			name:        "Missing path",
			prepare:     func(string) {},
			expectClear: true,
			expectGone:  true,
		},
		{
			name: "Regular file",
			prepare: func(path string) {
				require.NoError(t, afero.WriteFile(fs, path, []byte("old"), 0o644))
			},
			expectClear: true,
			expectGone:  true,
		},
		{
			name: "Directory tree",
			prepare: func(path string) {
				require.NoError(t, fs.MkdirAll(filepath.Join(path, "a", "b"), 0o755))
				require.NoError(t, afero.WriteFile(fs, filepath.Join(path, "a", "b", "f"), []byte("x"), 0o644))
			},
			expectClear: true,
			expectGone:  true,
		},
		{
			name: "Stale symlink",
			prepare: func(path string) {
				require.NoError(t, Symlink(fs, filepath.Join(dir, "other"), path))
			},
			target:      target,
			expectClear: true,
			expectGone:  true,
		},
		{
			name: "Symlink already correct",
			prepare: func(path string) {
				require.NoError(t, Symlink(fs, target, path))
			},
			target:      target,
			expectClear: false,
			expectGone:  false,
		},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, "case", string(rune('a'+i)))
			require.NoError(t, MkdirParent(fs, path))
			tc.prepare(path)

			cleared, err := ClearLocation(fs, path, tc.target)
			require.NoError(t, err)
			require.Equal(t, tc.expectClear, cleared)

			_, _, err = fs.(afero.Lstater).LstatIfPossible(path)
			require.Equal(t, tc.expectGone, err != nil)
		})
	}
}

func TestClearLocationMemFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/file", []byte("x"), 0o644))

	cleared, err := ClearLocation(fs, "/data/file", "")
	require.NoError(t, err)
	require.True(t, cleared)
	require.False(t, Exists(fs, "/data/file"))
}

func TestSymlinkUnsupported(t *testing.T) {
	fs := afero.NewMemMapFs()
	err := Symlink(fs, "/a", "/b")
	require.Error(t, err)
}
