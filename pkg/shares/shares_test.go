package shares

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newShareDir(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "music", "album"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "music", "album", "track01.flac"), []byte("flacdata"), 0o644))

	return root
}

func TestResolveFilename(t *testing.T) {
	root := newShareDir(t)
	r := NewDirResolver(root)

	resolved, err := r.ResolveFilename("music/album/track01.flac")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "music", "album", "track01.flac"), resolved.LocalPath)
	require.Equal(t, int64(len("flacdata")), resolved.Size)
}

func TestResolveFilenameWindowsSeparators(t *testing.T) {
	r := NewDirResolver(newShareDir(t))

	resolved, err := r.ResolveFilename(`music\album\track01.flac`)
	require.NoError(t, err)
	require.Equal(t, int64(len("flacdata")), resolved.Size)
}

func TestResolveFilenameNotShared(t *testing.T) {
	r := NewDirResolver(newShareDir(t))

	tests := []struct {
		name     string
		filename string
	}{
		{"missing file", "music/album/track99.flac"},
		{"directory", "music/album"},
		{"empty", ""},
		{"root only", "/"},
		{"traversal", "../../etc/passwd"},
		{"traversal with backslashes", `..\..\etc\passwd`},
		{"nested traversal", "music/../../secret.txt"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := r.ResolveFilename(test.filename)
			require.ErrorIs(t, err, ErrNotShared)
		})
	}
}
