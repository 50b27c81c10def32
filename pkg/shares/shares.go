// Package shares resolves the virtual filenames peers request onto the
// local shared directory tree.
package shares

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotShared is returned when a requested filename does not resolve to a
// shared file on disk.
var ErrNotShared = errors.New("file not shared")

type ResolvedFile struct {
	LocalPath string
	Size      int64
}

type Resolver interface {
	// ResolveFilename maps a peer-visible virtual filename onto a local
	// file, failing with ErrNotShared when the file is outside the share,
	// missing, or not a regular file.
	ResolveFilename(filename string) (*ResolvedFile, error)
}

// DirResolver shares a single directory tree rooted at Root.
type DirResolver struct {
	Root string
}

func NewDirResolver(root string) *DirResolver {
	return &DirResolver{Root: root}
}

func (r *DirResolver) ResolveFilename(filename string) (*ResolvedFile, error) {
	// Peers send Windows-style separators on the wire.
	name := strings.ReplaceAll(filename, "\\", "/")
	name = strings.TrimPrefix(name, "/")

	cleaned := filepath.Clean("/" + name)
	if cleaned == "/" {
		return nil, errors.Wrapf(ErrNotShared, "empty filename %q", filename)
	}

	localPath := filepath.Join(r.Root, cleaned)

	// Clean anchors the path under Root, but reject anything that still
	// escapes the share.
	if !strings.HasPrefix(localPath, filepath.Clean(r.Root)+string(os.PathSeparator)) {
		return nil, errors.Wrapf(ErrNotShared, "filename %q escapes share root", filename)
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return nil, errors.Wrapf(ErrNotShared, "filename %q", filename)
	}

	if !fi.Mode().IsRegular() {
		return nil, errors.Wrapf(ErrNotShared, "filename %q is not a regular file", filename)
	}

	return &ResolvedFile{LocalPath: localPath, Size: fi.Size()}, nil
}
