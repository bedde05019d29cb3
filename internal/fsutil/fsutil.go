package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jgivc/ftpstage/internal/common"
	"github.com/spf13/afero"
)

const dirPerm = 0o755

/*
ClearLocation removes whatever occupies path: a file, a symlink or a whole
directory tree. If path is a symlink that already points at target, it is left
alone and ClearLocation returns false. It returns true when the path is free
afterwards.
*/
func ClearLocation(fs afero.Fs, path, target string) (bool, error) {
	info, err := lstat(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}

		return false, fmt.Errorf("cannot stat %s: %w", path, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if target != "" {
			if dst, err := Readlink(fs, path); err == nil && dst == target {
				return false, nil
			}
		}

		if err := fs.Remove(path); err != nil {
			return false, fmt.Errorf("cannot remove symlink %s: %w", path, err)
		}
	case info.IsDir():
		if err := fs.RemoveAll(path); err != nil {
			return false, fmt.Errorf("cannot remove dir %s: %w", path, err)
		}
	default:
		if err := fs.Remove(path); err != nil {
			return false, fmt.Errorf("cannot remove file %s: %w", path, err)
		}
	}

	return true, nil
}

// MkdirParent creates the parent directories of path.
func MkdirParent(fs afero.Fs, path string) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("cannot create dir %s: %w", dir, err)
	}

	return nil
}

func Symlink(fs afero.Fs, target, link string) error {
	linker, ok := fs.(afero.Linker)
	if !ok {
		return common.ErrSymlinksNotSupportedByFS
	}

	return linker.SymlinkIfPossible(target, link)
}

func Readlink(fs afero.Fs, path string) (string, error) {
	reader, ok := fs.(afero.LinkReader)
	if !ok {
		return "", common.ErrSymlinksNotSupportedByFS
	}

	return reader.ReadlinkIfPossible(path)
}

func Exists(fs afero.Fs, path string) bool {
	if path == "" {
		return false
	}

	_, err := fs.Stat(path)

	return err == nil
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)

		return info, err
	}

	return fs.Stat(path)
}
