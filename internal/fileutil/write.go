package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempPrefix marks in-flight temporary files so sweeps can find leftovers.
const TempPrefix = ".unitsmith-tmp-"

// WriteAtomic replaces path with data by writing a temporary file in the
// same directory and renaming it into place. Readers see either the old
// or the new content, never a truncated file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := CreateTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// CreateTemp writes data to a synced temporary file beside path and
// returns its name. The caller renames or removes it.
func CreateTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, TempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", filepath.Base(path), err)
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		return fail(fmt.Errorf("write temp for %s: %w", filepath.Base(path), err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp for %s: %w", filepath.Base(path), err))
	}
	if err := f.Chmod(perm); err != nil {
		return fail(fmt.Errorf("chmod temp for %s: %w", filepath.Base(path), err))
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp for %s: %w", filepath.Base(path), err)
	}
	return name, nil
}

// FileMode returns the permission bits of path, or fallback when it does
// not exist.
func FileMode(path string, fallback os.FileMode) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return fallback
	}
	return info.Mode().Perm()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
