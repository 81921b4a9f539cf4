// Package filesys provides small filesystem helpers shared by the directory
// implementations: directory creation, regular-file checks and pattern
// listing.
package filesys

import (
	"fmt"
	"os"
	"path/filepath"
)

// CreateDir creates the directory at path with the given permissions. When
// force is true missing parents are created as well.
func CreateDir(path string, perm os.FileMode, force bool) error {
	if force {
		return os.MkdirAll(path, perm)
	}
	err := os.Mkdir(path, perm)
	if err != nil && os.IsExist(err) {
		return nil
	}
	return err
}

// Exists reports whether the path exists at all.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsRegularFile reports whether the path exists and is a regular file.
// The second return distinguishes "missing" (false, nil) from stat failures.
func IsRegularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// ReadDir returns the paths matching the given glob pattern.
func ReadDir(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	return matches, nil
}

// ListFiles returns the names (not paths) of all regular files in dir.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
