// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindFiles recursively lists every regular file under rootPath in lexical
// order, so loading a directory is deterministic.
func FindFiles(rootPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// FindFilesByExtension is FindFiles restricted to names ending with one of the
// given extensions, compared case-insensitively.
func FindFilesByExtension(rootPath string, extensions ...string) ([]string, error) {
	if len(extensions) == 0 {
		panic("at least one extension is required")
	}

	files, err := FindFiles(rootPath)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(files, func(path string) bool {
		return !slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
	}), nil
}
