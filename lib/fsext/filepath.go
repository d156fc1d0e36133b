// Package fsext holds the path and file system helpers shared by the script
// loader and the command line.
package fsext

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// FilePathSeparator is the separator used within every afero.Fs.
const FilePathSeparator = afero.FilePathSeparator

// Abs returns an absolute representation of path. A relative path is joined
// with root, which is assumed to be a directory.
//
// The result always starts with a separator, even on windows, because
// scripts are read through afero and not from the OS directly.
func Abs(root, path string) string {
	if path == "" {
		path = "."
	}
	if path[0] != '/' && path[0] != '\\' && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	if path[0:1] != FilePathSeparator {
		path = FilePathSeparator + path
	}
	return path
}
