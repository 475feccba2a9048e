package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/funvibe/taffy/internal/config"
)

// HasSourceExt reports whether path ends in a recognized source extension.
func HasSourceExt(path string) bool {
	for _, ext := range config.SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// ModuleDir returns the directory imports of file are resolved against.
// Source given without a file (-e, stdin) resolves against ".".
func ModuleDir(file string) string {
	if file == "" || !HasSourceExt(file) {
		return "."
	}
	return filepath.Dir(file)
}

// ImportFile maps the package path a.b.C, relative to root, to the
// first existing a/b/C source file. It returns "" when there is none.
func ImportFile(root string, path []string) (string, error) {
	base := filepath.Join(append([]string{root}, path...)...)
	for _, ext := range config.SourceFileExtensions {
		file := base + ext
		_, err := os.Stat(file)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}

// SourceFiles lists the source files directly inside root/a/b, sorted by
// name. A missing directory yields no files.
func SourceFiles(root string, path []string) ([]string, error) {
	dir := filepath.Join(append([]string{root}, path...)...)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && HasSourceExt(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
