// Package source verifies and packages the function source tree before it
// is handed to the platform.
package source

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// expectedFiles maps a runtime prefix to the files a deployable source tree
// must contain. Runtimes without an entry only need a non-empty directory.
var expectedFiles = map[string][]string{
	"python": {"main.py", "requirements.txt"},
	"go":     {"go.mod"},
	"nodejs": {"package.json"},
}

// skipDirs are never packaged.
var skipDirs = map[string]bool{
	"__pycache__":  true,
	"node_modules": true,
}

// Verify checks that dir exists and contains the files the runtime needs.
// It returns a descriptive error naming the first missing file.
func Verify(dir, runtime string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("source: directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source: %s is not a directory", dir)
	}

	for prefix, files := range expectedFiles {
		if !strings.HasPrefix(runtime, prefix) {
			continue
		}
		for _, f := range files {
			if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
				return fmt.Errorf("source: %s runtime requires %s in %s", runtime, f, dir)
			}
		}
		return nil
	}

	// Unknown runtime: any regular file will do.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("source: reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return nil
		}
	}
	return fmt.Errorf("source: %s contains no files to deploy", dir)
}

// Archive zips the source tree rooted at dir into memory, with paths
// relative to dir. Hidden files, compiled artifacts and dependency caches
// are skipped.
func Archive(dir string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".pyc") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		zf, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		_, err = io.Copy(zf, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("source: packaging %s: %w", dir, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("source: finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
