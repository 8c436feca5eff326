// Package fileutil provides filesystem helpers for the conversion run:
// the scratch directory used for archive extraction and marker-guarded
// recursive deletion.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ScratchMarker is the substring every scratch directory path must contain.
// Guarded removal refuses to delete a path without it.
const ScratchMarker = "_siard2sql_"

// ScratchDir is a run-owned temporary directory. It is created under the
// system temp dir with a marker plus a run-unique suffix and deleted
// recursively at teardown.
type ScratchDir struct {
	path string
}

// NewScratchDir creates a fresh scratch directory for one conversion run.
func NewScratchDir() (*ScratchDir, error) {
	name := ScratchMarker + uuid.New().String()
	path := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &ScratchDir{path: path}, nil
}

// Path returns the scratch directory's absolute path.
func (s *ScratchDir) Path() string {
	return s.path
}

// Remove deletes the scratch directory recursively. The path must contain
// the scratch marker.
func (s *ScratchDir) Remove() error {
	return GuardedRemoveAll(s.path, ScratchMarker)
}

// GuardedRemoveAll removes path recursively only if its resolved form
// contains infix. This guards teardown against deleting the wrong
// directory when the scratch path has been tampered with.
func GuardedRemoveAll(path, infix string) error {
	if path == "" {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		// A vanished path needs no removal.
		if os.IsNotExist(err) {
			return nil
		}
		resolved = path
	}
	if !strings.Contains(resolved, infix) {
		return fmt.Errorf("refusing to remove %q: marker %q not in path", path, infix)
	}
	return os.RemoveAll(resolved)
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsSiardDir reports whether path is an extracted SIARD tree, i.e. a
// directory containing header/metadata.xml.
func IsSiardDir(path string) bool {
	if !IsDir(path) {
		return false
	}
	info, err := os.Stat(filepath.Join(path, "header", "metadata.xml"))
	return err == nil && info.Mode().IsRegular()
}

// SiardVersionFromDir reads the archive format version recorded as a
// directory entry under header/siardversion/ in an extracted SIARD tree.
// Returns "" if no version entry exists.
func SiardVersionFromDir(root string) string {
	entries, err := os.ReadDir(filepath.Join(root, "header", "siardversion"))
	if err != nil {
		return ""
	}
	for _, e := range entries {
		name := filepath.Base(e.Name())
		if name != "" && !strings.HasPrefix(name, ".") {
			return name
		}
	}
	return ""
}
