// Package archive provides random-access reading of (possibly nested)
// zip/siard containers: a per-run table of open archives with member
// indexes, deferred closing, nested-path resolution through a scratch
// directory, and extraction helpers.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/siard-tools/siard2sql/core/errors"
	"github.com/siard-tools/siard2sql/internal/logging"
)

// Handle is an open, indexed archive. The index maps each member path as
// stored in the archive to its central-directory entry, so repeated
// extractions seek directly instead of rescanning.
type Handle struct {
	path   string
	reader *zip.ReadCloser
	index  map[string]*zip.File
}

// Path returns the archive's filesystem path.
func (h *Handle) Path() string {
	return h.path
}

// Entries returns the number of members in the index.
func (h *Handle) Entries() int {
	return len(h.index)
}

// Table caches open archive handles for the duration of a run. An archive
// is opened and indexed at most once; closes are deferred until CloseAll,
// because sequential extractions from the same archive are common.
type Table struct {
	open    map[string]*Handle
	pending map[string]*Handle
}

// NewTable creates an empty archive table.
func NewTable() *Table {
	return &Table{
		open:    make(map[string]*Handle),
		pending: make(map[string]*Handle),
	}
}

// OpenIndexed returns the cached handle for path, opening and indexing the
// archive on first use. The index is built by one forward scan of the
// central directory.
func (t *Table) OpenIndexed(path string) (*Handle, error) {
	if h, ok := t.open[path]; ok {
		return h, nil
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.NewIO("open archive", path, err)
	}

	h := &Handle{
		path:   path,
		reader: r,
		index:  make(map[string]*zip.File, len(r.File)),
	}
	for _, f := range r.File {
		h.index[f.Name] = f
	}

	t.open[path] = h
	t.pending[path] = h
	logging.ArchiveIndexed(path, len(h.index))
	return h, nil
}

// ExtractMember returns the bytes of the named member.
func (t *Table) ExtractMember(h *Handle, member string) ([]byte, error) {
	f, ok := h.lookup(member)
	if !ok {
		return nil, errors.NewNotFound("archive member", member)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.NewIO("extract", member, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.NewIO("read member", member, err)
	}
	return data, nil
}

// HasMember reports whether member is present in the handle's index,
// either as a file or as a directory prefix.
func (t *Table) HasMember(h *Handle, member string) bool {
	_, ok := h.lookup(member)
	return ok
}

// ExtractMemberTo writes the named member to destPath, creating parent
// directories as needed.
func (t *Table) ExtractMemberTo(h *Handle, member, destPath string) error {
	data, err := t.ExtractMember(h, member)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.NewIO("create dir", filepath.Dir(destPath), err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return errors.NewIO("write", destPath, err)
	}
	return nil
}

// ExtractAll unpacks every member of the archive at path into destDir.
func (t *Table) ExtractAll(path, destDir string) error {
	h, err := t.OpenIndexed(path)
	if err != nil {
		return err
	}
	for name, f := range h.index {
		dest, err := joinInside(destDir, name)
		if err != nil {
			return err
		}
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errors.NewIO("create dir", dest, err)
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.NewIO("extract", name, err)
		}
		err = writeFileFrom(rc, dest)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// CloseAll drains the deferred-close set, physically closing every handle.
// Called once at the end of a run.
func (t *Table) CloseAll() error {
	var firstErr error
	for path, h := range t.pending {
		if err := h.reader.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", path, err)
		}
		delete(t.pending, path)
		delete(t.open, path)
	}
	return firstErr
}

func (h *Handle) lookup(member string) (*zip.File, bool) {
	if f, ok := h.index[member]; ok {
		return f, true
	}
	// Some archivers store entries with a leading "./".
	if f, ok := h.index["./"+member]; ok {
		return f, true
	}
	return nil, false
}

// joinInside joins name under dir, rejecting members that would escape it.
func joinInside(dir, name string) (string, error) {
	dest := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", errors.NewValidation("member", fmt.Sprintf("illegal path %q", name))
	}
	return dest, nil
}

func writeFileFrom(r io.Reader, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.NewIO("create dir", filepath.Dir(dest), err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return errors.NewIO("create", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return errors.NewIO("write", dest, err)
	}
	return nil
}
