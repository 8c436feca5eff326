package archive

import (
	"encoding/hex"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/siard-tools/siard2sql/core/errors"
)

// containerExts are the archive extensions the resolver recognizes as
// traversable links inside a path.
var containerExts = []string{".zip", ".siard"}

// Resolver turns paths that traverse nested containers, such as
// outer.zip/inner.siard/content/x.bin, into plain filesystem paths by
// extracting each link into the scratch directory.
type Resolver struct {
	table   *Table
	scratch string
}

// NewResolver creates a Resolver backed by the given archive table and
// scratch directory.
func NewResolver(table *Table, scratchDir string) *Resolver {
	return &Resolver{table: table, scratch: scratchDir}
}

// Resolve returns a plain filesystem path for p. Paths containing no
// container boundary are returned unchanged. Each container link is
// extracted at most once per run; repeated resolutions reuse the
// extracted copy.
func (r *Resolver) Resolve(p string) (string, error) {
	for {
		container, remainder, ok := splitContainer(p)
		if !ok {
			return p, nil
		}

		h, err := r.table.OpenIndexed(container)
		if err != nil {
			return "", errors.Wrapf(err, "resolving %s", p)
		}

		member, rest := nextLink(remainder)
		if !r.table.HasMember(h, member) && rest != "" {
			// The named "file" may be an archive-internal directory
			// prefix; absorb the next link and retry once.
			more, rest2 := nextLink(rest)
			merged := member + "/" + more
			if r.table.HasMember(h, merged) {
				member, rest = merged, rest2
			}
		}

		dest, err := r.extractCached(h, member)
		if err != nil {
			return "", errors.Wrapf(err, "resolving %s", p)
		}

		if rest == "" {
			p = dest
		} else {
			p = dest + "/" + rest
		}
	}
}

// extractCached extracts member from h into a content-addressed location
// in the scratch directory, reusing a previous extraction when present.
func (r *Resolver) extractCached(h *Handle, member string) (string, error) {
	sum := blake3.Sum256([]byte(h.Path() + "\x00" + member))
	dir := filepath.Join(r.scratch, hex.EncodeToString(sum[:])[:16])
	dest := filepath.Join(dir, path.Base(member))
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		return dest, nil
	}
	if err := r.table.ExtractMemberTo(h, member, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// splitContainer finds the first path prefix that ends in a container
// extension and is followed by more path. A prefix that is actually a real
// filesystem directory is skipped: its segments are treated as ordinary
// path components.
func splitContainer(p string) (container, remainder string, ok bool) {
	s := filepath.ToSlash(p)
	idx := 0
	for {
		slash := strings.Index(s[idx:], "/")
		if slash < 0 {
			return "", "", false
		}
		end := idx + slash
		prefix := s[:end]
		idx = end + 1
		if prefix == "" || !hasContainerExt(prefix) {
			continue
		}
		if info, err := os.Stat(filepath.FromSlash(prefix)); err == nil && info.IsDir() {
			continue
		}
		return filepath.FromSlash(prefix), s[end+1:], true
	}
}

// nextLink splits a member path at the next container boundary: the link
// to extract now, and what remains beneath it.
func nextLink(remainder string) (member, rest string) {
	idx := 0
	for {
		slash := strings.Index(remainder[idx:], "/")
		if slash < 0 {
			return remainder, ""
		}
		end := idx + slash
		if hasContainerExt(remainder[:end]) {
			return remainder[:end], remainder[end+1:]
		}
		idx = end + 1
	}
}

func hasContainerExt(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range containerExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
