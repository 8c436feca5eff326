package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/siard-tools/siard2sql/core/errors"
)

// bundleReader wraps a tar.Reader with automatic decompression handling
// for .tar.gz and .tar.xz bundles of extracted SIARD trees.
type bundleReader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// IsBundle reports whether path names a tar bundle this package can unpack.
// Extension matching is case-insensitive, like container extensions.
func IsBundle(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tar.xz")
}

func newBundleReader(path string) (*bundleReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}

	var reader io.Reader = f
	var decompressor io.Closer

	switch {
	case strings.HasSuffix(strings.ToLower(path), ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
		decompressor = nil // xz reader doesn't need closing
	case strings.HasSuffix(strings.ToLower(path), ".tar.gz"):
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported bundle format: %s", path)
	}

	return &bundleReader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

func (r *bundleReader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ExtractBundle unpacks a .tar.gz or .tar.xz bundle into destDir.
func ExtractBundle(path, destDir string) error {
	r, err := newBundleReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewIO("read bundle header", path, err)
		}

		dest, err := joinInside(destDir, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errors.NewIO("create dir", dest, err)
			}
		case tar.TypeReg:
			if err := writeFileFrom(r, dest); err != nil {
				return err
			}
		default:
			// Symlinks and specials are not part of a SIARD tree.
		}
	}
}
