// Package archive writes and reads compressed tar snapshots of unpacked
// save directories. XZ and gzip streams are supported; the stream type is
// detected from magic bytes when reading.
package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/F1MSave/internal/validation"
)

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file         *os.File
	decompressor io.Closer
}

// NewReader opens the snapshot at path. The compression is detected from
// the stream's magic bytes.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	br := bufio.NewReader(f)
	head, _ := br.Peek(6)

	var reader io.Reader
	var decompressor io.Closer

	switch validation.DetectFileTypeBytes(head) {
	case validation.FileTypeXZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case validation.FileTypeGzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported archive format: %s", path)
	}

	return &Reader{
		Reader:       tar.NewReader(reader),
		file:         f,
		decompressor: decompressor,
	}, nil
}

// Close closes the archive reader and any underlying decompressors.
func (r *Reader) Close() error {
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

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through all entries in the archive, calling the visitor for each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateSnapshot opens an archive and iterates through its entries.
func IterateSnapshot(path string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Iterate(visitor)
}

// Entry is one regular file in a snapshot.
type Entry struct {
	Name string
	Size int64
}

// List returns the regular files of the archive in archive order.
func List(path string) ([]Entry, error) {
	var files []Entry
	err := IterateSnapshot(path, func(header *tar.Header, _ io.Reader) (bool, error) {
		if header.Typeflag == tar.TypeReg {
			files = append(files, Entry{Name: header.Name, Size: header.Size})
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Extract restores the regular files of the archive into destDir and
// returns their names in archive order. Entries that would land outside
// destDir or carry an unsafe file name are rejected.
func Extract(archivePath, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	var written []string
	err := IterateSnapshot(archivePath, func(header *tar.Header, r io.Reader) (bool, error) {
		if header.Typeflag != tar.TypeReg {
			return false, nil
		}
		cleanPath, err := validation.SanitizePath(destDir, header.Name)
		if err != nil {
			return true, fmt.Errorf("entry %q: %w", header.Name, err)
		}
		if err := validation.ValidateFilename(filepath.Base(cleanPath)); err != nil {
			return true, fmt.Errorf("entry %q: %w", header.Name, err)
		}

		destPath := filepath.Join(destDir, cleanPath)
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return true, fmt.Errorf("failed to create parent directory: %w", err)
		}
		out, err := os.Create(destPath)
		if err != nil {
			return true, fmt.Errorf("failed to create %s: %w", destPath, err)
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return true, fmt.Errorf("failed to write %s: %w", destPath, err)
		}
		if err := out.Close(); err != nil {
			return true, fmt.Errorf("failed to close %s: %w", destPath, err)
		}
		written = append(written, cleanPath)
		return false, nil
	})
	if err != nil {
		return written, err
	}
	return written, nil
}
