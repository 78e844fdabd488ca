package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// Compression selects the stream wrapped around the tar archive.
type Compression string

const (
	// CompressionXZ uses XZ/LZMA2 compression (default, best ratio).
	CompressionXZ Compression = "xz"
	// CompressionGzip uses gzip compression (stdlib, faster).
	CompressionGzip Compression = "gzip"
)

// snapshotTime is stamped on every entry so equal directories produce equal archives.
var snapshotTime = time.Unix(0, 0).UTC()

// CompressionForPath picks the compression implied by dstPath's suffix.
// Anything other than .tar.gz or .tgz gets XZ.
func CompressionForPath(dstPath string) Compression {
	if strings.HasSuffix(dstPath, ".tar.gz") || strings.HasSuffix(dstPath, ".tgz") {
		return CompressionGzip
	}
	return CompressionXZ
}

// CreateSnapshot archives the regular files directly inside srcDir into
// dstPath. If names is non-empty only those files are included, in that
// order, and a missing one is skipped. Parent directories of dstPath are
// created.
func CreateSnapshot(srcDir, dstPath string, names []string) error {
	if len(names) == 0 {
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			return fmt.Errorf("failed to read source directory: %w", err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	if err := writeSnapshot(outFile, srcDir, names, CompressionForPath(dstPath)); err != nil {
		outFile.Close()
		os.Remove(dstPath)
		return err
	}
	if err := outFile.Close(); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	return nil
}

func writeSnapshot(w io.Writer, srcDir string, names []string, compression Compression) error {
	var compressWriter io.WriteCloser
	var err error
	switch compression {
	case CompressionGzip:
		compressWriter, err = gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
	default:
		compressWriter, err = xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("failed to create xz writer: %w", err)
		}
	}

	tw := tar.NewWriter(compressWriter)
	for _, name := range names {
		if err := addFile(tw, filepath.Join(srcDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := compressWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish %s stream: %w", compression, err)
	}
	return nil
}

func addFile(tw *tar.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file")
	}

	header := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     info.Size(),
		ModTime:  snapshotTime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
