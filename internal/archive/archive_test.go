package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FocuswithJustin/F1MSave/internal/validation"
)

func createSourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		"chunk1":     []byte("preamble bytes"),
		"main.db":    bytes.Repeat([]byte{0x11}, 4096),
		"backup1.db": bytes.Repeat([]byte{0x22}, 512),
		"notes.txt":  []byte("unused"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return dir
}

func createEscapingTarGz(t *testing.T, dir string) string {
	t.Helper()
	return createSingleEntryTarGz(t, dir, "evil.tar.gz", "../outside.txt")
}

func createSingleEntryTarGz(t *testing.T, dir, archiveName, entryName string) string {
	t.Helper()
	path := filepath.Join(dir, archiveName)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	content := []byte("escaped")
	if err := tw.WriteHeader(&tar.Header{
		Name: entryName,
		Mode: 0644,
		Size: int64(len(content)),
	}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	tw.Close()
	gw.Close()
	return path
}

func TestCompressionForPath(t *testing.T) {
	tests := []struct {
		path string
		want Compression
	}{
		{"snap.tar.xz", CompressionXZ},
		{"snap.tar.gz", CompressionGzip},
		{"snap.tgz", CompressionGzip},
		{"snap", CompressionXZ},
	}
	for _, tt := range tests {
		if got := CompressionForPath(tt.path); got != tt.want {
			t.Errorf("CompressionForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCreateSnapshot_RoundTrip(t *testing.T) {
	for _, name := range []string{"snap.tar.xz", "snap.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			src := createSourceDir(t)
			dst := filepath.Join(t.TempDir(), "nested", name)

			if err := CreateSnapshot(src, dst, nil); err != nil {
				t.Fatalf("CreateSnapshot: %v", err)
			}

			data, err := os.ReadFile(dst)
			if err != nil {
				t.Fatalf("read snapshot: %v", err)
			}
			ft := validation.DetectFileTypeBytes(data)
			if string(ft) != string(CompressionForPath(name)) {
				t.Errorf("snapshot stream = %q, want %q", ft, CompressionForPath(name))
			}

			files, err := List(dst)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(files) != 4 {
				t.Fatalf("List() = %v, want 4 files", files)
			}
			if files[2].Name != "main.db" || files[2].Size != 4096 {
				t.Errorf("List()[2] = %+v, want main.db with 4096 bytes", files[2])
			}

			out := t.TempDir()
			written, err := Extract(dst, out)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			want := []string{"backup1.db", "chunk1", "main.db", "notes.txt"}
			if len(written) != len(want) {
				t.Fatalf("Extract() = %v, want %v", written, want)
			}
			for i := range want {
				if written[i] != want[i] {
					t.Errorf("Extract()[%d] = %q, want %q", i, written[i], want[i])
				}
				orig, _ := os.ReadFile(filepath.Join(src, want[i]))
				got, err := os.ReadFile(filepath.Join(out, want[i]))
				if err != nil {
					t.Fatalf("read restored %s: %v", want[i], err)
				}
				if !bytes.Equal(orig, got) {
					t.Errorf("%s content mismatch after restore", want[i])
				}
			}
		})
	}
}

func TestCreateSnapshot_SelectedNames(t *testing.T) {
	src := createSourceDir(t)
	dst := filepath.Join(t.TempDir(), "snap.tar.xz")

	if err := CreateSnapshot(src, dst, []string{"main.db", "backup2.db", "chunk1"}); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	var order []string
	err := IterateSnapshot(dst, func(h *tar.Header, _ io.Reader) (bool, error) {
		order = append(order, h.Name)
		return false, nil
	})
	if err != nil {
		t.Fatalf("IterateSnapshot: %v", err)
	}
	if len(order) != 2 || order[0] != "main.db" || order[1] != "chunk1" {
		t.Errorf("entries = %v, want [main.db chunk1]", order)
	}
}

func TestCreateSnapshot_Deterministic(t *testing.T) {
	src := createSourceDir(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.tar.gz")
	b := filepath.Join(dir, "b.tar.gz")

	if err := CreateSnapshot(src, a, nil); err != nil {
		t.Fatalf("CreateSnapshot a: %v", err)
	}
	if err := os.Chtimes(filepath.Join(src, "main.db"), time0(), time0()); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := CreateSnapshot(src, b, nil); err != nil {
		t.Fatalf("CreateSnapshot b: %v", err)
	}

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if !bytes.Equal(da, db) {
		t.Error("snapshots of the same content differ")
	}
}

func TestCreateSnapshot_MissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "snap.tar.xz")
	if err := CreateSnapshot(filepath.Join(t.TempDir(), "nope"), dst, nil); err == nil {
		t.Error("expected error for missing source directory")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("snapshot file should not exist")
	}
}

func TestNewReader_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.tar.xz")
	if err := os.WriteFile(path, []byte("not an archive"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewReader(path); err == nil {
		t.Error("expected error for unsupported stream")
	}
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIterate_Stop(t *testing.T) {
	src := createSourceDir(t)
	dst := filepath.Join(t.TempDir(), "snap.tar.gz")
	if err := CreateSnapshot(src, dst, nil); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	count := 0
	err := IterateSnapshot(dst, func(*tar.Header, io.Reader) (bool, error) {
		count++
		return true, nil
	})
	if err != nil {
		t.Fatalf("IterateSnapshot: %v", err)
	}
	if count != 1 {
		t.Errorf("visited %d entries, want 1", count)
	}

	boom := errors.New("boom")
	err = IterateSnapshot(dst, func(*tar.Header, io.Reader) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("IterateSnapshot error = %v, want boom", err)
	}
}

func TestExtract_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := createEscapingTarGz(t, dir)
	out := filepath.Join(dir, "out")

	_, err := Extract(archivePath, out)
	if !errors.Is(err, validation.ErrPathTraversal) {
		t.Fatalf("Extract error = %v, want ErrPathTraversal", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.txt")); !os.IsNotExist(err) {
		t.Error("escaping entry was written")
	}
}

func time0() time.Time { return time.Unix(1700000000, 0) }

func TestExtract_RejectsUnsafeFilename(t *testing.T) {
	dir := t.TempDir()
	archivePath := createSingleEntryTarGz(t, dir, "flag.tar.gz", "-rf")
	out := filepath.Join(dir, "out")

	_, err := Extract(archivePath, out)
	if !errors.Is(err, validation.ErrInvalidFilename) {
		t.Fatalf("Extract error = %v, want ErrInvalidFilename", err)
	}
	if _, err := os.Stat(filepath.Join(out, "-rf")); !os.IsNotExist(err) {
		t.Error("unsafe entry was written")
	}
}
