package savefile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/F1MSave/core/cas"
	ferrors "github.com/FocuswithJustin/F1MSave/core/errors"
	"github.com/FocuswithJustin/F1MSave/internal/validation"
)

func TestInspect(t *testing.T) {
	tempDir := t.TempDir()
	mainDB := fakeImage(2000, 0x11)
	backup := bytes.Repeat([]byte{0x22}, 500)
	chunk := preamble(t, 90)
	container := buildContainer(t, chunk, [SlotCount]uint32{2000, 500, 0}, zlibBytes(t, append(append([]byte{}, mainDB...), backup...)))
	savePath := writeFile(t, filepath.Join(tempDir, "in.sav"), container)

	report, err := Inspect(context.Background(), savePath)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if report.FileSize != int64(len(container)) {
		t.Errorf("FileSize = %d, want %d", report.FileSize, len(container))
	}
	if report.PreambleLen != 90 {
		t.Errorf("PreambleLen = %d, want 90", report.PreambleLen)
	}
	if report.SlotSizes != [3]uint32{2000, 500, 0} {
		t.Errorf("SlotSizes = %v", report.SlotSizes)
	}
	if report.Preamble != cas.Fingerprint(chunk) {
		t.Errorf("Preamble digest = %+v", report.Preamble)
	}
	if len(report.Slots) != 2 {
		t.Fatalf("Slots = %d, want 2", len(report.Slots))
	}

	primary := report.Slots[0]
	if primary.FileName != MainDBName || primary.Slot != "primary" {
		t.Errorf("first slot = %+v", primary)
	}
	if primary.Digest != cas.Fingerprint(mainDB) {
		t.Errorf("primary digest mismatch")
	}
	if primary.Type != validation.FileTypeSQLite {
		t.Errorf("primary type = %q, want sqlite", primary.Type)
	}
	if report.Slots[1].Type != validation.FileTypeUnknown {
		t.Errorf("backup type = %q, want unknown", report.Slots[1].Type)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Inspect wrote files: %d entries in temp dir", len(entries))
	}
}

func TestInspect_Errors(t *testing.T) {
	tempDir := t.TempDir()

	if _, err := Inspect(context.Background(), filepath.Join(tempDir, "missing.sav")); !errors.Is(err, ferrors.ErrNotFound) {
		t.Errorf("missing file error = %v, want ErrNotFound", err)
	}

	noMarker := writeFile(t, filepath.Join(tempDir, "plain.bin"), []byte("plain bytes"))
	if _, err := Inspect(context.Background(), noMarker); !errors.Is(err, ferrors.ErrMalformedContainer) {
		t.Errorf("no marker error = %v, want ErrMalformedContainer", err)
	}

	short := buildContainer(t, preamble(t, 30), [SlotCount]uint32{99, 0, 0}, zlibBytes(t, []byte("short")))
	shortPath := writeFile(t, filepath.Join(tempDir, "short.sav"), short)
	if _, err := Inspect(context.Background(), shortPath); !errors.Is(err, ferrors.ErrCorruptPayload) {
		t.Errorf("short payload error = %v, want ErrCorruptPayload", err)
	}
}
