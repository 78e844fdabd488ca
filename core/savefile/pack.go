package savefile

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/F1MSave/core/errors"
	"github.com/FocuswithJustin/F1MSave/internal/logging"
)

// Injectable functions for testing
var (
	osReadFilePack     = os.ReadFile
	osMkdirAllPack     = os.MkdirAll
	osCreateTempPack   = os.CreateTemp
	osRenamePack       = os.Rename
	zlibNewWriterLevel = func(w io.Writer, level int) (io.WriteCloser, error) {
		return zlib.NewWriterLevel(w, level)
	}
)

// frameFieldLimit caps slot sizes and the compressed length at the u32 field width.
var frameFieldLimit uint64 = maxFrameField

// PackOptions configures container packing.
type PackOptions struct {
	// CompressionLevel is passed to the zlib encoder. Defaults to zlib.DefaultCompression.
	CompressionLevel int
}

// DefaultPackOptions returns the default packing options.
func DefaultPackOptions() *PackOptions {
	return &PackOptions{
		CompressionLevel: zlib.DefaultCompression,
	}
}

// Repack builds a container at output from the unpacked directory inDir
// using the default options.
func Repack(ctx context.Context, inDir, output string) (*Layout, error) {
	return Pack(ctx, inDir, output, DefaultPackOptions())
}

// Pack builds a container at output from inDir. chunk1 is copied verbatim,
// then the images of main.db, backup1.db and backup2.db are compressed as
// one zlib stream. Scanning stops at the first missing or empty image;
// every slot from there on is recorded with size 0, so a present slot never
// follows an absent one. The frame header always carries three
// size fields.
//
// The output is written to a temporary file and renamed into place, so a
// failed Pack leaves any existing output untouched. inDir is never modified.
func Pack(ctx context.Context, inDir, output string, opts *PackOptions) (*Layout, error) {
	if opts == nil {
		opts = DefaultPackOptions()
	}
	start := time.Now()
	layout, err := pack(ctx, inDir, output, opts)
	if err != nil {
		logging.CodecError(ctx, "repack", inDir, err)
		return nil, err
	}
	logging.CodecEvent(ctx, "repack", inDir, output, time.Since(start),
		"preamble_bytes", layout.PreambleLen,
		"compressed_bytes", layout.Header.CompressedLength,
		"slots", len(layout.Slots),
	)
	return layout, nil
}

func pack(ctx context.Context, inDir, output string, opts *PackOptions) (*Layout, error) {
	chunkPath := filepath.Join(inDir, ChunkFileName)
	chunk, err := osReadFilePack(chunkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("chunk1", chunkPath, err)
		}
		return nil, errors.NewIO("read", chunkPath, err)
	}

	var header Header
	var images bytes.Buffer
	layout := &Layout{PreambleLen: int64(len(chunk)), MarkerOffset: -1}
	if idx := bytes.Index(chunk, []byte(Marker)); idx >= 0 {
		layout.MarkerOffset = int64(idx)
	}

	for _, slot := range Slots {
		path := filepath.Join(inDir, slot.FileName())
		data, err := osReadFilePack(path)
		if err != nil {
			if os.IsNotExist(err) {
				logging.DebugContext(ctx, "slot absent, stopping scan", "slot", slot.String(), "path", path)
				break
			}
			return nil, errors.NewIO("read", path, err)
		}
		if len(data) == 0 {
			logging.DebugContext(ctx, "slot empty, stopping scan", "slot", slot.String(), "path", path)
			break
		}
		if uint64(len(data)) > frameFieldLimit {
			return nil, errors.NewValidation(slot.FileName(), fmt.Sprintf("%d bytes exceeds the 32-bit slot size field", len(data)))
		}
		header.Sizes[slot] = uint32(len(data))
		images.Write(data)
		layout.Slots = append(layout.Slots, slot)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := compress(images.Bytes(), opts.CompressionLevel)
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) > frameFieldLimit {
		return nil, errors.NewValidation("payload", fmt.Sprintf("%d compressed bytes exceeds the 32-bit length field", len(payload)))
	}
	header.CompressedLength = uint32(len(payload))
	layout.Header = header

	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := writeAtomic(output, chunk, headerBytes, payload); err != nil {
		return nil, err
	}
	return layout, nil
}

// compress deflates data into a single zlib stream.
func compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlibNewWriterLevel(&buf, level)
	if err != nil {
		return nil, errors.NewCompression(err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, errors.NewCompression(err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.NewCompression(err)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes parts to a temp file next to path and renames it into place.
func writeAtomic(path string, parts ...[]byte) error {
	dir := filepath.Dir(path)
	if err := osMkdirAllPack(dir, defaultDirMode); err != nil {
		return errors.NewIO("create directory", dir, err)
	}

	tempFile, err := osCreateTempPack(dir, ".savefile-*")
	if err != nil {
		return errors.NewIO("create temp file in", dir, err)
	}
	tempPath := tempFile.Name()

	for _, part := range parts {
		if _, err := tempFile.Write(part); err != nil {
			tempFile.Close()
			os.Remove(tempPath)
			return errors.NewIO("write", tempPath, err)
		}
	}
	if err := tempFile.Chmod(defaultFileMode); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return errors.NewIO("chmod", tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return errors.NewIO("close", tempPath, err)
	}
	if err := osRenamePack(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}
