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
	osStatUnpack      = os.Stat
	osReadFileUnpack  = os.ReadFile
	osMkdirAllUnpack  = os.MkdirAll
	osWriteFileUnpack = os.WriteFile
	zlibNewReader     = zlib.NewReader
)

// Unpack splits the container at input into outDir, creating outDir if
// needed. It writes chunk1 followed by main.db, backup1.db and backup2.db
// for the leading run of nonzero slots.
//
// On a corrupt payload chunk1 has already been written; the directory
// must not be used until a later Unpack succeeds.
func Unpack(ctx context.Context, input, outDir string) (*Layout, error) {
	start := time.Now()
	layout, err := unpack(ctx, input, outDir)
	if err != nil {
		logging.CodecError(ctx, "unpack", input, err)
		return nil, err
	}
	logging.CodecEvent(ctx, "unpack", input, outDir, time.Since(start),
		"preamble_bytes", layout.PreambleLen,
		"compressed_bytes", layout.Header.CompressedLength,
		"slots", len(layout.Slots),
	)
	return layout, nil
}

func unpack(ctx context.Context, input, outDir string) (*Layout, error) {
	if _, err := osStatUnpack(input); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("save file", input, err)
		}
		return nil, errors.NewIO("stat", input, err)
	}

	if err := osMkdirAllUnpack(outDir, defaultDirMode); err != nil {
		return nil, errors.NewIO("create directory", outDir, err)
	}

	data, err := osReadFileUnpack(input)
	if err != nil {
		return nil, errors.NewIO("read", input, err)
	}

	preambleEnd, err := Locate(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", input)
	}
	logging.DebugContext(ctx, "located database section", "input", input, "offset", preambleEnd)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunkPath := filepath.Join(outDir, ChunkFileName)
	if err := osWriteFileUnpack(chunkPath, data[:preambleEnd], defaultFileMode); err != nil {
		return nil, errors.NewIO("write", chunkPath, err)
	}

	header, payload, trailing, err := readFrame(data, preambleEnd)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", input)
	}
	if trailing > 0 {
		logging.WarnContext(ctx, "ignoring bytes after compressed payload", "input", input, "bytes", trailing)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images, err := decompress(payload, header)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", input)
	}

	layout := &Layout{
		MarkerOffset:  markerOffset(preambleEnd),
		PreambleLen:   preambleEnd,
		Header:        header,
		TrailingBytes: trailing,
	}

	var cursor uint64
	for _, slot := range header.PresentSlots() {
		size := uint64(header.Sizes[slot])
		path := filepath.Join(outDir, slot.FileName())
		if err := osWriteFileUnpack(path, images[cursor:cursor+size], defaultFileMode); err != nil {
			return nil, errors.NewIO("write", path, err)
		}
		logging.DebugContext(ctx, "wrote slot", "slot", slot.String(), "path", path, "bytes", size)
		cursor += size
		layout.Slots = append(layout.Slots, slot)
	}

	return layout, nil
}

// readFrame decodes the frame header at off and returns the compressed
// payload it bounds and the number of bytes left after it.
func readFrame(data []byte, off int64) (Header, []byte, int64, error) {
	var header Header
	rest := data[off:]
	if err := header.UnmarshalBinary(rest); err != nil {
		return header, nil, 0, errors.NewMalformed("", off, "frame header truncated")
	}
	rest = rest[HeaderLen:]

	if int64(header.CompressedLength) > int64(len(rest)) {
		return header, nil, 0, errors.NewCorruptPayload("",
			fmt.Sprintf("declared %d compressed bytes, only %d remain", header.CompressedLength, len(rest)), nil)
	}
	payload := rest[:header.CompressedLength]
	return header, payload, int64(len(rest)) - int64(header.CompressedLength), nil
}

// maxInflateRatio bounds how far DEFLATE can expand its input.
const maxInflateRatio = 1032

// decompress inflates payload and returns the bytes covering the declared
// slot sizes. The stream is read to its end so a bad checksum is reported;
// bytes past the declared total are discarded.
func decompress(payload []byte, header Header) ([]byte, error) {
	zr, err := zlibNewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewCorruptPayload("", "open zlib stream", err)
	}
	defer zr.Close()

	total := header.DeclaredTotal()
	if total > uint64(len(payload))*maxInflateRatio {
		return nil, errors.NewCorruptPayload("",
			fmt.Sprintf("slot sizes declare %d bytes, more than %d compressed bytes can hold", total, len(payload)), nil)
	}
	images := make([]byte, total)
	n, err := io.ReadFull(zr, images)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, errors.NewCorruptPayload("",
				fmt.Sprintf("payload inflates to %d bytes, slot sizes declare %d", n, total), nil)
		}
		return nil, errors.NewCorruptPayload("", "inflate", err)
	}

	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, errors.NewCorruptPayload("", "inflate", err)
	}
	return images, nil
}
