package savefile

import (
	"context"
	"os"

	"github.com/FocuswithJustin/F1MSave/core/cas"
	"github.com/FocuswithJustin/F1MSave/core/errors"
	"github.com/FocuswithJustin/F1MSave/internal/validation"
)

// SlotInfo describes one decoded database image.
type SlotInfo struct {
	Slot     string              `json:"slot"`
	FileName string              `json:"file_name"`
	Size     uint32              `json:"size"`
	Digest   cas.Digest          `json:"digest"`
	Type     validation.FileType `json:"type"`
}

// Report is the result of Inspect.
type Report struct {
	Path             string     `json:"path"`
	FileSize         int64      `json:"file_size"`
	MarkerOffset     int64      `json:"marker_offset"`
	PreambleLen      int64      `json:"preamble_len"`
	CompressedLength uint32     `json:"compressed_length"`
	SlotSizes        [3]uint32  `json:"slot_sizes"`
	TrailingBytes    int64      `json:"trailing_bytes"`
	Preamble         cas.Digest `json:"preamble"`
	Slots            []SlotInfo `json:"slots"`
}

// Inspect decodes the container at path without writing anything and
// reports its framing and a fingerprint of each present slot.
func Inspect(ctx context.Context, path string) (*Report, error) {
	data, err := osReadFileUnpack(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("save file", path, err)
		}
		return nil, errors.NewIO("read", path, err)
	}

	preambleEnd, err := Locate(data)
	if err != nil {
		return nil, errors.Wrapf(err, "inspect %s", path)
	}
	header, payload, trailing, err := readFrame(data, preambleEnd)
	if err != nil {
		return nil, errors.Wrapf(err, "inspect %s", path)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images, err := decompress(payload, header)
	if err != nil {
		return nil, errors.Wrapf(err, "inspect %s", path)
	}

	report := &Report{
		Path:             path,
		FileSize:         int64(len(data)),
		MarkerOffset:     markerOffset(preambleEnd),
		PreambleLen:      preambleEnd,
		CompressedLength: header.CompressedLength,
		SlotSizes:        header.Sizes,
		TrailingBytes:    trailing,
		Preamble:         cas.Fingerprint(data[:preambleEnd]),
	}

	var cursor uint64
	for _, slot := range header.PresentSlots() {
		size := uint64(header.Sizes[slot])
		image := images[cursor : cursor+size]
		report.Slots = append(report.Slots, SlotInfo{
			Slot:     slot.String(),
			FileName: slot.FileName(),
			Size:     header.Sizes[slot],
			Digest:   cas.Fingerprint(image),
			Type:     validation.DetectFileTypeBytes(image),
		})
		cursor += size
	}
	return report, nil
}
