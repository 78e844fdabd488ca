package savefile

import (
	"bytes"

	"github.com/FocuswithJustin/F1MSave/core/errors"
)

// Locate returns the offset where the frame header begins: just past the
// first occurrence of Marker and the ReservedLen bytes after it. The
// returned value is also the length of chunk1.
func Locate(data []byte) (int64, error) {
	idx := bytes.Index(data, []byte(Marker))
	if idx < 0 {
		return 0, errors.NewMalformed("", -1, "database section marker not found")
	}
	end := int64(idx) + int64(len(Marker)) + ReservedLen
	if end > int64(len(data)) {
		return 0, errors.NewMalformed("", int64(idx), "reserved field after marker is truncated")
	}
	return end, nil
}

// markerOffset returns the offset of the marker given a preamble end from Locate.
func markerOffset(preambleEnd int64) int64 {
	return preambleEnd - ReservedLen - int64(len(Marker))
}
