// Package savefile reads and writes the F1 Manager save container.
//
// A container is an opaque preamble ending in a fixed marker and a 4-byte
// reserved field, followed by a frame header of four little-endian u32
// values (compressed length and three slot sizes) and a single zlib stream
// holding the concatenated SQLite images of the primary database and up
// to two backups.
//
// Unpack splits a container into a directory holding chunk1 (the preamble)
// and one file per present slot. Pack reverses the process.
package savefile

import (
	"encoding/binary"
	"fmt"

	"github.com/FocuswithJustin/F1MSave/core/errors"
)

// Marker is the byte sequence that closes the preamble: two length-tagged
// "None" tokens. It is matched as opaque bytes.
const Marker = "\x00\x05\x00\x00\x00None\x00\x05\x00\x00\x00None\x00"

const (
	// ReservedLen is the number of unknown bytes between Marker and the frame header.
	ReservedLen = 4
	// SlotCount is the number of database slots in a frame header.
	SlotCount = 3
	// HeaderLen is the encoded frame header size: compressed length plus one size per slot.
	HeaderLen = 4 + 4*SlotCount
)

// File names inside an unpacked directory.
const (
	ChunkFileName   = "chunk1"
	MainDBName      = "main.db"
	Backup1DBName   = "backup1.db"
	Backup2DBName   = "backup2.db"
	maxFrameField   = 1<<32 - 1
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// Slot identifies one embedded database image by its position in the payload.
type Slot int

const (
	SlotPrimary Slot = iota
	SlotBackup1
	SlotBackup2
)

// Slots lists every slot in payload order.
var Slots = [SlotCount]Slot{SlotPrimary, SlotBackup1, SlotBackup2}

// FileName returns the file the slot is written to in an unpacked directory.
func (s Slot) FileName() string {
	switch s {
	case SlotPrimary:
		return MainDBName
	case SlotBackup1:
		return Backup1DBName
	case SlotBackup2:
		return Backup2DBName
	}
	return ""
}

func (s Slot) String() string {
	switch s {
	case SlotPrimary:
		return "primary"
	case SlotBackup1:
		return "backup1"
	case SlotBackup2:
		return "backup2"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// Header is the frame header that follows the reserved field.
type Header struct {
	CompressedLength uint32
	Sizes            [SlotCount]uint32
}

// MarshalBinary encodes the header. All three size fields are always
// emitted; absent slots are written as 0.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.CompressedLength)
	for i, size := range h.Sizes {
		binary.LittleEndian.PutUint32(buf[4+4*i:], size)
	}
	return buf, nil
}

// UnmarshalBinary decodes a header from the first HeaderLen bytes of data.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLen {
		return errors.NewMalformed("", -1, fmt.Sprintf("frame header needs %d bytes, have %d", HeaderLen, len(data)))
	}
	h.CompressedLength = binary.LittleEndian.Uint32(data[0:4])
	for i := range h.Sizes {
		h.Sizes[i] = binary.LittleEndian.Uint32(data[4+4*i:])
	}
	return nil
}

// PresentSlots returns the leading run of slots with a nonzero size.
// Scanning stops at the first empty slot, so a slot that follows an empty
// one is never reported even if its size is nonzero.
func (h Header) PresentSlots() []Slot {
	var present []Slot
	for _, slot := range Slots {
		if h.Sizes[slot] == 0 {
			break
		}
		present = append(present, slot)
	}
	return present
}

// DeclaredTotal is the sum of all three slot sizes.
func (h Header) DeclaredTotal() uint64 {
	var total uint64
	for _, size := range h.Sizes {
		total += uint64(size)
	}
	return total
}

// Layout describes where the regions of a container were found.
type Layout struct {
	// MarkerOffset is the offset of the first Marker byte.
	MarkerOffset int64
	// PreambleLen is the length of chunk1: marker and reserved field included.
	PreambleLen int64
	Header      Header
	// Slots lists the slots that were written (unpack) or read (pack).
	Slots []Slot
	// TrailingBytes counts bytes after the compressed payload. Pack never produces any.
	TrailingBytes int64
}
