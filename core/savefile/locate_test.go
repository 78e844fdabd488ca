package savefile

import (
	"bytes"
	"errors"
	"testing"

	ferrors "github.com/FocuswithJustin/F1MSave/core/errors"
)

func isMalformed(err error) bool {
	return errors.Is(err, ferrors.ErrMalformedContainer)
}

func TestLocate(t *testing.T) {
	reserved := []byte{1, 2, 3, 4}
	header := make([]byte, HeaderLen)

	tests := []struct {
		name    string
		data    []byte
		want    int64
		wantErr bool
	}{
		{
			name: "marker at start",
			data: append(append([]byte(Marker), reserved...), header...),
			want: int64(len(Marker) + ReservedLen),
		},
		{
			name: "marker at offset k",
			data: append(append(append(bytes.Repeat([]byte{0xEE}, 1000), Marker...), reserved...), header...),
			want: 1000 + int64(len(Marker)+ReservedLen),
		},
		{
			name: "first of two markers wins",
			data: append(append(append(append([]byte("ab"), Marker...), reserved...), Marker...), reserved...),
			want: 2 + int64(len(Marker)+ReservedLen),
		},
		{
			name: "reserved field exactly at end of file",
			data: append([]byte(Marker), reserved...),
			want: int64(len(Marker) + ReservedLen),
		},
		{
			name:    "reserved field truncated",
			data:    append([]byte(Marker), 1, 2),
			wantErr: true,
		},
		{
			name:    "no marker",
			data:    bytes.Repeat([]byte("None"), 100),
			wantErr: true,
		},
		{
			name:    "partial marker",
			data:    []byte(Marker[:len(Marker)-1]),
			wantErr: true,
		},
		{
			name:    "empty input",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Locate(tt.data)
			if tt.wantErr {
				if !isMalformed(err) {
					t.Fatalf("Locate() error = %v, want malformed container", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Locate() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Locate() = %d, want %d", got, tt.want)
			}
			if markerOffset(got) != tt.want-int64(len(Marker)+ReservedLen) {
				t.Errorf("markerOffset(%d) = %d", got, markerOffset(got))
			}
		})
	}
}
