package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name    string
		err     *NotFoundError
		wantMsg string
	}{
		{
			name:    "with path",
			err:     &NotFoundError{Resource: "save file", Path: "auto.sav"},
			wantMsg: "save file not found: auto.sav",
		},
		{
			name:    "without path",
			err:     &NotFoundError{Resource: "chunk1"},
			wantMsg: "chunk1 not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrNotFound) {
				t.Errorf("errors.Is(%v, ErrNotFound) = false", tt.err)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("stat failed")
		err := &NotFoundError{Resource: "chunk1", Path: "dir/chunk1", Err: underlyingErr}
		if !errors.Is(err, ErrNotFound) {
			t.Error("expected ErrNotFound to stay reachable when Err is set")
		}
		if !errors.Is(err, underlyingErr) {
			t.Error("expected underlying error to be reachable")
		}
	})
}

func TestIOError(t *testing.T) {
	underlying := io.ErrUnexpectedEOF
	tests := []struct {
		name    string
		err     *IOError
		wantMsg string
	}{
		{
			name:    "with path",
			err:     NewIO("write", "out/main.db", underlying),
			wantMsg: "failed to write out/main.db: unexpected EOF",
		},
		{
			name:    "without path",
			err:     NewIO("read", "", underlying),
			wantMsg: "failed to read: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, underlying) {
				t.Errorf("expected %v to wrap %v", tt.err, underlying)
			}
		})
	}
}

func TestMalformedError(t *testing.T) {
	tests := []struct {
		name    string
		err     *MalformedError
		wantMsg string
	}{
		{
			name:    "path and offset",
			err:     NewMalformed("a.sav", 42, "frame header truncated"),
			wantMsg: "malformed container a.sav: frame header truncated (offset 42)",
		},
		{
			name:    "unknown offset",
			err:     NewMalformed("", -1, "marker not found"),
			wantMsg: "malformed container: marker not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrMalformedContainer) {
				t.Error("expected ErrMalformedContainer")
			}
		})
	}
}

func TestCorruptPayloadError(t *testing.T) {
	decoderErr := errors.New("zlib: invalid header")
	err := NewCorruptPayload("a.sav", "decompress", decoderErr)

	if got, want := err.Error(), "corrupt payload in a.sav: decompress: zlib: invalid header"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrCorruptPayload) {
		t.Error("expected ErrCorruptPayload")
	}
	if !errors.Is(err, decoderErr) {
		t.Error("expected decoder error to be reachable")
	}

	short := NewCorruptPayload("", "short read", nil)
	if got, want := short.Error(), "corrupt payload: short read"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCompressionErrorIsDistinctFromIO(t *testing.T) {
	err := NewCompression(errors.New("encoder closed"))
	if !errors.Is(err, ErrCompression) {
		t.Error("expected ErrCompression")
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		t.Error("compression error must not classify as IOError")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidation("input", "path cannot be empty")
	if got, want := err.Error(), "validation failed for input: path cannot be empty"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected ErrInvalidInput")
	}
}

func TestWrap(t *testing.T) {
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	base := NewNotFound("chunk1", "x", nil)
	wrapped := Wrapf(Wrapf(base, "pack"), "slot %d", 0)
	if got, want := wrapped.Error(), "slot 0: pack: chunk1 not found: x"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(wrapped, ErrNotFound) {
		t.Error("Is should see through Wrapf")
	}
	var nf *NotFoundError
	if !As(wrapped, &nf) || nf.Path != "x" {
		t.Errorf("As failed, got %+v", nf)
	}
}
