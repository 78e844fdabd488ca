// Package errors provides the error kinds reported by the save-file codec and its callers.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for each reported kind. Use Is to classify a returned error.
var (
	// ErrNotFound indicates an input file or a required chunk is missing
	ErrNotFound = errors.New("not found")
	// ErrMalformedContainer indicates the input is not a recognized save container
	ErrMalformedContainer = errors.New("malformed container")
	// ErrCorruptPayload indicates the compressed database section cannot be decoded
	ErrCorruptPayload = errors.New("corrupt payload")
	// ErrCompression indicates the DEFLATE encoder failed
	ErrCompression = errors.New("compression failed")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
)

// NotFoundError represents a missing file with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "save file", "chunk1")
	Path     string // Path that was looked up
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.Path)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Unwrap reports ErrNotFound and, when set, the underlying error.
func (e *NotFoundError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNotFound, e.Err}
	}
	return []error{ErrNotFound}
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "create")
	Path      string // File path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// MalformedError reports a container whose framing could not be located or read.
type MalformedError struct {
	Path    string // Container path, if known
	Offset  int64  // Byte offset where parsing stopped, -1 if unknown
	Message string
}

func (e *MalformedError) Error() string {
	msg := e.Message
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s (offset %d)", msg, e.Offset)
	}
	if e.Path != "" {
		return fmt.Sprintf("malformed container %s: %s", e.Path, msg)
	}
	return fmt.Sprintf("malformed container: %s", msg)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedContainer
}

// CorruptPayloadError reports a payload that is short, truncated or not valid zlib.
type CorruptPayloadError struct {
	Path    string
	Message string
	Err     error // Decoder error, if any
}

func (e *CorruptPayloadError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("corrupt payload in %s: %s", e.Path, msg)
	}
	return fmt.Sprintf("corrupt payload: %s", msg)
}

func (e *CorruptPayloadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCorruptPayload, e.Err}
	}
	return []error{ErrCorruptPayload}
}

// CompressionError wraps a failure of the payload encoder.
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compression failed: %v", e.Err)
}

func (e *CompressionError) Unwrap() []error {
	return []error{ErrCompression, e.Err}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, path string, err error) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Path:     path,
		Err:      err,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewMalformed creates a MalformedError
func NewMalformed(path string, offset int64, message string) *MalformedError {
	return &MalformedError{
		Path:    path,
		Offset:  offset,
		Message: message,
	}
}

// NewCorruptPayload creates a CorruptPayloadError
func NewCorruptPayload(path, message string, err error) *CorruptPayloadError {
	return &CorruptPayloadError{
		Path:    path,
		Message: message,
		Err:     err,
	}
}

// NewCompression creates a CompressionError
func NewCompression(err error) *CompressionError {
	return &CompressionError{Err: err}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
