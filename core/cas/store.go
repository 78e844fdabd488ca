// Package cas keeps content-addressed copies of save files.
// Blobs are stored by their SHA-256 hash with a BLAKE3 pointer beside
// them, so a save that is about to be overwritten can be kept once and
// restored later by either digest.
package cas

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when a blob with the given hash does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a hash string is not a 64-character lowercase hex string.
var ErrInvalidHash = errors.New("invalid hash format")

// hashPattern matches a lowercase 256-bit hex digest.
var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Store is a content-addressed blob store rooted at a directory.
type Store struct {
	root string
}

// NewStore creates a store at root, creating its directory layout if needed.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		filepath.Join(root, "blobs", "sha256"),
		filepath.Join(root, "blobs", "blake3"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores data under its SHA-256 digest and records a BLAKE3 pointer.
// Storing identical data twice is a no-op.
func (s *Store) Put(data []byte) (*Digest, error) {
	d := Fingerprint(data)

	blobPath := s.pathForHash("sha256", d.SHA256)
	if !s.Exists(d.SHA256) {
		if err := writeAtomic(filepath.Dir(blobPath), blobPath, ".blob-*", data); err != nil {
			return nil, fmt.Errorf("failed to store blob: %w", err)
		}
	}

	pointerPath := s.pathForHash("blake3", d.BLAKE3) + ".json"
	if _, err := os.Stat(pointerPath); err != nil {
		pointer, err := json.Marshal(blake3Pointer{SHA256: d.SHA256})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pointer: %w", err)
		}
		if err := writeAtomic(filepath.Dir(pointerPath), pointerPath, ".pointer-*", pointer); err != nil {
			return nil, fmt.Errorf("failed to create BLAKE3 pointer: %w", err)
		}
	}

	return &d, nil
}

// Get returns the blob with the given SHA-256 digest.
func (s *Store) Get(sha256Hash string) ([]byte, error) {
	if !isValidHash(sha256Hash) {
		return nil, ErrInvalidHash
	}

	data, err := os.ReadFile(s.pathForHash("sha256", sha256Hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Exists checks if a blob with the given SHA-256 digest exists in the store.
func (s *Store) Exists(sha256Hash string) bool {
	if !isValidHash(sha256Hash) {
		return false
	}
	_, err := os.Stat(s.pathForHash("sha256", sha256Hash))
	return err == nil
}

// pathForHash returns the path of a blob or pointer.
// Layout: <root>/blobs/<algo>/<first2>/<hash>
func (s *Store) pathForHash(algo, hash string) string {
	return filepath.Join(s.root, "blobs", algo, hash[:2], hash)
}

// isValidHash checks if a hash string is a valid 256-bit hex string.
func isValidHash(hash string) bool {
	return hashPattern.MatchString(hash)
}

// writeAtomic writes data to a temp file in dir and renames it to path.
func writeAtomic(dir, path, pattern string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Rename to final path (atomic on POSIX)
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// hexDigest encodes a 32-byte digest.
func hexDigest(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}
