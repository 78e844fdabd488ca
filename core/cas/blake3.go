package cas

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// Digest identifies a blob by both of its hashes.
type Digest struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
	Size   int64  `json:"size"`
}

// blake3Pointer is the structure stored in BLAKE3 pointer files.
type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// Fingerprint computes the SHA-256 and BLAKE3 digests of data without storing it.
func Fingerprint(data []byte) Digest {
	return Digest{
		SHA256: hexDigest(sha256.Sum256(data)),
		BLAKE3: hexDigest(blake3.Sum256(data)),
		Size:   int64(len(data)),
	}
}

// LookupBlake3 resolves a BLAKE3 digest to the SHA-256 digest it was stored under.
// Returns ErrBlobNotFound if no pointer file exists for the BLAKE3 hash.
func (s *Store) LookupBlake3(blake3Hash string) (string, error) {
	if !isValidHash(blake3Hash) {
		return "", ErrInvalidHash
	}

	data, err := os.ReadFile(s.pathForHash("blake3", blake3Hash) + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to read pointer: %w", err)
	}

	var pointer blake3Pointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return "", fmt.Errorf("failed to parse pointer: %w", err)
	}
	return pointer.SHA256, nil
}

// GetByBlake3 retrieves a blob by its BLAKE3 hash.
func (s *Store) GetByBlake3(blake3Hash string) ([]byte, error) {
	sha256Hash, err := s.LookupBlake3(blake3Hash)
	if err != nil {
		return nil, err
	}
	return s.Get(sha256Hash)
}
