package cas

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// journalName is the append-only record of backups, one JSON object per line.
const journalName = "journal.jsonl"

// Record describes one file kept in the store.
type Record struct {
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
	Digest
}

// nowFunc is a variable to allow deterministic timestamps in tests.
var nowFunc = time.Now

// Backup stores the file at path and appends a journal record for it.
func (s *Store) Backup(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	digest, err := s.Put(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	rec := &Record{Source: abs, Time: nowFunc().UTC(), Digest: *digest}

	line, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.root, journalName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to append journal: %w", err)
	}
	return rec, nil
}

// Records returns the journal, newest first.
func (s *Store) Records() ([]Record, error) {
	data, err := os.ReadFile(filepath.Join(s.root, journalName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.After(records[j].Time)
	})
	return records, nil
}

// Restore writes the blob with the given SHA-256 or BLAKE3 digest to dst.
func (s *Store) Restore(digest, dst string) error {
	data, err := s.Get(digest)
	if errors.Is(err, ErrBlobNotFound) {
		data, err = s.GetByBlake3(digest)
	}
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Dir(dst), dst, ".restore-*", data)
}
