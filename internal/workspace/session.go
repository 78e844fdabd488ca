// Package workspace manages edit sessions over a save file: the container
// is unpacked into a private directory, main.db is opened for the caller's
// SQL, and the result is packed back into a save.
package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/F1MSave/core/cas"
	"github.com/FocuswithJustin/F1MSave/core/savefile"
	"github.com/FocuswithJustin/F1MSave/core/sqlite"
	"github.com/FocuswithJustin/F1MSave/internal/logging"
)

// Injectable for tests.
var (
	osMkdirAll  = os.MkdirAll
	osRemoveAll = os.RemoveAll
	osStat      = os.Stat
	newID       = func() string { return uuid.New().String() }
)

// Options configures a Session.
type Options struct {
	// TempRoot is the parent of the session directory. Defaults to os.TempDir().
	TempRoot string
	// Backups receives a copy of an existing target before Repack overwrites it.
	// Nil disables backups.
	Backups *cas.Store
	// Pack is passed to savefile.Pack. Nil uses the defaults.
	Pack *savefile.PackOptions
	// ReadOnly opens main.db without write access.
	ReadOnly bool
}

// RepackResult describes a completed Repack.
type RepackResult struct {
	Layout *savefile.Layout
	// Backup is the journal record of the previous target, if one was taken.
	Backup *cas.Record
}

// Session is one unpacked save open for editing.
type Session struct {
	ID     string
	Source string
	Layout *savefile.Layout

	dir  string
	opts Options

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Open unpacks savePath into a new session directory named after the
// session ID.
func Open(ctx context.Context, savePath string, opts *Options) (*Session, error) {
	if opts == nil {
		opts = &Options{}
	}
	root := opts.TempRoot
	if root == "" {
		root = os.TempDir()
	}

	id := newID()
	dir := filepath.Join(root, "f1msave-"+id)
	if err := osMkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	ctx = logging.WithSessionID(ctx, id)
	layout, err := savefile.Unpack(ctx, savePath, dir)
	if err != nil {
		osRemoveAll(dir)
		return nil, err
	}

	logging.InfoContext(ctx, "session opened", "source", savePath, "dir", dir)
	return &Session{
		ID:     id,
		Source: savePath,
		Layout: layout,
		dir:    dir,
		opts:   *opts,
	}, nil
}

// Dir returns the session's unpacked directory.
func (s *Session) Dir() string {
	return s.dir
}

// DB returns the connection to the session's main.db, opening it on first use.
func (s *Session) DB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dbLocked()
}

func (s *Session) dbLocked() (*sql.DB, error) {
	if s.closed {
		return nil, fmt.Errorf("session %s is closed", s.ID)
	}
	if s.db != nil {
		return s.db, nil
	}
	path := filepath.Join(s.dir, savefile.MainDBName)
	if _, err := osStat(path); err != nil {
		return nil, fmt.Errorf("session %s has no %s: %w", s.ID, savefile.MainDBName, err)
	}
	openDB := sqlite.Open
	if s.opts.ReadOnly {
		openDB = sqlite.OpenReadOnly
	}
	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", savefile.MainDBName, err)
	}
	s.db = db
	return db, nil
}

// Tables lists the user tables of main.db sorted by name, with row counts.
func (s *Session) Tables(ctx context.Context) ([]sqlite.TableInfo, error) {
	db, err := s.DB()
	if err != nil {
		return nil, err
	}
	return sqlite.DescribeTables(ctx, db)
}

// Check runs SQLite's quick_check over main.db.
func (s *Session) Check(ctx context.Context) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	return sqlite.QuickCheck(ctx, db)
}

// Repack closes the database connection and packs the session directory
// into target. An existing target is first copied into the backup store.
func (s *Session) Repack(ctx context.Context, target string) (*RepackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session %s is closed", s.ID)
	}
	if err := s.closeDBLocked(); err != nil {
		return nil, err
	}

	ctx = logging.WithSessionID(ctx, s.ID)
	result := &RepackResult{}

	if s.opts.Backups != nil {
		if _, err := osStat(target); err == nil {
			rec, err := s.opts.Backups.Backup(target)
			if err != nil {
				return nil, fmt.Errorf("failed to back up %s: %w", target, err)
			}
			logging.InfoContext(ctx, "backed up existing save",
				"target", target,
				"sha256", rec.SHA256,
				"blake3", rec.BLAKE3,
			)
			result.Backup = rec
		}
	}

	layout, err := savefile.Pack(ctx, s.dir, target, s.opts.Pack)
	if err != nil {
		return nil, err
	}
	result.Layout = layout
	return result, nil
}

func (s *Session) closeDBLocked() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", savefile.MainDBName, err)
	}
	return nil
}

// Close releases the database and removes the session directory. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	dbErr := s.closeDBLocked()
	if err := osRemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return dbErr
}
