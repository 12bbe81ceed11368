// Package ledger records every mutation the engine performs: single-file
// backups and multi-file checkpoints, stored as compressed content-addressed
// objects behind a sqlite index.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/sandbox"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const (
	IndexFile  = "ledger.db"
	ObjectsDir = "objects"
)

// Options configures a Store.
type Options struct {
	Dir     string
	Sandbox *sandbox.Policy
	Logger  *zap.Logger
	Now     func() time.Time
}

// Store is the backup and checkpoint ledger rooted at one directory.
// It is safe for concurrent use.
type Store struct {
	dir     string
	db      *sql.DB
	objects *objectPool
	policy  *sandbox.Policy
	logger  *zap.Logger
	now     func() time.Time

	// gc excludes object collection while a record is between its object
	// write and its index insert.
	gc sync.RWMutex
}

// Open creates or opens the ledger under opts.Dir.
func Open(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, failure.New(failure.InvalidArgument, "ledger directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, failure.Wrap(failure.IOFailure, err, "create ledger directory")
	}
	objects, err := newObjectPool(filepath.Join(opts.Dir, ObjectsDir))
	if err != nil {
		return nil, failure.Wrap(failure.IOFailure, err, "open object pool")
	}

	db, err := sql.Open("sqlite", filepath.Join(opts.Dir, IndexFile)+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		objects.close()
		return nil, failure.Wrap(failure.IOFailure, err, "open ledger index")
	}

	s := &Store{
		dir:     opts.Dir,
		db:      db,
		objects: objects,
		policy:  opts.Sandbox,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := s.init(); err != nil {
		s.Close()
		return nil, failure.Wrap(failure.IOFailure, err, "initialize ledger index")
	}
	return s, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS backups (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		operation TEXT NOT NULL,
		hash TEXT NOT NULL,
		size INTEGER NOT NULL,
		mode INTEGER NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		root TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoint_files (
		checkpoint_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		path TEXT NOT NULL,
		hash TEXT NOT NULL,
		size INTEGER NOT NULL,
		mode INTEGER NOT NULL,
		PRIMARY KEY (checkpoint_id, seq),
		FOREIGN KEY (checkpoint_id) REFERENCES checkpoints(id)
	);

	CREATE INDEX IF NOT EXISTS idx_backups_path ON backups(path, created_at);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_target ON checkpoints(target, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the index and the object codecs.
func (s *Store) Close() error {
	s.objects.close()
	return s.db.Close()
}

// Dir returns the ledger root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) check(path string) (string, error) {
	return s.policy.Check(path)
}

// withTx runs fn in a transaction, retrying once when sqlite reports lock
// contention.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	err := s.tx(ctx, fn)
	if isBusy(err) {
		s.logger.Debug("ledger busy, retrying", zap.Error(err))
		err = s.tx(ctx, fn)
	}
	return err
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func unixNano(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n)
}

func notFound(what, id string) error {
	return failure.New(failure.NotFound, "%s %q not found", what, id)
}

func indexErr(err error, format string, args ...any) error {
	return failure.Wrap(failure.IOFailure, err, format, args...)
}
