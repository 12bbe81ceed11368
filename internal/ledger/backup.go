package ledger

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/morozRed/unitsmith/internal/diff"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/fileutil"
	"go.uber.org/zap"
)

// OpPreRestore marks the safety backup taken before a restore overwrites a file.
const OpPreRestore = "pre-restore"

// BackupRecord is one immutable single-file snapshot.
type BackupRecord struct {
	ID         string      `json:"id"`
	Path       string      `json:"path"`
	Operation  string      `json:"operation"`
	Timestamp  time.Time   `json:"timestamp"`
	StoredPath string      `json:"stored_path"`
	Hash       string      `json:"hash"`
	Size       int64       `json:"size"`
	Mode       os.FileMode `json:"mode"`
	Note       string      `json:"note,omitempty"`
	Corrupt    bool        `json:"corrupt,omitempty"`
}

// RestoreResult describes a completed single-file restore.
type RestoreResult struct {
	Backup       BackupRecord `json:"backup"`
	Path         string       `json:"path"`
	SafetyBackup string       `json:"safety_backup,omitempty"`
	Bytes        int          `json:"bytes"`
}

// Backup snapshots the current content of path. A file that cannot be read
// aborts with IOFailure and nothing is recorded.
func (s *Store) Backup(ctx context.Context, path, operation, note string) (BackupRecord, error) {
	abs, err := s.check(path)
	if err != nil {
		return BackupRecord{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return BackupRecord{}, failure.Wrap(failure.IOFailure, err, "stat %s", abs)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return BackupRecord{}, failure.Wrap(failure.IOFailure, err, "read %s", abs)
	}
	return s.BackupBytes(ctx, abs, data, info.Mode().Perm(), operation, note)
}

// BackupBytes records data as the content of path. Callers that already
// hold the bytes they are about to replace use this to avoid a second read.
func (s *Store) BackupBytes(ctx context.Context, path string, data []byte, mode os.FileMode, operation, note string) (BackupRecord, error) {
	abs, err := s.check(path)
	if err != nil {
		return BackupRecord{}, err
	}
	if operation == "" {
		operation = "manual"
	}

	s.gc.RLock()
	defer s.gc.RUnlock()

	hash, err := s.objects.put(data)
	if err != nil {
		return BackupRecord{}, failure.Wrap(failure.IOFailure, err, "store copy of %s", abs)
	}
	rec := BackupRecord{
		ID:         newID(),
		Path:       abs,
		Operation:  operation,
		Timestamp:  s.now(),
		StoredPath: s.objects.path(hash),
		Hash:       hash,
		Size:       int64(len(data)),
		Mode:       mode,
		Note:       note,
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backups (id, path, operation, hash, size, mode, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Path, rec.Operation, rec.Hash, rec.Size, uint32(rec.Mode), rec.Note, unixNano(rec.Timestamp))
		return err
	})
	if err != nil {
		return BackupRecord{}, indexErr(err, "record backup of %s", abs)
	}

	s.logger.Debug("backup recorded",
		zap.String("id", rec.ID),
		zap.String("path", rec.Path),
		zap.String("operation", rec.Operation),
		zap.Int64("size", rec.Size),
	)
	return rec, nil
}

// ListBackups returns backups newest first. An empty path lists every file;
// limit <= 0 means no limit. Records whose stored copy is gone are flagged
// corrupt rather than dropped.
func (s *Store) ListBackups(ctx context.Context, path string, limit int) ([]BackupRecord, error) {
	query := `SELECT id, path, operation, hash, size, mode, note, created_at FROM backups`
	var args []any
	if path != "" {
		abs, err := s.check(path)
		if err != nil {
			return nil, err
		}
		query += ` WHERE path = ?`
		args = append(args, abs)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, indexErr(err, "list backups")
	}
	defer rows.Close()

	var records []BackupRecord
	for rows.Next() {
		rec, err := s.scanBackup(rows)
		if err != nil {
			return nil, indexErr(err, "read backup row")
		}
		rec.Corrupt = !s.objects.exists(rec.Hash)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr(err, "list backups")
	}
	return records, nil
}

// GetBackup returns one record by id.
func (s *Store) GetBackup(ctx context.Context, id string) (BackupRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, operation, hash, size, mode, note, created_at
		FROM backups WHERE id = ?`, id)
	rec, err := s.scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BackupRecord{}, notFound("backup", id)
	}
	if err != nil {
		return BackupRecord{}, indexErr(err, "read backup %s", id)
	}
	rec.Corrupt = !s.objects.exists(rec.Hash)
	return rec, nil
}

// ReadBackup returns a record and its verified stored bytes.
func (s *Store) ReadBackup(ctx context.Context, id string) (BackupRecord, []byte, error) {
	rec, err := s.GetBackup(ctx, id)
	if err != nil {
		return BackupRecord{}, nil, err
	}
	data, err := s.objects.get(rec.Hash)
	if err != nil {
		rec.Corrupt = true
		return rec, nil, failure.Wrap(failure.IOFailure, err, "backup %s", id)
	}
	return rec, data, nil
}

// Restore writes a backup's bytes to dest, or to the original path when dest
// is empty. Whatever currently exists at the destination is backed up first
// so the restore itself can be undone.
func (s *Store) Restore(ctx context.Context, id, dest string) (RestoreResult, error) {
	rec, data, err := s.ReadBackup(ctx, id)
	if err != nil {
		if failure.Is(err, failure.NotFound) {
			return RestoreResult{}, err
		}
		return RestoreResult{}, failure.Wrap(failure.PartialRestoreRefused, err, "restore of %s refused", id)
	}
	if dest == "" {
		dest = rec.Path
	}
	target, err := s.check(dest)
	if err != nil {
		return RestoreResult{}, err
	}

	result := RestoreResult{Backup: rec, Path: target, Bytes: len(data)}
	mode := rec.Mode
	current, err := os.ReadFile(target)
	switch {
	case err == nil:
		mode = fileutil.FileMode(target, rec.Mode)
		safety, err := s.BackupBytes(ctx, target, current, mode, OpPreRestore, "before restoring "+rec.ID)
		if err != nil {
			return RestoreResult{}, failure.Wrap(failure.PartialRestoreRefused, err, "safety backup of %s", target)
		}
		result.SafetyBackup = safety.ID
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return RestoreResult{}, failure.Wrap(failure.IOFailure, err, "create %s", filepath.Dir(target))
		}
	default:
		return RestoreResult{}, failure.Wrap(failure.PartialRestoreRefused, err, "read %s", target)
	}
	if mode == 0 {
		mode = 0o644
	}

	if err := fileutil.WriteAtomic(target, data, mode); err != nil {
		return RestoreResult{}, failure.Wrap(failure.IOFailure, err, "write %s", target)
	}
	s.logger.Info("backup restored",
		zap.String("id", rec.ID),
		zap.String("path", target),
		zap.String("safety_backup", result.SafetyBackup),
	)
	return result, nil
}

// Diff returns a unified diff from the stored copy to the file's current
// content. It is empty when the file is unchanged. A missing file diffs
// against empty content.
func (s *Store) Diff(ctx context.Context, id string) (string, error) {
	rec, data, err := s.ReadBackup(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := s.check(rec.Path); err != nil {
		return "", err
	}
	current, err := os.ReadFile(rec.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", failure.Wrap(failure.IOFailure, err, "read %s", rec.Path)
	}
	name := filepath.Base(rec.Path)
	return diff.Unified("backup/"+name, "current/"+name, string(data), string(current)), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanBackup(row rowScanner) (BackupRecord, error) {
	var (
		rec     BackupRecord
		mode    uint32
		created int64
	)
	if err := row.Scan(&rec.ID, &rec.Path, &rec.Operation, &rec.Hash, &rec.Size, &mode, &rec.Note, &created); err != nil {
		return BackupRecord{}, err
	}
	rec.Mode = os.FileMode(mode)
	rec.Timestamp = fromUnixNano(created)
	rec.StoredPath = s.objects.path(rec.Hash)
	return rec, nil
}
