package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/fileutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const snapshotWorkers = 8

// CheckpointEntry is one file captured by a checkpoint.
type CheckpointEntry struct {
	Path       string      `json:"path"`
	StoredPath string      `json:"stored_path"`
	Hash       string      `json:"hash"`
	Size       int64       `json:"size"`
	Mode       os.FileMode `json:"mode"`
	Corrupt    bool        `json:"corrupt,omitempty"`
}

// Checkpoint is a named snapshot of every source file of one target.
type Checkpoint struct {
	ID          string            `json:"id"`
	Target      string            `json:"target"`
	Description string            `json:"description,omitempty"`
	Root        string            `json:"root,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Files       []CheckpointEntry `json:"files"`
}

// CheckpointRestore describes a completed checkpoint restore.
type CheckpointRestore struct {
	Checkpoint    string   `json:"checkpoint"`
	Restored      []string `json:"restored"`
	Unchanged     []string `json:"unchanged,omitempty"`
	SafetyBackups []string `json:"safety_backups,omitempty"`
}

// CreateCheckpoint snapshots files under one id. Any unreadable file fails
// the whole checkpoint and no record is kept.
func (s *Store) CreateCheckpoint(ctx context.Context, target, description, root string, files []string) (Checkpoint, error) {
	if len(files) == 0 {
		return Checkpoint{}, failure.New(failure.InvalidArgument, "checkpoint for %q has no files", target)
	}

	s.gc.RLock()
	defer s.gc.RUnlock()

	entries := make([]CheckpointEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotWorkers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			abs, err := s.check(file)
			if err != nil {
				return err
			}
			info, err := os.Stat(abs)
			if err != nil {
				return failure.Wrap(failure.IOFailure, err, "stat %s", abs)
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return failure.Wrap(failure.IOFailure, err, "read %s", abs)
			}
			hash, err := s.objects.put(data)
			if err != nil {
				return failure.Wrap(failure.IOFailure, err, "store copy of %s", abs)
			}
			entries[i] = CheckpointEntry{
				Path:       abs,
				StoredPath: s.objects.path(hash),
				Hash:       hash,
				Size:       int64(len(data)),
				Mode:       info.Mode().Perm(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Checkpoint{}, err
	}

	cp := Checkpoint{
		ID:          newID(),
		Target:      target,
		Description: description,
		Root:        root,
		Timestamp:   s.now(),
		Files:       entries,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoints (id, target, description, root, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			cp.ID, cp.Target, cp.Description, cp.Root, unixNano(cp.Timestamp)); err != nil {
			return err
		}
		for i, entry := range cp.Files {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO checkpoint_files (checkpoint_id, seq, path, hash, size, mode)
				VALUES (?, ?, ?, ?, ?, ?)`,
				cp.ID, i, entry.Path, entry.Hash, entry.Size, uint32(entry.Mode)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Checkpoint{}, indexErr(err, "record checkpoint for %s", target)
	}

	s.logger.Info("checkpoint created",
		zap.String("id", cp.ID),
		zap.String("target", cp.Target),
		zap.Int("files", len(cp.Files)),
	)
	return cp, nil
}

// ListCheckpoints returns checkpoints newest first, optionally for one target.
func (s *Store) ListCheckpoints(ctx context.Context, target string) ([]Checkpoint, error) {
	query := `SELECT id, target, description, root, created_at FROM checkpoints`
	var args []any
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, indexErr(err, "list checkpoints")
	}
	var checkpoints []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			rows.Close()
			return nil, indexErr(err, "read checkpoint row")
		}
		checkpoints = append(checkpoints, cp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, indexErr(err, "list checkpoints")
	}

	for i := range checkpoints {
		files, err := s.checkpointFiles(ctx, checkpoints[i].ID)
		if err != nil {
			return nil, err
		}
		checkpoints[i].Files = files
	}
	return checkpoints, nil
}

// GetCheckpoint returns one checkpoint with its files.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target, description, root, created_at
		FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, notFound("checkpoint", id)
	}
	if err != nil {
		return Checkpoint{}, indexErr(err, "read checkpoint %s", id)
	}
	cp.Files, err = s.checkpointFiles(ctx, id)
	if err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// staged is one file prepared for the commit phase of a checkpoint restore.
type staged struct {
	entry   CheckpointEntry
	data    []byte
	temp    string
	existed bool
	before  []byte
	mode    os.FileMode
}

// RestoreCheckpoint returns every file of the checkpoint to its recorded
// content, or changes none of them. All stored copies and destination paths
// are verified and every new file is staged on disk before the first target
// is replaced. A failure while renaming rolls back the files already replaced.
//
// An existing file keeps its current permission bits; a missing file is
// recreated with the bits recorded at checkpoint time. Ownership is never
// changed.
func (s *Store) RestoreCheckpoint(ctx context.Context, id string) (CheckpointRestore, error) {
	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return CheckpointRestore{}, err
	}
	refuse := func(err error, format string, args ...any) (CheckpointRestore, error) {
		return CheckpointRestore{}, failure.Wrap(failure.PartialRestoreRefused, err, format, args...)
	}

	// Verify every stored copy and destination before touching anything.
	plan := make([]*staged, 0, len(cp.Files))
	for _, entry := range cp.Files {
		if _, err := s.check(entry.Path); err != nil {
			return refuse(err, "checkpoint %s: %s is no longer permitted", id, entry.Path)
		}
		data, err := s.objects.get(entry.Hash)
		if err != nil {
			return refuse(err, "checkpoint %s: stored copy of %s", id, entry.Path)
		}
		item := &staged{entry: entry, data: data, mode: entry.Mode}
		current, err := os.ReadFile(entry.Path)
		switch {
		case err == nil:
			item.existed = true
			item.before = current
			item.mode = fileutil.FileMode(entry.Path, entry.Mode)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return refuse(err, "checkpoint %s: read %s", id, entry.Path)
		}
		if item.mode == 0 {
			item.mode = 0o644
		}
		plan = append(plan, item)
	}

	result := CheckpointRestore{Checkpoint: id}
	var pending []*staged
	for _, item := range plan {
		if item.existed && bytes.Equal(item.before, item.data) {
			result.Unchanged = append(result.Unchanged, item.entry.Path)
			continue
		}
		pending = append(pending, item)
	}

	discard := func() {
		for _, item := range pending {
			if item.temp != "" {
				os.Remove(item.temp)
			}
		}
	}

	for _, item := range pending {
		if err := os.MkdirAll(filepath.Dir(item.entry.Path), 0o755); err != nil {
			discard()
			return refuse(err, "checkpoint %s: create directory for %s", id, item.entry.Path)
		}
		temp, err := fileutil.CreateTemp(item.entry.Path, item.data, item.mode)
		if err != nil {
			discard()
			return refuse(err, "checkpoint %s: stage %s", id, item.entry.Path)
		}
		item.temp = temp
	}

	for _, item := range pending {
		if !item.existed {
			continue
		}
		safety, err := s.BackupBytes(ctx, item.entry.Path, item.before, item.mode, OpPreRestore, "before restoring checkpoint "+id)
		if err != nil {
			discard()
			return refuse(err, "checkpoint %s: safety backup of %s", id, item.entry.Path)
		}
		result.SafetyBackups = append(result.SafetyBackups, safety.ID)
	}

	for i, item := range pending {
		if err := os.Rename(item.temp, item.entry.Path); err != nil {
			s.rollback(pending[:i])
			discard()
			return CheckpointRestore{}, failure.Wrap(failure.IOFailure, err, "checkpoint %s: replace %s (restored files rolled back)", id, item.entry.Path)
		}
		item.temp = ""
		result.Restored = append(result.Restored, item.entry.Path)
	}

	s.logger.Info("checkpoint restored",
		zap.String("id", id),
		zap.Int("restored", len(result.Restored)),
		zap.Int("unchanged", len(result.Unchanged)),
	)
	return result, nil
}

func (s *Store) rollback(done []*staged) {
	for _, item := range done {
		var err error
		if item.existed {
			err = fileutil.WriteAtomic(item.entry.Path, item.before, item.mode)
		} else {
			err = os.Remove(item.entry.Path)
		}
		if err != nil {
			s.logger.Error("checkpoint rollback failed", zap.String("path", item.entry.Path), zap.Error(err))
		}
	}
}

func (s *Store) checkpointFiles(ctx context.Context, id string) ([]CheckpointEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, hash, size, mode FROM checkpoint_files
		WHERE checkpoint_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, indexErr(err, "read files of checkpoint %s", id)
	}
	defer rows.Close()

	var files []CheckpointEntry
	for rows.Next() {
		var (
			entry CheckpointEntry
			mode  uint32
		)
		if err := rows.Scan(&entry.Path, &entry.Hash, &entry.Size, &mode); err != nil {
			return nil, indexErr(err, "read files of checkpoint %s", id)
		}
		entry.Mode = os.FileMode(mode)
		entry.StoredPath = s.objects.path(entry.Hash)
		entry.Corrupt = !s.objects.exists(entry.Hash)
		files = append(files, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr(err, "read files of checkpoint %s", id)
	}
	return files, nil
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var (
		cp      Checkpoint
		created int64
	)
	if err := row.Scan(&cp.ID, &cp.Target, &cp.Description, &cp.Root, &created); err != nil {
		return Checkpoint{}, err
	}
	cp.Timestamp = fromUnixNano(created)
	return cp, nil
}
