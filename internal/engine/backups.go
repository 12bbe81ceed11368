package engine

import (
	"context"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/ledger"
	"github.com/morozRed/unitsmith/internal/project"
	"go.uber.org/zap"
)

// ListBackups returns the backups of one file, newest first. An empty ref
// lists every file.
func (e *Engine) ListBackups(ctx context.Context, ref FileRef, limit int) ([]ledger.BackupRecord, error) {
	path := ""
	if ref.File != "" || ref.Target != "" {
		r, err := e.resolveAny(ref)
		if err != nil {
			return nil, err
		}
		path = r
	}
	return e.ledger.ListBackups(ctx, path, limit)
}

// resolveAny resolves ref to a sandboxed path without requiring a language
// profile, so backups of any file can be addressed.
func (e *Engine) resolveAny(ref FileRef) (string, error) {
	file := ref.File
	if file == "" && ref.Target != "" {
		t, err := e.target(ref.Target)
		if err != nil {
			return "", err
		}
		file = t.SourceFile
	}
	return e.policy.Check(file)
}

// RestoreBackup writes a backup to dest, or to its original path. The file
// currently at the destination is backed up first.
func (e *Engine) RestoreBackup(ctx context.Context, id, dest string) (ledger.RestoreResult, error) {
	rec, err := e.ledger.GetBackup(ctx, id)
	if err != nil {
		return ledger.RestoreResult{}, err
	}
	if dest == "" {
		dest = rec.Path
	}
	path, err := e.policy.Check(dest)
	if err != nil {
		return ledger.RestoreResult{}, err
	}
	unlock := e.locks.lock(path)
	defer unlock()
	return e.ledger.Restore(ctx, id, path)
}

// DiffBackup diffs a stored copy against the file's current content.
func (e *Engine) DiffBackup(ctx context.Context, id string) (string, error) {
	return e.ledger.Diff(ctx, id)
}

// CleanupBackups runs the retention sweep. Target files are never touched.
func (e *Engine) CleanupBackups(ctx context.Context, olderThanDays, keepRecent int) (ledger.CleanupReport, error) {
	return e.ledger.Cleanup(ctx, olderThanDays, keepRecent)
}

// VerifyLedger reports index entries whose stored copy is missing or corrupt.
func (e *Engine) VerifyLedger(ctx context.Context) (ledger.VerifyReport, error) {
	return e.ledger.Verify(ctx)
}

// CheckpointRequest snapshots every source file of a project.
type CheckpointRequest struct {
	ProjectRef
	Description string `json:"description,omitempty"`
}

// CreateCheckpoint scans the project and snapshots each source file under
// one checkpoint id. Files are locked for the duration so no mutation lands
// between the scan and the snapshot.
func (e *Engine) CreateCheckpoint(ctx context.Context, req CheckpointRequest) (ledger.Checkpoint, error) {
	root, name, err := e.projectRoot(req.ProjectRef)
	if err != nil {
		return ledger.Checkpoint{}, err
	}
	structure, err := project.Scan(ctx, root, e.registry, project.Options{Exclude: e.exclude})
	if err != nil {
		return ledger.Checkpoint{}, err
	}
	if len(structure.Files) == 0 {
		return ledger.Checkpoint{}, failure.New(failure.NotFound, "no source files under %s", root)
	}
	unlock := e.locks.lockAll(structure.Files)
	defer unlock()

	cp, err := e.ledger.CreateCheckpoint(ctx, name, req.Description, root, structure.Files)
	if err != nil {
		return ledger.Checkpoint{}, err
	}
	e.logger.Info("checkpoint created",
		zap.String("id", cp.ID),
		zap.String("target", name),
		zap.Int("files", len(cp.Files)),
	)
	return cp, nil
}

// ListCheckpoints returns checkpoints newest first, optionally for one target.
func (e *Engine) ListCheckpoints(ctx context.Context, target string) ([]ledger.Checkpoint, error) {
	return e.ledger.ListCheckpoints(ctx, target)
}

// RestoreCheckpoint restores all files of a checkpoint or none of them.
func (e *Engine) RestoreCheckpoint(ctx context.Context, id string) (ledger.CheckpointRestore, error) {
	cp, err := e.ledger.GetCheckpoint(ctx, id)
	if err != nil {
		return ledger.CheckpointRestore{}, err
	}
	paths := make([]string, 0, len(cp.Files))
	for _, f := range cp.Files {
		paths = append(paths, f.Path)
	}
	unlock := e.locks.lockAll(paths)
	defer unlock()

	res, err := e.ledger.RestoreCheckpoint(ctx, id)
	if err != nil {
		e.logger.Warn("checkpoint restore refused", zap.String("id", id), zap.Error(err))
		return res, err
	}
	e.logger.Info("checkpoint restored",
		zap.String("id", id),
		zap.Int("restored", len(res.Restored)),
		zap.Int("unchanged", len(res.Unchanged)),
	)
	return res, nil
}
