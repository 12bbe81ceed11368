package ledger

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/morozRed/unitsmith/internal/failure"
	"go.uber.org/zap"
)

// staleTempAge is how old an orphaned temporary object must be before a
// sweep removes it; younger files may belong to a write in progress.
const staleTempAge = time.Hour

// CleanupReport summarizes a retention sweep.
type CleanupReport struct {
	BackupsRemoved     int   `json:"backups_removed"`
	CheckpointsRemoved int   `json:"checkpoints_removed"`
	ObjectsRemoved     int   `json:"objects_removed"`
	TempFilesRemoved   int   `json:"temp_files_removed"`
	BytesFreed         int64 `json:"bytes_freed"`
}

// CorruptEntry is an index entry whose stored copy is missing or damaged.
type CorruptEntry struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Path   string `json:"path"`
	Hash   string `json:"hash"`
	Reason string `json:"reason"`
}

// VerifyReport lists every corrupt index entry.
type VerifyReport struct {
	Backups     int            `json:"backups"`
	Checkpoints int            `json:"checkpoints"`
	Objects     int            `json:"objects"`
	Corrupt     []CorruptEntry `json:"corrupt,omitempty"`
}

// Cleanup deletes backups older than olderThanDays, always keeping the
// newest keepRecent backups of each file, then checkpoints past the same
// age and every stored object no remaining record references. Target files
// are never touched.
func (s *Store) Cleanup(ctx context.Context, olderThanDays, keepRecent int) (CleanupReport, error) {
	if olderThanDays < 0 || keepRecent < 0 {
		return CleanupReport{}, failure.New(failure.InvalidArgument, "olderThanDays and keepRecent must not be negative")
	}
	cutoff := unixNano(s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour))

	s.gc.Lock()
	defer s.gc.Unlock()

	var report CleanupReport
	expired, err := s.expiredBackups(ctx, cutoff, keepRecent)
	if err != nil {
		return report, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		report.BackupsRemoved = 0
		report.CheckpointsRemoved = 0
		for _, id := range expired {
			if _, err := tx.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id); err != nil {
				return err
			}
			report.BackupsRemoved++
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM checkpoint_files WHERE checkpoint_id IN
			(SELECT id FROM checkpoints WHERE created_at < ?)`, cutoff); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		report.CheckpointsRemoved = int(n)
		return nil
	})
	if err != nil {
		return CleanupReport{}, indexErr(err, "delete expired records")
	}

	referenced, err := s.referencedHashes(ctx)
	if err != nil {
		return report, err
	}
	hashes, temps, err := s.objects.walk()
	if err != nil {
		return report, failure.Wrap(failure.IOFailure, err, "scan object pool")
	}
	for _, hash := range hashes {
		if referenced[hash] {
			continue
		}
		size, err := s.objects.remove(hash)
		if err != nil {
			return report, failure.Wrap(failure.IOFailure, err, "remove object %s", hash)
		}
		report.ObjectsRemoved++
		report.BytesFreed += size
	}
	for _, temp := range temps {
		info, err := os.Stat(temp)
		if err != nil || time.Since(info.ModTime()) < staleTempAge {
			continue
		}
		if os.Remove(temp) == nil {
			report.TempFilesRemoved++
			report.BytesFreed += info.Size()
		}
	}

	s.logger.Info("ledger cleanup",
		zap.Int("backups_removed", report.BackupsRemoved),
		zap.Int("checkpoints_removed", report.CheckpointsRemoved),
		zap.Int("objects_removed", report.ObjectsRemoved),
		zap.Int64("bytes_freed", report.BytesFreed),
	)
	return report, nil
}

func (s *Store) expiredBackups(ctx context.Context, cutoff int64, keepRecent int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, created_at FROM backups
		ORDER BY path, created_at DESC, rowid DESC`)
	if err != nil {
		return nil, indexErr(err, "scan backups")
	}
	defer rows.Close()

	var (
		expired []string
		seen    = map[string]int{}
	)
	for rows.Next() {
		var (
			id, path string
			created  int64
		)
		if err := rows.Scan(&id, &path, &created); err != nil {
			return nil, indexErr(err, "scan backups")
		}
		seen[path]++
		if seen[path] > keepRecent && created < cutoff {
			expired = append(expired, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr(err, "scan backups")
	}
	return expired, nil
}

func (s *Store) referencedHashes(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash FROM backups
		UNION SELECT hash FROM checkpoint_files`)
	if err != nil {
		return nil, indexErr(err, "collect referenced objects")
	}
	defer rows.Close()

	referenced := map[string]bool{}
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, indexErr(err, "collect referenced objects")
		}
		referenced[hash] = true
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr(err, "collect referenced objects")
	}
	return referenced, nil
}

// Verify checks every index entry against the object pool. Entries whose
// object is missing or no longer hashes to the recorded value are reported,
// never removed.
func (s *Store) Verify(ctx context.Context) (VerifyReport, error) {
	backups, err := s.ListBackups(ctx, "", 0)
	if err != nil {
		return VerifyReport{}, err
	}
	checkpoints, err := s.ListCheckpoints(ctx, "")
	if err != nil {
		return VerifyReport{}, err
	}

	report := VerifyReport{Backups: len(backups), Checkpoints: len(checkpoints)}
	verdicts := map[string]string{}
	verdict := func(hash string) string {
		if reason, ok := verdicts[hash]; ok {
			return reason
		}
		reason := ""
		if _, err := s.objects.get(hash); err != nil {
			reason = "missing"
			if !errors.Is(err, errObjectMissing) {
				reason = "hash mismatch"
			}
		}
		verdicts[hash] = reason
		return reason
	}

	for _, rec := range backups {
		if reason := verdict(rec.Hash); reason != "" {
			report.Corrupt = append(report.Corrupt, CorruptEntry{Kind: "backup", ID: rec.ID, Path: rec.Path, Hash: rec.Hash, Reason: reason})
		}
	}
	for _, cp := range checkpoints {
		for _, entry := range cp.Files {
			if reason := verdict(entry.Hash); reason != "" {
				report.Corrupt = append(report.Corrupt, CorruptEntry{Kind: "checkpoint", ID: cp.ID, Path: entry.Path, Hash: entry.Hash, Reason: reason})
			}
		}
	}
	report.Objects = len(verdicts)
	sort.SliceStable(report.Corrupt, func(i, j int) bool {
		return report.Corrupt[i].Kind < report.Corrupt[j].Kind
	})
	return report, nil
}
