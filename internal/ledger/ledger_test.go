package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openStore(t *testing.T, root string) (*Store, *clock) {
	t.Helper()
	policy, err := sandbox.New(root)
	require.NoError(t, err)
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store, err := Open(Options{Dir: filepath.Join(t.TempDir(), "store"), Sandbox: policy, Now: c.Now})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, c
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	path := filepath.Join(root, "server.py")
	original := "def hello():\n    return 'hi'\n"
	writeFile(t, path, original)

	rec, err := store.Backup(ctx, path, "replaceUnit", "before replace")
	require.NoError(t, err)
	assert.Equal(t, "replaceUnit", rec.Operation)
	assert.Equal(t, int64(len(original)), rec.Size)
	assert.FileExists(t, rec.StoredPath)

	writeFile(t, path, "broken(\n")
	result, err := store.Restore(ctx, rec.ID, "")
	require.NoError(t, err)
	assert.Equal(t, original, readFile(t, path))
	require.NotEmpty(t, result.SafetyBackup)

	safety, err := store.GetBackup(ctx, result.SafetyBackup)
	require.NoError(t, err)
	assert.Equal(t, OpPreRestore, safety.Operation)

	_, err = store.Restore(ctx, safety.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "broken(\n", readFile(t, path))
}

func TestRestoreToDestination(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	path := filepath.Join(root, "a.go")
	writeFile(t, path, "package a\n")

	rec, err := store.Backup(ctx, path, "", "")
	require.NoError(t, err)
	assert.Equal(t, "manual", rec.Operation)

	dest := filepath.Join(root, "restored", "a.go")
	result, err := store.Restore(ctx, rec.ID, dest)
	require.NoError(t, err)
	assert.Empty(t, result.SafetyBackup)
	assert.Equal(t, "package a\n", readFile(t, dest))
}

func TestDiffOfUnmodifiedFileIsEmpty(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	path := filepath.Join(root, "tool.js")
	writeFile(t, path, "function a() {}\n")

	rec, err := store.Backup(ctx, path, "injectUnit", "")
	require.NoError(t, err)

	text, err := store.Diff(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, text)

	writeFile(t, path, "function a() {}\nfunction b() {}\n")
	text, err = store.Diff(ctx, rec.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "+function b() {}")
	assert.Equal(t, "function a() {}\nfunction b() {}\n", readFile(t, path))
}

func TestBackupFailures(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()

	_, err := store.Backup(ctx, filepath.Join(root, "missing.py"), "injectUnit", "")
	assert.Equal(t, failure.IOFailure, failure.KindOf(err))

	outside := filepath.Join(t.TempDir(), "x.py")
	writeFile(t, outside, "x = 1\n")
	_, err = store.Backup(ctx, outside, "injectUnit", "")
	assert.Equal(t, failure.OutOfScope, failure.KindOf(err))

	records, err := store.ListBackups(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = store.Restore(ctx, "nope", "")
	assert.Equal(t, failure.NotFound, failure.KindOf(err))
}

func TestListBackupsNewestFirstAndCorruptFlag(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	path := filepath.Join(root, "main.go")

	var ids []string
	for i := 0; i < 3; i++ {
		writeFile(t, path, fmt.Sprintf("package main // %d\n", i))
		rec, err := store.Backup(ctx, path, "injectUnit", "")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	records, err := store.ListBackups(ctx, path, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ids[2], records[0].ID)
	assert.Equal(t, ids[1], records[1].ID)

	require.NoError(t, os.Remove(records[0].StoredPath))
	records, err = store.ListBackups(ctx, path, 0)
	require.NoError(t, err)
	assert.True(t, records[0].Corrupt)
	assert.False(t, records[1].Corrupt)

	_, err = store.Restore(ctx, ids[2], "")
	assert.Equal(t, failure.PartialRestoreRefused, failure.KindOf(err))
	assert.Equal(t, "package main // 2\n", readFile(t, path))
}

func TestCheckpointRestoresEveryFile(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	files := []string{
		filepath.Join(root, "server.py"),
		filepath.Join(root, "lib", "util.py"),
		filepath.Join(root, "lib", "models.py"),
	}
	contents := []string{"import lib\n", "def util():\n    pass\n", "class Model:\n    pass\n"}
	for i, path := range files {
		writeFile(t, path, contents[i])
	}

	cp, err := store.CreateCheckpoint(ctx, "weather", "before refactor", root, files)
	require.NoError(t, err)
	require.Len(t, cp.Files, 3)

	writeFile(t, files[1], "")
	writeFile(t, files[2], "class Model:\n    changed = True\n")

	result, err := store.RestoreCheckpoint(ctx, cp.ID)
	require.NoError(t, err)
	for i, path := range files {
		assert.Equal(t, contents[i], readFile(t, path))
	}
	assert.Len(t, result.Restored, 2)
	assert.Equal(t, []string{files[0]}, result.Unchanged)
	assert.Len(t, result.SafetyBackups, 2)

	listed, err := store.ListCheckpoints(ctx, "weather")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "before refactor", listed[0].Description)
	assert.Len(t, listed[0].Files, 3)
}

func TestCheckpointRestoreIsAllOrNothing(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	files := []string{filepath.Join(root, "a.rs"), filepath.Join(root, "b.rs"), filepath.Join(root, "c.rs")}
	for i, path := range files {
		writeFile(t, path, fmt.Sprintf("fn f%d() {}\n", i))
	}
	cp, err := store.CreateCheckpoint(ctx, "rusty", "", root, files)
	require.NoError(t, err)

	for i, path := range files {
		writeFile(t, path, fmt.Sprintf("fn changed%d() {}\n", i))
	}
	require.NoError(t, os.Remove(cp.Files[2].StoredPath))

	_, err = store.RestoreCheckpoint(ctx, cp.ID)
	require.Error(t, err)
	assert.Equal(t, failure.PartialRestoreRefused, failure.KindOf(err))
	for i, path := range files {
		assert.Equal(t, fmt.Sprintf("fn changed%d() {}\n", i), readFile(t, path))
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCheckpointPermissionPolicy(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	kept := filepath.Join(root, "kept.sh")
	gone := filepath.Join(root, "gone.sh")
	writeFile(t, kept, "echo kept\n")
	writeFile(t, gone, "echo gone\n")
	require.NoError(t, os.Chmod(gone, 0o755))

	cp, err := store.CreateCheckpoint(ctx, "scripts", "", root, []string{kept, gone})
	require.NoError(t, err)

	writeFile(t, kept, "echo edited\n")
	require.NoError(t, os.Chmod(kept, 0o600))
	require.NoError(t, os.Remove(gone))

	_, err = store.RestoreCheckpoint(ctx, cp.ID)
	require.NoError(t, err)

	info, err := os.Stat(kept)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	info, err = os.Stat(gone)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	assert.Equal(t, "echo gone\n", readFile(t, gone))
}

func TestCreateCheckpointFailsWhole(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	present := filepath.Join(root, "a.py")
	writeFile(t, present, "a = 1\n")

	_, err := store.CreateCheckpoint(ctx, "t", "", root, []string{present, filepath.Join(root, "missing.py")})
	assert.Equal(t, failure.IOFailure, failure.KindOf(err))

	checkpoints, err := store.ListCheckpoints(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, checkpoints)

	_, err = store.CreateCheckpoint(ctx, "t", "", root, nil)
	assert.Equal(t, failure.InvalidArgument, failure.KindOf(err))

	_, err = store.RestoreCheckpoint(ctx, "unknown")
	assert.Equal(t, failure.NotFound, failure.KindOf(err))
}

func TestCleanupKeepsRecentAndCollectsObjects(t *testing.T) {
	root := t.TempDir()
	store, c := openStore(t, root)
	ctx := context.Background()
	path := filepath.Join(root, "app.ts")

	var old []BackupRecord
	for i := 0; i < 4; i++ {
		writeFile(t, path, fmt.Sprintf("export const v = %d;\n", i))
		rec, err := store.Backup(ctx, path, "replaceUnit", "")
		require.NoError(t, err)
		old = append(old, rec)
	}
	cp, err := store.CreateCheckpoint(ctx, "app", "", root, []string{path})
	require.NoError(t, err)

	c.advance(40 * 24 * time.Hour)
	writeFile(t, path, "export const v = 99;\n")
	fresh, err := store.Backup(ctx, path, "replaceUnit", "")
	require.NoError(t, err)

	report, err := store.Cleanup(ctx, 30, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, report.BackupsRemoved)
	assert.Equal(t, 1, report.CheckpointsRemoved)
	assert.Equal(t, 3, report.ObjectsRemoved)

	records, err := store.ListBackups(ctx, path, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, fresh.ID, records[0].ID)
	assert.Equal(t, old[3].ID, records[1].ID)
	assert.False(t, records[1].Corrupt)

	_, err = store.GetCheckpoint(ctx, cp.ID)
	assert.Equal(t, failure.NotFound, failure.KindOf(err))
	assert.Equal(t, "export const v = 99;\n", readFile(t, path))

	_, err = store.Cleanup(ctx, -1, 0)
	assert.Equal(t, failure.InvalidArgument, failure.KindOf(err))
}

func TestVerifyReportsCorruptEntries(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()
	a := filepath.Join(root, "a.rb")
	b := filepath.Join(root, "b.rb")
	writeFile(t, a, "def a; end\n")
	writeFile(t, b, "def b; end\n")

	recA, err := store.Backup(ctx, a, "injectUnit", "")
	require.NoError(t, err)
	recB, err := store.Backup(ctx, b, "injectUnit", "")
	require.NoError(t, err)
	_, err = store.CreateCheckpoint(ctx, "rb", "", root, []string{a, b})
	require.NoError(t, err)

	require.NoError(t, os.Remove(recA.StoredPath))
	require.NoError(t, os.WriteFile(recB.StoredPath, store.objects.encoder.EncodeAll([]byte("tampered"), nil), 0o644))

	report, err := store.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Backups)
	assert.Equal(t, 1, report.Checkpoints)
	require.Len(t, report.Corrupt, 4)

	reasons := map[string]string{}
	for _, entry := range report.Corrupt {
		reasons[entry.Kind+":"+filepath.Base(entry.Path)] = entry.Reason
	}
	assert.Equal(t, "missing", reasons["backup:a.rb"])
	assert.Equal(t, "hash mismatch", reasons["backup:b.rb"])
	assert.Equal(t, "missing", reasons["checkpoint:a.rb"])

	records, err := store.ListBackups(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(t.TempDir(), "store")
	path := filepath.Join(root, "x.c")
	writeFile(t, path, "int x;\n")

	store, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	rec, err := store.Backup(context.Background(), path, "removeUnit", "note")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetBackup(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "note", got.Note)
	assert.Equal(t, rec.Hash, got.Hash)
	assert.True(t, strings.HasPrefix(got.StoredPath, filepath.Join(dir, ObjectsDir)))
}

func TestConcurrentBackupsOfDifferentFiles(t *testing.T) {
	root := t.TempDir()
	store, _ := openStore(t, root)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		path := filepath.Join(root, fmt.Sprintf("f%d.py", i))
		writeFile(t, path, fmt.Sprintf("x = %d\n", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Backup(ctx, path, "injectUnit", ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent backup: %v", err)
	}

	records, err := store.ListBackups(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, records, 16)
}
