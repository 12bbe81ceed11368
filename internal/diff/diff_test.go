package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdenticalContentHasNoDiff(t *testing.T) {
	d := Compute("a", "b", "x\ny\n", "x\ny\n")
	assert.True(t, d.Empty())
	assert.Equal(t, "", d.String())
}

func TestSingleLineChange(t *testing.T) {
	oldText := "one\ntwo\nthree\n"
	newText := "one\nTWO\nthree\n"

	got := Unified("old.py", "new.py", oldText, newText)
	want := "--- old.py\n+++ new.py\n@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three\n"
	assert.Equal(t, want, got)
}

func TestInsertionIntoEmptyFile(t *testing.T) {
	got := Unified("a", "b", "", "hello\n")
	assert.Equal(t, "--- a\n+++ b\n@@ -0,0 +1 @@\n+hello\n", got)
}

func TestMissingTrailingNewlineIsMarked(t *testing.T) {
	got := Unified("a", "b", "x\n", "x\ny")
	assert.Contains(t, got, "+y\n\\ No newline at end of file\n")
}

func TestDistantChangesSplitIntoHunks(t *testing.T) {
	oldText := ""
	newText := ""
	for i := 0; i < 20; i++ {
		line := string(rune('a'+i)) + "\n"
		oldText += line
		switch i {
		case 1, 18:
			newText += "changed\n"
		default:
			newText += line
		}
	}

	d := Compute("a", "b", oldText, newText)
	require.Len(t, d.Hunks, 2)
	assert.Equal(t, 1, d.Hunks[0].OldStart)
	assert.Equal(t, 16, d.Hunks[1].OldStart)

	added, removed := d.Stats()
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, removed)
}

func TestNearbyChangesShareHunk(t *testing.T) {
	oldText := "a\nb\nc\nd\ne\nf\ng\n"
	newText := "a\nB\nc\nd\ne\nF\ng\n"
	d := Compute("a", "b", oldText, newText)
	require.Len(t, d.Hunks, 1)
	assert.Equal(t, 7, d.Hunks[0].OldCount)
}
