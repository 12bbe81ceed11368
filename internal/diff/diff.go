// Package diff computes line-oriented unified diffs using sergi/go-diff.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in the diff. Content excludes the newline;
// NoNewline marks a final line that had none.
type Line struct {
	Type      LineType
	Content   string
	NoNewline bool
}

// Hunk represents a group of changes
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff represents changes to a single file
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Engine computes diffs. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine creates a diff engine keeping contextLines around each change.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	return &Engine{dmp: dmp, context: contextLines}
}

var defaultEngine = NewEngine(DefaultContext)

// Compute is a convenience function using the default engine
func Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	return defaultEngine.Compute(oldPath, newPath, oldContent, newContent)
}

// Unified returns the unified diff text, or "" when the contents match.
func Unified(oldPath, newPath, oldContent, newContent string) string {
	return Compute(oldPath, newPath, oldContent, newContent).String()
}

type op struct {
	typ       LineType
	content   string
	noNewline bool
	oldBefore int
	newBefore int
}

// Compute creates a FileDiff from old and new content
func (e *Engine) Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	fd := &FileDiff{OldPath: oldPath, NewPath: newPath}
	if oldContent == newContent {
		return fd
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	ops := toOps(diffs)
	fd.Hunks = e.group(ops)
	return fd
}

func toOps(diffs []diffmatchpatch.Diff) []op {
	var ops []op
	oldN, newN := 0, 0
	for _, d := range diffs {
		for _, raw := range strings.SplitAfter(d.Text, "\n") {
			if raw == "" {
				continue
			}
			o := op{
				content:   strings.TrimSuffix(raw, "\n"),
				noNewline: !strings.HasSuffix(raw, "\n"),
				oldBefore: oldN,
				newBefore: newN,
			}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				o.typ = LineContext
				oldN++
				newN++
			case diffmatchpatch.DiffDelete:
				o.typ = LineRemoved
				oldN++
			case diffmatchpatch.DiffInsert:
				o.typ = LineAdded
				newN++
			}
			ops = append(ops, o)
		}
	}
	return ops
}

// group merges changes whose context windows touch into one hunk.
func (e *Engine) group(ops []op) []Hunk {
	var hunks []Hunk
	for i := 0; i < len(ops); {
		if ops[i].typ == LineContext {
			i++
			continue
		}
		start := i - e.context
		if start < 0 {
			start = 0
		}
		end := i
		for j := i; j < len(ops); j++ {
			if ops[j].typ != LineContext {
				end = j
				continue
			}
			if j-end > 2*e.context {
				break
			}
		}
		stop := end + e.context + 1
		if stop > len(ops) {
			stop = len(ops)
		}
		hunks = append(hunks, makeHunk(ops[start:stop]))
		i = stop
	}
	return hunks
}

func makeHunk(ops []op) Hunk {
	h := Hunk{Lines: make([]Line, 0, len(ops))}
	for _, o := range ops {
		h.Lines = append(h.Lines, Line{Type: o.typ, Content: o.content, NoNewline: o.noNewline})
		if o.typ != LineAdded {
			h.OldCount++
		}
		if o.typ != LineRemoved {
			h.NewCount++
		}
	}
	h.OldStart = ops[0].oldBefore
	if h.OldCount > 0 {
		h.OldStart++
	}
	h.NewStart = ops[0].newBefore
	if h.NewCount > 0 {
		h.NewStart++
	}
	return h
}

// Empty reports whether the diff has no changes.
func (d *FileDiff) Empty() bool {
	return d == nil || len(d.Hunks) == 0
}

// Stats counts added and removed lines.
func (d *FileDiff) Stats() (added, removed int) {
	if d == nil {
		return 0, 0
	}
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// String renders the diff in unified format.
func (d *FileDiff) String() string {
	if d.Empty() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", d.OldPath, d.NewPath)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", hunkRange(h.OldStart, h.OldCount), hunkRange(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
			if l.NoNewline {
				sb.WriteString("\\ No newline at end of file\n")
			}
		}
	}
	return sb.String()
}

func hunkRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}
