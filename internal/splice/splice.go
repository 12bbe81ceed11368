// Package splice implements the pure buffer edits behind every mutation.
// Each operation returns a new buffer and never touches the input slice.
package splice

import (
	"bytes"
	"strings"

	"github.com/morozRed/unitsmith/internal/diff"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/fileutil"
	"github.com/morozRed/unitsmith/internal/parser"
)

// MissingRegistration is reported when an appended unit lacks the
// profile's registration convention.
const MissingRegistration = "no registration marker found, appended without MCP registration"

// EditResult is the outcome of one edit. Span is the edited region in
// Buffer.
type EditResult struct {
	Buffer   []byte      `json:"-"`
	Diff     string      `json:"diff"`
	Warnings []string    `json:"warnings,omitempty"`
	Span     parser.Span `json:"span"`
}

// Append inserts unit text after the last top-level definition, keeping a
// trailing entry-point block last.
func Append(src []byte, p *parser.Profile, text, path string) EditResult {
	at := insertionPoint(src, p)
	before, after := src[:at], src[at:]
	nl := fileutil.LineEnding(src)
	unit := normalize(text, nl)

	var buf bytes.Buffer
	buf.Grow(len(src) + len(unit) + 2*p.Spacing() + 1)
	buf.Write(before)
	if len(before) > 0 {
		blank := 0
		if before[len(before)-1] != '\n' {
			buf.WriteString(nl)
		} else {
			blank = trailingBlankLines(before)
		}
		for i := blank; i < p.Spacing(); i++ {
			buf.WriteString(nl)
		}
	}
	start := buf.Len()
	buf.WriteString(unit)
	end := buf.Len()
	if len(after) > 0 {
		for i := 0; i < p.Spacing(); i++ {
			buf.WriteString(nl)
		}
		buf.Write(after)
	}

	res := EditResult{Buffer: buf.Bytes(), Span: parser.Span{Start: start, End: end}}
	if p.Registration != nil {
		if _, ok := p.RegisteredName(unit); !ok {
			res.Warnings = append(res.Warnings, MissingRegistration)
		}
	}
	return res.Rediff(path, src)
}

// Replace substitutes the unit's full span with text.
func Replace(src []byte, unit parser.SourceUnit, text, path string) (EditResult, error) {
	if err := checkSpan(src, unit.Span); err != nil {
		return EditResult{}, err
	}
	nl := fileutil.LineEnding(src)
	replacement := normalize(text, nl)
	if !endsLine(src, unit.Span.End) {
		replacement = strings.TrimSuffix(replacement, nl)
	}

	out := make([]byte, 0, len(src)-unit.Span.Len()+len(replacement))
	out = append(out, src[:unit.Span.Start]...)
	out = append(out, replacement...)
	out = append(out, src[unit.Span.End:]...)

	res := EditResult{Buffer: out, Span: parser.Span{Start: unit.Span.Start, End: unit.Span.Start + len(replacement)}}
	return res.Rediff(path, src), nil
}

// Remove deletes the unit's full span plus one trailing blank line.
func Remove(src []byte, unit parser.SourceUnit, path string) (EditResult, error) {
	if err := checkSpan(src, unit.Span); err != nil {
		return EditResult{}, err
	}
	end := RemovalEnd(src, unit.Span)

	out := make([]byte, 0, len(src)-(end-unit.Span.Start))
	out = append(out, src[:unit.Span.Start]...)
	out = append(out, src[end:]...)

	res := EditResult{Buffer: out, Span: parser.Span{Start: unit.Span.Start, End: unit.Span.Start}}
	return res.Rediff(path, src), nil
}

// RemovalEnd is where Remove stops: the span end, extended over exactly
// one following blank line when there is one.
func RemovalEnd(src []byte, span parser.Span) int {
	end := span.End
	if !endsLine(src, end) || end >= len(src) {
		return end
	}
	nl := bytes.IndexByte(src[end:], '\n')
	if nl < 0 {
		return end
	}
	if len(bytes.TrimSpace(src[end:end+nl])) == 0 {
		return end + nl + 1
	}
	return end
}

// Rediff recomputes the diff of the result against original.
func (r EditResult) Rediff(path string, original []byte) EditResult {
	r.Diff = diff.Unified("a/"+path, "b/"+path, string(original), string(r.Buffer))
	return r
}

// insertionPoint is the start of the entry-point block (with the comment
// lines directly above it), or the end of the buffer.
func insertionPoint(src []byte, p *parser.Profile) int {
	if len(p.EntryPoints) == 0 {
		return len(src)
	}
	lines := bytes.SplitAfter(src, []byte("\n"))
	offset := 0
	starts := make([]int, len(lines))
	for i, line := range lines {
		starts[i] = offset
		offset += len(line)
	}
	for i, line := range lines {
		if len(line) == 0 || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		if !p.IsEntryPoint(strings.TrimRight(string(line), "\r\n")) {
			continue
		}
		at := i
		for at > 0 {
			prev := strings.TrimSpace(string(lines[at-1]))
			if prev == "" || !p.IsCommentLine(prev) {
				break
			}
			at--
		}
		return starts[at]
	}
	return len(src)
}

// trailingBlankLines counts blank lines at the end of b, which ends in a
// newline.
func trailingBlankLines(b []byte) int {
	lines := bytes.Split(b, []byte("\n"))
	n := 0
	for i := len(lines) - 2; i >= 0; i-- {
		if len(bytes.TrimSpace(lines[i])) != 0 {
			break
		}
		n++
	}
	return n
}

// normalize drops leading and trailing blank lines and joins the rest
// with nl, ending the text with exactly one nl.
func normalize(text, nl string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, nl) + nl
}

func endsLine(src []byte, end int) bool {
	return end == len(src) || (end > 0 && src[end-1] == '\n')
}

func checkSpan(src []byte, span parser.Span) error {
	if span.Start < 0 || span.End > len(src) || span.Start > span.End {
		return failure.New(failure.InvalidArgument, "span %d-%d outside buffer of %d bytes", span.Start, span.End, len(src))
	}
	return nil
}
