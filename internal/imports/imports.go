// Package imports moves import statements carried by injected unit text
// into the target file's import area.
package imports

import (
	"bytes"
	"strings"

	"github.com/morozRed/unitsmith/internal/fileutil"
	"github.com/morozRed/unitsmith/internal/parser"
)

// Split separates the import lines heading unit text from the rest. Blank
// lines between leading imports are dropped with them.
func Split(text string, p *parser.Profile) (imports []string, body string) {
	if p.Imports == nil {
		return nil, text
	}
	lines := strings.Split(text, "\n")
	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if !p.Imports.MatchString(trimmed) {
			break
		}
		imports = append(imports, trimmed)
	}
	return imports, strings.Join(lines[i:], "\n")
}

// Missing returns the imports that do not already appear as a line of src.
func Missing(src []byte, imports []string) []string {
	present := make(map[string]bool)
	for _, line := range bytes.Split(src, []byte("\n")) {
		present[string(bytes.TrimSpace(line))] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, imp := range imports {
		if present[imp] || seen[imp] {
			continue
		}
		seen[imp] = true
		out = append(out, imp)
	}
	return out
}

// Insert places imports after the last top-level import of src, or after
// the profile's anchor line (a package clause), or after the leading
// comment block. The input is not modified.
func Insert(src []byte, imports []string, p *parser.Profile) []byte {
	if len(imports) == 0 {
		return append([]byte(nil), src...)
	}
	lines := bytes.SplitAfter(src, []byte("\n"))
	at, separate := insertionLine(lines, p)
	nl := fileutil.LineEnding(src)

	var buf bytes.Buffer
	buf.Grow(len(src) + 64*len(imports))
	for i := 0; i < at; i++ {
		buf.Write(lines[i])
	}
	if at > 0 && !bytes.HasSuffix(lines[at-1], []byte("\n")) {
		buf.WriteString(nl)
	}
	if separate && at > 0 {
		buf.WriteString(nl)
	}
	for _, imp := range imports {
		buf.WriteString(imp)
		buf.WriteString(nl)
	}
	if separate && at < len(lines) && len(bytes.TrimSpace(lines[at])) != 0 {
		buf.WriteString(nl)
	}
	for i := at; i < len(lines); i++ {
		buf.Write(lines[i])
	}
	return buf.Bytes()
}

// insertionLine returns the index of the line the imports go before and
// whether they need blank-line separation from their neighbours.
func insertionLine(lines [][]byte, p *parser.Profile) (int, bool) {
	last := -1
	for i, line := range lines {
		if len(line) == 0 || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		if p.Imports != nil && p.Imports.Match(bytes.TrimSpace(line)) {
			last = i
		}
	}
	if last >= 0 {
		return last + 1, false
	}
	if p.ImportAnchor != nil {
		for i, line := range lines {
			if p.ImportAnchor.Match(bytes.TrimSpace(line)) {
				return i + 1, true
			}
		}
	}
	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(string(lines[i]))
		if trimmed == "" || !(strings.HasPrefix(trimmed, "#!") || p.IsCommentLine(trimmed)) {
			break
		}
		i++
	}
	return i, true
}
