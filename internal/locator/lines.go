package locator

import "bytes"

// lineRange is one line of a buffer; end excludes the newline.
type lineRange struct {
	start, end int
}

func splitLines(src []byte) []lineRange {
	lines := make([]lineRange, 0, bytes.Count(src, []byte{'\n'})+1)
	start := 0
	for i, c := range src {
		if c == '\n' {
			lines = append(lines, lineRange{start: start, end: i})
			start = i + 1
		}
	}
	if start < len(src) {
		lines = append(lines, lineRange{start: start, end: len(src)})
	}
	return lines
}

// next returns the offset just past the line's newline.
func (l lineRange) next(src []byte) int {
	if l.end < len(src) {
		return l.end + 1
	}
	return l.end
}

func lineNumber(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return bytes.Count(src[:offset], []byte{'\n'}) + 1
}

func lineStart(src []byte, offset int) int {
	for offset > 0 && src[offset-1] != '\n' {
		offset--
	}
	return offset
}

// alignStart moves offset to the start of its line when only whitespace
// precedes it there.
func alignStart(src []byte, offset int) int {
	ls := lineStart(src, offset)
	if isBlank(src[ls:offset]) {
		return ls
	}
	return offset
}

// alignEnd moves offset past the newline when only whitespace follows it.
// Offsets already at a line start are left alone.
func alignEnd(src []byte, offset int) int {
	if offset > 0 && offset <= len(src) && src[offset-1] == '\n' {
		return offset
	}
	i := offset
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\r') {
		i++
	}
	if i == len(src) {
		return i
	}
	if src[i] == '\n' {
		return i + 1
	}
	return offset
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

func indentOf(b []byte) int {
	n := 0
	for _, c := range b {
		if c != ' ' && c != '\t' {
			break
		}
		n++
	}
	return n
}
