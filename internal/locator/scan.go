package locator

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/morozRed/unitsmith/internal/parser"
)

// scanner finds units by matching definition lines at the top level and
// following the profile's block delimiters. It handles languages without
// an in-process grammar and buffers the grammar could not fully parse.
type scanner struct {
	src   []byte
	p     *parser.Profile
	lines []lineRange
	top   []bool
}

func newScanner(src []byte, p *parser.Profile) *scanner {
	s := &scanner{src: src, p: p, lines: splitLines(src)}
	s.top = s.topLevelLines()
	return s
}

func (s *scanner) text(i int) []byte {
	return s.src[s.lines[i].start:s.lines[i].end]
}

// topLevelLines marks the lines that start outside any block, string or comment.
func (s *scanner) topLevelLines() []bool {
	top := make([]bool, len(s.lines))
	lx := newLexer(s.p)
	depth, brackets := 0, 0
	for i := range s.lines {
		raw := s.text(i)
		insideAtStart := lx.inside()
		code := lx.strip(raw)

		switch s.p.Block {
		case parser.BlockIndent:
			top[i] = !insideAtStart && brackets == 0 && indentOf(raw) == 0
		default:
			top[i] = !insideAtStart && depth == 0 && brackets == 0
		}

		if s.p.Block == parser.BlockEnd {
			depth += s.opens(code) - s.closes(code)
		}
		for _, c := range code {
			switch c {
			case '{':
				if s.p.Block == parser.BlockBraces {
					depth++
				} else {
					brackets++
				}
			case '}':
				if s.p.Block == parser.BlockBraces {
					depth--
				} else {
					brackets--
				}
			case '(', '[':
				brackets++
			case ')', ']':
				brackets--
			}
		}
		if depth < 0 {
			depth = 0
		}
		if brackets < 0 {
			brackets = 0
		}
	}
	return top
}

func (s *scanner) opens(code []byte) int {
	if s.p.BlockOpen == nil {
		return 0
	}
	return len(s.p.BlockOpen.FindAllIndex(code, -1))
}

func (s *scanner) closes(code []byte) int {
	if s.p.BlockClose == nil {
		return 0
	}
	return len(s.p.BlockClose.FindAllIndex(code, -1))
}

// list returns the units whose definition line matches one of defs. With
// an exact name every match is reported under that name; otherwise the
// name comes from the `name` group. Split definitions start one line
// higher, on the line holding their type.
func (s *scanner) list(defs []*regexp.Regexp, exact string) []parser.SourceUnit {
	split := s.p.SplitDefinitionRegexps(exact)
	var units []parser.SourceUnit
	skipUntil := -1
	for i := range s.lines {
		if i <= skipUntil || !s.top[i] {
			continue
		}
		head := i
		name, ok := matchDefinition(s.text(i), defs, exact)
		if !ok && len(split) > 0 && i-1 > skipUntil && s.typeLineAbove(i) {
			name, ok = matchDefinition(s.text(i), split, exact)
			head = i - 1
		}
		if !ok {
			continue
		}
		end, ok := s.blockEnd(i)
		if !ok {
			continue
		}
		units = append(units, s.unit(name, head, i, end))
		skipUntil = end
	}
	return units
}

func matchDefinition(line []byte, defs []*regexp.Regexp, exact string) (string, bool) {
	for _, re := range defs {
		m := re.FindSubmatchIndex(line)
		if m == nil {
			continue
		}
		if exact != "" {
			return exact, true
		}
		idx := re.SubexpIndex("name")
		if idx < 0 || m[2*idx] < 0 {
			continue
		}
		return string(line[m[2*idx]:m[2*idx+1]]), true
	}
	return "", false
}

func (s *scanner) typeLineAbove(i int) bool {
	if i == 0 || !s.top[i-1] {
		return false
	}
	above := bytes.TrimRight(s.text(i-1), " \t\r")
	return len(above) > 0 && s.p.TypeLine.Match(above)
}

// blockEnd returns the last line of the unit whose definition starts on
// line i. ok is false for declarations without a body (C prototypes).
func (s *scanner) blockEnd(i int) (int, bool) {
	switch s.p.Block {
	case parser.BlockIndent:
		return s.indentEnd(i), true
	case parser.BlockEnd:
		return s.keywordEnd(i), true
	default:
		return s.braceEnd(i)
	}
}

var continuationSuffixes = []string{"=", ",", "(", "=>", "->", "&&", "||", "+", "-", "\\"}

func (s *scanner) braceEnd(i int) (int, bool) {
	lx := newLexer(s.p)
	depth, brackets := 0, 0
	opened := false
	for j := i; j < len(s.lines); j++ {
		code := lx.strip(s.text(j))
		for _, c := range code {
			switch c {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			case '(', '[':
				brackets++
			case ')', ']':
				brackets--
			}
		}
		if opened {
			if depth <= 0 && brackets <= 0 {
				return j, true
			}
			continue
		}
		if brackets > 0 || depth > 0 {
			continue
		}
		trimmed := strings.TrimSpace(string(code))
		if strings.HasSuffix(trimmed, ";") {
			return j, s.p.SemicolonEnds
		}
		if k := s.nextNonBlank(j + 1); k >= 0 && bytes.HasPrefix(bytes.TrimSpace(s.text(k)), []byte("{")) {
			continue
		}
		if hasAnySuffix(trimmed, continuationSuffixes) || endsWithWord(trimmed, "where") {
			continue
		}
		if k := s.nextNonBlank(j + 1); k >= 0 && continuesSignature(s.text(k)) {
			continue
		}
		// Items that end in `;` never stop at a bare signature line.
		if s.p.SemicolonEnds && j+1 < len(s.lines) && !isBlank(s.text(j+1)) {
			continue
		}
		return j, true
	}
	return len(s.lines) - 1, true
}

// continuesSignature reports whether line carries on a signature from the
// line above: a return type or a where clause.
func continuesSignature(line []byte) bool {
	trimmed := string(bytes.TrimSpace(line))
	return strings.HasPrefix(trimmed, "->") || trimmed == "where" || strings.HasPrefix(trimmed, "where ")
}

func endsWithWord(s, word string) bool {
	if !strings.HasSuffix(s, word) {
		return false
	}
	rest := s[:len(s)-len(word)]
	return rest == "" || strings.HasSuffix(rest, " ") || strings.HasSuffix(rest, "\t") || strings.HasSuffix(rest, ")")
}

func (s *scanner) indentEnd(i int) int {
	lx := newLexer(s.p)
	base := indentOf(s.text(i))
	brackets := countBrackets(lx.strip(s.text(i)))
	end := i
	for j := i + 1; j < len(s.lines); j++ {
		raw := s.text(j)
		inside := lx.inside()
		code := lx.strip(raw)
		switch {
		case inside || brackets > 0:
			end = j
		case isBlank(raw):
		case isBlank(code):
			// comment-only lines belong to the body only if code follows
		case indentOf(raw) <= base:
			return end
		default:
			end = j
		}
		brackets += countBrackets(code)
		if brackets < 0 {
			brackets = 0
		}
	}
	return end
}

func (s *scanner) keywordEnd(i int) int {
	lx := newLexer(s.p)
	depth := 0
	for j := i; j < len(s.lines); j++ {
		code := lx.strip(s.text(j))
		depth += s.opens(code) - s.closes(code)
		if j == i && depth <= 0 {
			return i
		}
		if depth <= 0 {
			return j
		}
	}
	return len(s.lines) - 1
}

func (s *scanner) nextNonBlank(from int) int {
	for k := from; k < len(s.lines); k++ {
		if !isBlank(s.text(k)) {
			return k
		}
	}
	return -1
}

// unit builds the unit whose definition starts on line head (def, unless
// the type sits on its own line) and ends at line end, pulling in the
// contiguous decorator and comment lines above it.
func (s *scanner) unit(name string, head, def, end int) parser.SourceUnit {
	first := head
	decoFirst, decoLast := -1, -1
	docFirst, docLast := -1, -1
walk:
	for j := head - 1; j >= 0; j-- {
		raw := s.text(j)
		if isBlank(raw) {
			break
		}
		trimmed := strings.TrimSpace(string(raw))
		switch {
		case s.p.IsDecoratorLine(trimmed):
			if decoLast < 0 {
				decoLast = j
			}
			decoFirst = j
		case s.p.IsCommentLine(trimmed):
			if docLast < 0 {
				docLast = j
			}
			docFirst = j
		default:
			break walk
		}
		first = j
	}

	span := parser.Span{Start: s.lines[first].start, End: s.lines[end].next(s.src)}
	var kind parser.UnitKind
	if re := s.p.Registration; re != nil && re.Match(s.text(def)) {
		kind = parser.UnitRegistration
	} else {
		kind = kindFromLine(string(s.text(def)))
	}
	u := newUnit(s.src, s.p, name, kind, span)
	if decoFirst >= 0 {
		u.Decorators = parser.Span{Start: s.lines[decoFirst].start, End: s.lines[decoLast].next(s.src)}
	}
	if docFirst >= 0 {
		u.Doc = parser.Span{Start: s.lines[docFirst].start, End: s.lines[docLast].next(s.src)}
	}

	header := string(s.src[span.Start:s.lines[def].end])
	if alias, ok := s.p.RegisteredName(header); ok {
		u.Registered = true
		if alias != "" && alias != name {
			u.Aliases = []string{alias}
		}
	}
	return u
}

var kindKeywords = []struct {
	word string
	kind parser.UnitKind
}{
	{"fn", parser.UnitFunction},
	{"def", parser.UnitFunction},
	{"func", parser.UnitFunction},
	{"function", parser.UnitFunction},
	{"class", parser.UnitClass},
	{"struct", parser.UnitStruct},
	{"union", parser.UnitStruct},
	{"enum", parser.UnitConstant},
	{"trait", parser.UnitInterface},
	{"interface", parser.UnitInterface},
	{"type", parser.UnitInterface},
	{"mod", parser.UnitModule},
	{"module", parser.UnitModule},
	{"const", parser.UnitConstant},
	{"let", parser.UnitConstant},
	{"var", parser.UnitConstant},
}

func kindFromLine(line string) parser.UnitKind {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	for _, field := range fields {
		for _, kw := range kindKeywords {
			if field == kw.word {
				return kw.kind
			}
		}
	}
	return parser.UnitFunction
}

func countBrackets(code []byte) int {
	n := 0
	for _, c := range code {
		switch c {
		case '(', '[', '{':
			n++
		case ')', ']', '}':
			n--
		}
	}
	return n
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
