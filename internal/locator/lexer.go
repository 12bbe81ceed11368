package locator

import "github.com/morozRed/unitsmith/internal/parser"

// lexer blanks out string contents and comments line by line so the
// scanner only counts delimiters that belong to code. State carries
// across lines for block comments and multi-line strings.
type lexer struct {
	slash       bool // `//` and `/* */` comments
	hash        bool // `#` comments
	triple      bool // `"""` and `'''` strings
	singleQuote bool // '...' is a string rather than a char literal or lifetime

	inBlock  bool
	inTriple byte
	inQuote  byte
}

func newLexer(p *parser.Profile) *lexer {
	lx := &lexer{}
	for _, prefix := range p.CommentPrefixes {
		switch prefix {
		case "//", "/*":
			lx.slash = true
		case "#":
			lx.hash = true
		}
	}
	lx.triple = p.Block == parser.BlockIndent
	lx.singleQuote = p.SingleQuoteStrings
	return lx
}

// inside reports whether the lexer is in the middle of a string or comment.
func (lx *lexer) inside() bool {
	return lx.inBlock || lx.inTriple != 0 || lx.inQuote != 0
}

func (lx *lexer) strip(line []byte) []byte {
	out := make([]byte, 0, len(line))
	for i := 0; i < len(line); {
		c := line[i]
		var next byte
		if i+1 < len(line) {
			next = line[i+1]
		}

		switch {
		case lx.inBlock:
			if c == '*' && next == '/' {
				lx.inBlock = false
				i += 2
				continue
			}
			i++
			continue
		case lx.inTriple != 0:
			if c == '\\' {
				i += 2
				continue
			}
			if c == lx.inTriple && hasTriple(line, i, c) {
				lx.inTriple = 0
				out = append(out, c)
				i += 3
				continue
			}
			i++
			continue
		case lx.inQuote != 0:
			if c == '\\' {
				i += 2
				continue
			}
			if c == lx.inQuote {
				lx.inQuote = 0
				out = append(out, c)
			}
			i++
			continue
		}

		switch {
		case lx.slash && c == '/' && next == '/':
			return out
		case lx.slash && c == '/' && next == '*':
			lx.inBlock = true
			i += 2
		case lx.hash && c == '#':
			return out
		case lx.triple && (c == '"' || c == '\'') && hasTriple(line, i, c):
			lx.inTriple = c
			out = append(out, c)
			i += 3
		case c == '"' || c == '`':
			lx.inQuote = c
			out = append(out, c)
			i++
		case c == '\'':
			switch {
			case next == '\\':
				j := i + 2
				for j < len(line) && j < i+12 && line[j] != '\'' {
					j++
				}
				i = j + 1
			case i+2 < len(line) && line[i+2] == '\'':
				i += 3
			case lx.singleQuote:
				lx.inQuote = c
				out = append(out, c)
				i++
			default:
				i++
			}
		default:
			out = append(out, c)
			i++
		}
	}
	return out
}

func hasTriple(line []byte, i int, c byte) bool {
	return i+2 < len(line) && line[i+1] == c && line[i+2] == c
}
