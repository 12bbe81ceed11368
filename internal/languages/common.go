package languages

import "regexp"

// Comment conventions shared by the C-family languages.
var (
	slashComments = []string{"//", "/*", "*", "*/"}
	hashComments  = []string{"#"}
)

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}
