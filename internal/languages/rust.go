package languages

import (
	"regexp"

	"github.com/morozRed/unitsmith/internal/parser"
)

// NewRustProfile describes Rust. There is no in-process grammar: units
// are found by brace scanning and buffers are checked with rustfmt, which
// parses without resolving crates.
func NewRustProfile() *parser.Profile {
	return &parser.Profile{
		Language:     "rust",
		Extensions:   []string{".rs"},
		Registration: regexp.MustCompile(`#\[tool\b(?:\([^)]*?name\s*=\s*"(?P<name>[^"]+)")?`),
		Definitions: []string{
			`^(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?(?:extern\s+"[^"]*"\s+)?fn\s+{name}\s*[<(]`,
			`^(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait|union|mod)\s+{name}`,
		},
		Block:             parser.BlockBraces,
		SemicolonEnds:     true,
		CommentPrefixes:   []string{"///", "//!", "//", "/*", "*", "*/"},
		DecoratorPrefixes: []string{"#[", "#!["},
		Imports:           regexp.MustCompile(`^(?:pub\s+)?use\s+[\w:{}, *]+;\s*$`),
		UnitSpacing:       1,
		Validators: []parser.Command{
			{Binary: "rustfmt", Args: []string{"--edition", "2021", "--emit", "stdout", parser.FilePlaceholder}},
		},
		NeedsCompilation: true,
	}
}
