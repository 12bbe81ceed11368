package languages

import (
	"regexp"

	"github.com/morozRed/unitsmith/internal/parser"
)

// NewCProfile describes C. Prototypes are skipped by the scanner, only
// definitions with a body are units. GNU style definitions keep the
// return type on the line above the name.
func NewCProfile() *parser.Profile {
	return &parser.Profile{
		Language:   "c",
		Extensions: []string{".c", ".h"},
		Definitions: []string{
			`^(?:[A-Za-z_]\w*[\s\*]+)+\**{name}\s*\(`,
			`^(?:typedef\s+)?(?:struct|enum|union)\s+{name}\s*\{?\s*$`,
		},
		SplitDefinitions: []string{`^{name}\s*\(`},
		TypeLine:         regexp.MustCompile(`^(?:[A-Za-z_]\w*[\s\*]+)*[A-Za-z_]\w*[\s\*]*$`),
		Block:            parser.BlockBraces,
		CommentPrefixes:  slashComments,
		Imports:          regexp.MustCompile(`^#include\s*[<"][^>"]+[>"]\s*$`),
		UnitSpacing:      1,
		Validators: []parser.Command{
			{Binary: "gcc", Args: []string{"-fsyntax-only", parser.FilePlaceholder}},
			{Binary: "clang", Args: []string{"-fsyntax-only", parser.FilePlaceholder}},
		},
		NeedsCompilation: true,
	}
}
