package languages

import (
	"regexp"

	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/smacker/go-tree-sitter/golang"
)

// NewGoProfile describes Go source files
func NewGoProfile() *parser.Profile {
	return &parser.Profile{
		Language:   "go",
		Extensions: []string{".go"},
		Grammar:    golang.GetLanguage(),
		UnitNodes: []parser.UnitNode{
			{Type: "function_declaration", Kind: parser.UnitFunction, NameField: "name"},
			{Type: "method_declaration", Kind: parser.UnitMethod, NameField: "name", ReceiverField: "receiver"},
			{Type: "type_declaration", Kind: parser.UnitStruct, NameField: "name", Via: "type_spec"},
		},
		RegistrationNodes: []string{"var_declaration"},
		Registration:      regexp.MustCompile(`mcp\.NewTool\(\s*"(?P<name>[^"]+)"`),
		Definitions: []string{
			`^func\s+{name}\s*[\[(]`,
			`^func\s*\([^)]*\)\s*{name}\s*[\[(]`,
			`^type\s+{name}\s`,
		},
		Block:            parser.BlockBraces,
		CommentPrefixes:  slashComments,
		Imports:          regexp.MustCompile(`^import\s+(?:[\w.]+\s+)?"[^"]+"\s*$`),
		ImportAnchor:     regexp.MustCompile(`^package\s+\w+`),
		UnitSpacing:      1,
		NeedsCompilation: true,
	}
}
