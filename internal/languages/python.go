package languages

import (
	"regexp"

	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/smacker/go-tree-sitter/python"
)

// NewPythonProfile describes Python: decorated functions and classes,
// indentation-delimited bodies and a trailing `if __name__` block.
func NewPythonProfile() *parser.Profile {
	return &parser.Profile{
		Language:   "python",
		Extensions: []string{".py", ".pyw"},
		Grammar:    python.GetLanguage(),
		UnitNodes: []parser.UnitNode{
			{Type: "function_definition", Kind: parser.UnitFunction, NameField: "name"},
			{Type: "class_definition", Kind: parser.UnitClass, NameField: "name"},
		},
		Wrappers: map[string]string{
			"decorated_definition": "definition",
		},
		Registration: regexp.MustCompile(`(?m)^\s*@(?:\w+\.)*tool\b(?:\(\s*(?:name\s*=\s*)?["'](?P<name>[^"']+)["'])?`),
		Definitions: []string{
			`^(?:async\s+)?def\s+{name}\s*\(`,
			`^class\s+{name}\s*[(:]`,
		},
		Block:              parser.BlockIndent,
		CommentPrefixes:    hashComments,
		DecoratorPrefixes:  []string{"@"},
		EntryPoints:        patterns(`^if\s+__name__\s*==\s*['"]__main__['"]\s*:`),
		Imports:            regexp.MustCompile(`^(?:from\s+[\w.]+\s+import\s+.+|import\s+[\w.]+(?:\s+as\s+\w+)?(?:\s*,\s*[\w.]+(?:\s+as\s+\w+)?)*)\s*$`),
		UnitSpacing:        2,
		SingleQuoteStrings: true,
	}
}
