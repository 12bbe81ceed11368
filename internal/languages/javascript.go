package languages

import (
	"regexp"

	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/smacker/go-tree-sitter/javascript"
)

var (
	// server.tool("name", ...) and server.registerTool("name", ...)
	jsRegistration = regexp.MustCompile("^\\s*(?:await\\s+)?\\w+(?:\\.\\w+)*\\.(?:tool|registerTool)\\(\\s*[\"'`](?P<name>[^\"'`]+)[\"'`]")

	jsUnitNodes = []parser.UnitNode{
		{Type: "function_declaration", Kind: parser.UnitFunction, NameField: "name"},
		{Type: "generator_function_declaration", Kind: parser.UnitFunction, NameField: "name"},
		{Type: "class_declaration", Kind: parser.UnitClass, NameField: "name"},
		{Type: "lexical_declaration", Kind: parser.UnitConstant, NameField: "name", Via: "variable_declarator"},
		{Type: "variable_declaration", Kind: parser.UnitConstant, NameField: "name", Via: "variable_declarator"},
	}

	jsDefinitions = []string{
		`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*{name}\s*\(`,
		`^(?:export\s+)?(?:const|let|var)\s+{name}\s*=`,
		`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+{name}`,
		`^\s*(?:await\s+)?\w+(?:\.\w+)*\.(?:tool|registerTool)\(\s*["'` + "`" + `]{name}["'` + "`" + `]`,
	}

	jsEntryPoints = patterns(
		`^(?:await\s+)?main\s*\(\s*\)`,
		`^(?:await\s+)?(?:server|app)\.(?:connect|listen)\s*\(`,
		`^(?:const|let)\s+transport\s*=`,
		`^if\s*\(\s*require\.main\s*===?\s*module\s*\)`,
	)

	jsImports = regexp.MustCompile(`^(?:import\s.+?\sfrom\s+["'][^"']+["'];?|import\s+["'][^"']+["'];?|(?:const|let|var)\s+.+?=\s*require\(\s*["'][^"']+["']\s*\);?)\s*$`)
)

// NewJavaScriptProfile describes JavaScript, including JSX and ES modules.
func NewJavaScriptProfile() *parser.Profile {
	return &parser.Profile{
		Language:           "javascript",
		Extensions:         []string{".js", ".mjs", ".cjs", ".jsx"},
		Grammar:            javascript.GetLanguage(),
		UnitNodes:          jsUnitNodes,
		Wrappers:           map[string]string{"export_statement": "declaration"},
		RegistrationNodes:  []string{"expression_statement"},
		Registration:       jsRegistration,
		Definitions:        jsDefinitions,
		Block:              parser.BlockBraces,
		CommentPrefixes:    slashComments,
		DecoratorPrefixes:  []string{"@"},
		EntryPoints:        jsEntryPoints,
		Imports:            jsImports,
		UnitSpacing:        1,
		SingleQuoteStrings: true,
	}
}
