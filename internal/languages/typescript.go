package languages

import (
	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// NewTypeScriptProfile describes TypeScript. It shares the JavaScript
// conventions and adds interfaces and type aliases as units.
func NewTypeScriptProfile() *parser.Profile {
	units := append([]parser.UnitNode{}, jsUnitNodes...)
	units = append(units,
		parser.UnitNode{Type: "abstract_class_declaration", Kind: parser.UnitClass, NameField: "name"},
		parser.UnitNode{Type: "interface_declaration", Kind: parser.UnitInterface, NameField: "name"},
		parser.UnitNode{Type: "type_alias_declaration", Kind: parser.UnitInterface, NameField: "name"},
		parser.UnitNode{Type: "enum_declaration", Kind: parser.UnitConstant, NameField: "name"},
	)
	defs := append([]string{}, jsDefinitions...)
	defs = append(defs,
		`^(?:export\s+)?(?:declare\s+)?interface\s+{name}`,
		`^(?:export\s+)?(?:declare\s+)?type\s+{name}\s*[=<]`,
		`^(?:export\s+)?(?:const\s+)?enum\s+{name}`,
	)

	return &parser.Profile{
		Language:           "typescript",
		Extensions:         []string{".ts", ".mts", ".cts"},
		Grammar:            typescript.GetLanguage(),
		UnitNodes:          units,
		Wrappers:           map[string]string{"export_statement": "declaration"},
		RegistrationNodes:  []string{"expression_statement"},
		Registration:       jsRegistration,
		Definitions:        defs,
		Block:              parser.BlockBraces,
		CommentPrefixes:    slashComments,
		DecoratorPrefixes:  []string{"@"},
		EntryPoints:        jsEntryPoints,
		Imports:            jsImports,
		UnitSpacing:        1,
		SingleQuoteStrings: true,
		NeedsCompilation:   true,
	}
}

// NewTSXProfile is TypeScript with the JSX-aware grammar.
func NewTSXProfile() *parser.Profile {
	p := NewTypeScriptProfile()
	p.Language = "tsx"
	p.Extensions = []string{".tsx"}
	p.Grammar = tsx.GetLanguage()
	return p
}
