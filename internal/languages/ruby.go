package languages

import (
	"regexp"

	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/smacker/go-tree-sitter/ruby"
)

// NewRubyProfile describes Ruby. Bodies are closed by `end`.
func NewRubyProfile() *parser.Profile {
	return &parser.Profile{
		Language:   "ruby",
		Extensions: []string{".rb", ".rake"},
		Grammar:    ruby.GetLanguage(),
		UnitNodes: []parser.UnitNode{
			{Type: "method", Kind: parser.UnitFunction, NameField: "name"},
			{Type: "singleton_method", Kind: parser.UnitMethod, NameField: "name"},
			{Type: "class", Kind: parser.UnitClass, NameField: "name"},
			{Type: "module", Kind: parser.UnitModule, NameField: "name"},
		},
		RegistrationNodes: []string{"call"},
		Registration:      regexp.MustCompile(`define_tool\(?\s*name:\s*["'](?P<name>[^"']+)["']`),
		Definitions: []string{
			`^def\s+(?:self\.)?{name}`,
			`^class\s+{name}`,
			`^module\s+{name}`,
		},
		Block:              parser.BlockEnd,
		BlockOpen:          regexp.MustCompile(`^\s*(?:def|class|module|if|unless|while|until|case|begin|for)\b|\bdo(?:\s*\|[^|]*\|)?\s*$`),
		BlockClose:         regexp.MustCompile(`(?:^|;)\s*end\b`),
		CommentPrefixes:    hashComments,
		EntryPoints:        patterns(`^if\s+(?:__FILE__\s*==\s*\$(?:0|PROGRAM_NAME)|\$(?:0|PROGRAM_NAME)\s*==\s*__FILE__)`),
		Imports:            regexp.MustCompile(`^require(?:_relative)?\s*\(?\s*["'][^"']+["']\s*\)?\s*$`),
		UnitSpacing:        1,
		SingleQuoteStrings: true,
	}
}
