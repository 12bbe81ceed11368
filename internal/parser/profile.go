package parser

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// BlockStyle tells the structural scanner how a unit body is delimited.
type BlockStyle int

const (
	BlockBraces BlockStyle = iota
	BlockIndent
	BlockEnd
)

func (b BlockStyle) String() string {
	switch b {
	case BlockBraces:
		return "braces"
	case BlockIndent:
		return "indent"
	case BlockEnd:
		return "end"
	default:
		return "unknown"
	}
}

// FilePlaceholder is replaced by the candidate path in validator arguments.
const FilePlaceholder = "{file}"

// NamePlaceholder is replaced by the quoted unit name in definition templates.
const NamePlaceholder = "{name}"

const identifierPattern = `(?P<name>[A-Za-z_$][A-Za-z0-9_$]*[?!]?)`

var wordChar = regexp.MustCompile(`[A-Za-z0-9_]`)

// Command is an external syntax-only check. Args may reference FilePlaceholder.
type Command struct {
	Binary string   `json:"binary" yaml:"binary"`
	Args   []string `json:"args" yaml:"args"`
}

// Argv expands the placeholder for the given file.
func (c Command) Argv(file string) []string {
	out := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		out = append(out, strings.ReplaceAll(arg, FilePlaceholder, file))
	}
	return out
}

func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// UnitNode describes a syntax node type that declares a unit.
// NameField is the field holding the name. When Via is set, the names
// live on named children of that type instead (one unit per child name).
// ReceiverField names the method receiver whose type qualifies the unit.
type UnitNode struct {
	Type          string
	Kind          UnitKind
	NameField     string
	Via           string
	ReceiverField string
}

// Profile is the immutable description of one language: how units are
// found, how they are decorated and how a buffer is checked. Languages
// are added by registering a new Profile, never by branching on names.
type Profile struct {
	Language   string
	Extensions []string

	// Grammar is the in-process grammar. Nil means the buffer can only be
	// checked by an external toolchain and units are found by scanning.
	Grammar *sitter.Language
	// UnitNodes lists top-level node types that declare units.
	UnitNodes []UnitNode
	// Wrappers maps node types that wrap a definition (decorators, exports)
	// to the field holding the wrapped definition.
	Wrappers map[string]string
	// RegistrationNodes are top-level statement types that may register a
	// unit by convention (for example `server.tool("name", ...)`).
	RegistrationNodes []string

	// Registration matches the language's registration convention. An
	// optional `name` group overrides the declared name.
	Registration *regexp.Regexp
	// Definitions are line patterns containing NamePlaceholder.
	Definitions []string
	// SplitDefinitions only match when the line directly above holds
	// nothing but the declaration's type, as matched by TypeLine
	// (`static int` over `add_one(int x)`).
	SplitDefinitions []string
	TypeLine         *regexp.Regexp
	Block            BlockStyle
	BlockOpen        *regexp.Regexp
	BlockClose       *regexp.Regexp
	// SemicolonEnds makes a `;` before any opening brace end the unit
	// (Rust unit structs). Otherwise such a line is a prototype and skipped.
	SemicolonEnds bool
	// SingleQuoteStrings marks '...' as a string. Otherwise a quote starts
	// a char literal or a lifetime.
	SingleQuoteStrings bool

	CommentPrefixes   []string
	DecoratorPrefixes []string
	EntryPoints       []*regexp.Regexp
	Imports           *regexp.Regexp
	ImportAnchor      *regexp.Regexp
	UnitSpacing       int

	Validators       []Command
	NeedsCompilation bool
}

// InProcess reports whether the profile parses buffers itself.
func (p *Profile) InProcess() bool {
	return p != nil && p.Grammar != nil
}

// DefinitionRegexps compiles the definition templates for one exact name.
func (p *Profile) DefinitionRegexps(name string) []*regexp.Regexp {
	if name == "" {
		return nil
	}
	return compileTemplates(p.Definitions, exactName(name))
}

// SplitDefinitionRegexps compiles the split templates for name. An empty
// name yields the capturing form.
func (p *Profile) SplitDefinitionRegexps(name string) []*regexp.Regexp {
	if p.TypeLine == nil {
		return nil
	}
	if name == "" {
		return compileTemplates(p.SplitDefinitions, identifierPattern)
	}
	return compileTemplates(p.SplitDefinitions, exactName(name))
}

// AnyDefinitionRegexps compiles the definition templates with a capturing
// `name` group, for listing every unit.
func (p *Profile) AnyDefinitionRegexps() []*regexp.Regexp {
	return compileTemplates(p.Definitions, identifierPattern)
}

func exactName(name string) string {
	expr := regexp.QuoteMeta(name)
	if wordChar.MatchString(name[len(name)-1:]) {
		expr += `\b`
	}
	return expr
}

func compileTemplates(templates []string, replacement string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(templates))
	for _, tmpl := range templates {
		expr := strings.ReplaceAll(tmpl, NamePlaceholder, replacement)
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

// IsCommentLine reports whether a trimmed line starts with a comment prefix.
func (p *Profile) IsCommentLine(trimmed string) bool {
	return hasAnyPrefix(trimmed, p.CommentPrefixes)
}

// IsDecoratorLine reports whether a trimmed line starts with a decorator prefix.
func (p *Profile) IsDecoratorLine(trimmed string) bool {
	return hasAnyPrefix(trimmed, p.DecoratorPrefixes)
}

// RegisteredName returns the name declared by the registration convention
// in text. ok is false when the convention does not appear.
func (p *Profile) RegisteredName(text string) (name string, ok bool) {
	if p.Registration == nil {
		return "", false
	}
	m := p.Registration.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if idx := p.Registration.SubexpIndex("name"); idx > 0 && idx < len(m) {
		return m[idx], true
	}
	return "", true
}

// IsEntryPoint reports whether a line starts the trailing entry-point block.
func (p *Profile) IsEntryPoint(line string) bool {
	for _, re := range p.EntryPoints {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Spacing returns the blank lines expected between top-level units.
func (p *Profile) Spacing() int {
	if p.UnitSpacing <= 0 {
		return 1
	}
	return p.UnitSpacing
}

// PrimaryExtension is the extension used for temporary candidate files.
func (p *Profile) PrimaryExtension() string {
	if len(p.Extensions) == 0 {
		return ".txt"
	}
	return p.Extensions[0]
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
