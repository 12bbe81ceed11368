package parser

// UnitKind represents the type of definition a unit is
type UnitKind int

const (
	UnitFunction UnitKind = iota
	UnitMethod
	UnitClass
	UnitStruct
	UnitInterface
	UnitModule
	UnitConstant
	UnitRegistration
)

func (k UnitKind) String() string {
	switch k {
	case UnitFunction:
		return "func"
	case UnitMethod:
		return "method"
	case UnitClass:
		return "class"
	case UnitStruct:
		return "struct"
	case UnitInterface:
		return "interface"
	case UnitModule:
		return "module"
	case UnitConstant:
		return "const"
	case UnitRegistration:
		return "registration"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON output.
func (k UnitKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Span is a half-open byte range [Start, End) inside a buffer.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered.
func (s Span) Len() int {
	return s.End - s.Start
}

// Empty reports whether the span covers no bytes.
func (s Span) Empty() bool {
	return s.End <= s.Start
}

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// SourceUnit is one located, addressable definition inside a buffer.
// Span covers decorators, leading documentation and the body, and is
// aligned to whole lines (it ends after the final newline when present).
// It is recomputed for every request and never persisted.
type SourceUnit struct {
	Name       string   `json:"name"`
	Receiver   string   `json:"receiver,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
	Language   string   `json:"language"`
	Kind       UnitKind `json:"kind"`
	Span       Span     `json:"span"`
	Decorators Span     `json:"decorators"`
	Doc        Span     `json:"doc"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Registered bool     `json:"registered"`
	Text       string   `json:"-"`
}

// QualifiedName is Receiver.Name for methods and Name otherwise. Two
// methods of different types share a name but not a qualified name.
func (u SourceUnit) QualifiedName() string {
	if u.Receiver == "" {
		return u.Name
	}
	return u.Receiver + "." + u.Name
}

// Matches reports whether the unit is addressable by name, qualified name
// or alias.
func (u SourceUnit) Matches(name string) bool {
	if u.Name == name || u.QualifiedName() == name {
		return true
	}
	for _, alias := range u.Aliases {
		if alias == name {
			return true
		}
	}
	return false
}

// Located bundles a unit with the warnings produced while finding it.
type Located struct {
	Unit     SourceUnit
	Warnings []string
}
