package languages

import "github.com/morozRed/unitsmith/internal/parser"

// NewDefaultRegistry creates a registry with all supported language profiles
func NewDefaultRegistry() *parser.Registry {
	r := parser.NewRegistry()

	r.Register(NewPythonProfile())
	r.Register(NewJavaScriptProfile())
	r.Register(NewTypeScriptProfile())
	r.Register(NewTSXProfile())
	r.Register(NewGoProfile())
	r.Register(NewRubyProfile())
	r.Register(NewRustProfile())
	r.Register(NewCProfile())

	return r
}
