package parser

import (
	"path/filepath"
	"sort"
	"strings"
)

// Registry holds all registered language profiles. It is populated once at
// start-up and only read afterwards.
type Registry struct {
	profiles  map[string]*Profile // language name -> profile
	extToLang map[string]string   // extension -> language name
}

// NewRegistry creates a new profile registry
func NewRegistry() *Registry {
	return &Registry{
		profiles:  make(map[string]*Profile),
		extToLang: make(map[string]string),
	}
}

// Register adds a language profile to the registry
func (r *Registry) Register(p *Profile) {
	lang := strings.ToLower(p.Language)
	r.profiles[lang] = p
	for _, ext := range p.Extensions {
		r.extToLang[strings.ToLower(ext)] = lang
	}
}

// ForFile returns the profile for a file, looked up by extension
func (r *Registry) ForFile(filename string) (*Profile, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	lang, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	p, ok := r.profiles[lang]
	return p, ok
}

// ForLanguage returns the profile registered under a language tag
func (r *Registry) ForLanguage(lang string) (*Profile, bool) {
	p, ok := r.profiles[strings.ToLower(strings.TrimSpace(lang))]
	return p, ok
}

// Resolve prefers a declared language and falls back to the file extension.
func (r *Registry) Resolve(filename, declared string) (*Profile, bool) {
	if strings.TrimSpace(declared) != "" {
		return r.ForLanguage(declared)
	}
	return r.ForFile(filename)
}

// Languages returns the registered language tags, sorted
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.profiles))
	for lang := range r.profiles {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// SupportedExtensions returns all supported file extensions, sorted
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsSource reports whether a path has a registered extension
func (r *Registry) IsSource(path string) bool {
	_, ok := r.extToLang[strings.ToLower(filepath.Ext(path))]
	return ok
}
