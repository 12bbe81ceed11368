// Package toolchain runs external syntax checkers and build tools and
// reports which of them the host provides.
package toolchain

import (
	"os/exec"
	"sort"

	"github.com/morozRed/unitsmith/internal/parser"
)

type Capability struct {
	Present   bool   `json:"present"`
	Tool      string `json:"tool"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// BuildTools are the binaries build profiles may invoke.
var BuildTools = []string{"cargo", "make", "cmake", "go", "npm", "tsc", "meson", "zig"}

func DetectLanguagePresence(paths []string, registry *parser.Registry) map[string]bool {
	presence := make(map[string]bool)
	for _, language := range registry.Languages() {
		presence[language] = false
	}
	for _, path := range paths {
		if p, ok := registry.ForFile(path); ok {
			presence[p.Language] = true
		}
	}
	return presence
}

func ProbeValidators(registry *parser.Registry, presence map[string]bool) map[string]Capability {
	return ProbeValidatorsWithLookPath(registry, presence, exec.LookPath)
}

// ProbeValidatorsWithLookPath reports, per language, whether buffers can be
// checked. A nil presence map treats every language as present.
func ProbeValidatorsWithLookPath(registry *parser.Registry, presence map[string]bool, lookPath func(file string) (string, error)) map[string]Capability {
	capabilities := make(map[string]Capability)
	for _, language := range registry.Languages() {
		p, _ := registry.ForLanguage(language)
		capability := Capability{Present: presence == nil || presence[language]}

		if p.InProcess() {
			capability.Tool = "tree-sitter"
			capability.Available = true
			capabilities[language] = capability
			continue
		}
		if len(p.Validators) > 0 {
			capability.Tool = p.Validators[0].Binary
		}
		if !capability.Present {
			capability.Reason = "language_not_present"
			capabilities[language] = capability
			continue
		}

		for _, validator := range p.Validators {
			if _, err := lookPath(validator.Binary); err == nil {
				capability.Available = true
				capability.Tool = validator.Binary
				break
			}
		}
		if !capability.Available {
			capability.Reason = "validator_not_found"
		}
		capabilities[language] = capability
	}
	return capabilities
}

// ProbeBuildTools reports which build tools are on PATH.
func ProbeBuildTools(lookPath func(file string) (string, error)) map[string]Capability {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	capabilities := make(map[string]Capability, len(BuildTools))
	for _, tool := range BuildTools {
		capability := Capability{Present: true, Tool: tool}
		if _, err := lookPath(tool); err == nil {
			capability.Available = true
		} else {
			capability.Reason = "tool_not_found"
		}
		capabilities[tool] = capability
	}
	return capabilities
}

// SortedKeys returns capability names in stable order for rendering.
func SortedKeys(capabilities map[string]Capability) []string {
	keys := make([]string, 0, len(capabilities))
	for key := range capabilities {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
