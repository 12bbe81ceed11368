// Package build infers how a target's project is compiled, runs that
// command and remembers the outcome.
package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Build system tags, in detection precedence order.
const (
	SystemCargo      = "cargo"
	SystemMake       = "make"
	SystemCMake      = "cmake"
	SystemGo         = "go"
	SystemTypeScript = "typescript"
	SystemMeson      = "meson"
	SystemZig        = "zig"
	SystemNone       = "none"
)

// Profile is the detected build step of one project root.
type Profile struct {
	Target      string    `json:"target,omitempty" msgpack:"target"`
	Root        string    `json:"root" msgpack:"root"`
	System      string    `json:"system" msgpack:"system"`
	Command     []string  `json:"command,omitempty" msgpack:"command"`
	Manifest    string    `json:"manifest,omitempty" msgpack:"manifest"`
	Package     string    `json:"package,omitempty" msgpack:"package"`
	Notes       []string  `json:"notes,omitempty" msgpack:"notes"`
	DetectedAt  time.Time `json:"detected_at" msgpack:"detected_at"`
	LastSuccess time.Time `json:"last_success,omitempty" msgpack:"last_success"`
	LastFailure time.Time `json:"last_failure,omitempty" msgpack:"last_failure"`
	LastError   string    `json:"last_error,omitempty" msgpack:"last_error"`
}

// NeedsCompilation reports whether the project has a build step.
func (p Profile) NeedsCompilation() bool {
	return p.System != SystemNone && p.System != "" && len(p.Command) > 0
}

// CommandLine renders the command for display.
func (p Profile) CommandLine() string {
	return strings.Join(p.Command, " ")
}

// Failing reports whether the most recent build of this profile failed.
func (p Profile) Failing() bool {
	return !p.LastFailure.IsZero() && p.LastFailure.After(p.LastSuccess)
}

// Candidate is one build system whose manifest is present.
type Candidate struct {
	System   string   `json:"system"`
	Manifest string   `json:"manifest"`
	Command  []string `json:"command"`
	Package  string   `json:"package,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

type probe struct {
	system    string
	manifests []string
	inspect   func(root, manifest string) (Candidate, bool)
}

var probes = []probe{
	{SystemCargo, []string{"Cargo.toml"}, inspectCargo},
	{SystemMake, []string{"Makefile", "makefile", "GNUmakefile"}, fixed("make")},
	{SystemCMake, []string{"CMakeLists.txt"}, fixed("cmake", "--build", ".")},
	{SystemGo, []string{"go.mod"}, fixed("go", "build", "./...")},
	{SystemTypeScript, []string{"package.json"}, inspectPackageJSON},
	{SystemMeson, []string{"meson.build"}, fixed("meson", "compile", "-C", "build")},
	{SystemZig, []string{"build.zig"}, fixed("zig", "build")},
}

// Manifests lists every file name that marks a project root.
func Manifests() []string {
	var names []string
	for _, p := range probes {
		names = append(names, p.manifests...)
	}
	return names
}

// Candidates returns every build system whose manifest is present in root,
// in precedence order.
func Candidates(root string) []Candidate {
	var out []Candidate
	for _, p := range probes {
		for _, manifest := range p.manifests {
			if !isFile(filepath.Join(root, manifest)) {
				continue
			}
			if c, ok := p.inspect(root, manifest); ok {
				c.System = p.system
				c.Manifest = manifest
				out = append(out, c)
			}
			break
		}
	}
	return out
}

// Detect returns the profile of the first candidate not listed in failed.
// When every candidate has failed the first one wins; with no candidate
// the profile is SystemNone.
func Detect(root string, failed map[string]bool) Profile {
	profile := Profile{Root: root, System: SystemNone, DetectedAt: time.Now()}
	candidates := Candidates(root)
	if len(candidates) == 0 {
		return profile
	}
	chosen := candidates[0]
	for _, c := range candidates {
		if !failed[c.System] {
			chosen = c
			break
		}
	}
	if chosen.System != candidates[0].System {
		chosen.Notes = append(chosen.Notes, "preferred over "+candidates[0].System+" after a failed build")
	}
	profile.System = chosen.System
	profile.Command = chosen.Command
	profile.Manifest = chosen.Manifest
	profile.Package = chosen.Package
	profile.Notes = chosen.Notes
	return profile
}

func fixed(argv ...string) func(string, string) (Candidate, bool) {
	return func(string, string) (Candidate, bool) {
		return Candidate{Command: append([]string(nil), argv...)}, true
	}
}

type cargoManifest struct {
	Package *struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Workspace *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
}

func inspectCargo(root, manifest string) (Candidate, bool) {
	c := Candidate{Command: []string{"cargo", "build", "--release"}}
	var m cargoManifest
	if _, err := toml.DecodeFile(filepath.Join(root, manifest), &m); err != nil {
		c.Notes = append(c.Notes, "Cargo.toml could not be parsed: "+err.Error())
		return c, true
	}
	if m.Package != nil {
		c.Package = m.Package.Name
	}
	if m.Workspace != nil && m.Package == nil {
		c.Command = append(c.Command, "--workspace")
		c.Notes = append(c.Notes, "virtual workspace")
	}
	return c, true
}

type packageJSON struct {
	Name            string            `json:"name"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// inspectPackageJSON only matches TypeScript projects; plain JavaScript has
// no build step.
func inspectPackageJSON(root, manifest string) (Candidate, bool) {
	data, err := os.ReadFile(filepath.Join(root, manifest))
	if err != nil {
		return Candidate{}, false
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return Candidate{}, false
	}
	_, dep := pkg.Dependencies["typescript"]
	_, devDep := pkg.DevDependencies["typescript"]
	if !dep && !devDep && !isFile(filepath.Join(root, "tsconfig.json")) {
		return Candidate{}, false
	}
	c := Candidate{Package: pkg.Name, Command: []string{"tsc"}}
	if _, ok := pkg.Scripts["build"]; ok {
		c.Command = []string{"npm", "run", "build"}
	}
	return c, true
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// maxRootDepth bounds the upward search for a project root.
const maxRootDepth = 20

// FindProjectRoot walks up from a source file to the nearest directory
// holding a build manifest or a .git entry. It falls back to the file's
// own directory.
func FindProjectRoot(sourceFile string) (string, error) {
	abs, err := filepath.Abs(sourceFile)
	if err != nil {
		return "", err
	}
	start := filepath.Dir(abs)
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		start = abs
	}
	markers := append(Manifests(), ".git")

	dir := start
	for i := 0; i < maxRootDepth; i++ {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start, nil
}
