// Package project enumerates the source files that belong to a target's
// project and summarizes its layout.
package project

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/ignore"
	"github.com/morozRed/unitsmith/internal/parser"
)

// DefaultMaxFiles caps a scan so a misconfigured root cannot snapshot a
// whole home directory.
const DefaultMaxFiles = 5000

// Structure is the layout of one project.
type Structure struct {
	Root       string         `json:"root"`
	Language   string         `json:"language"`
	EntryPoint string         `json:"entry_point,omitempty"`
	Files      []string       `json:"files"`
	Modules    []string       `json:"modules,omitempty"`
	Manifests  []string       `json:"manifests,omitempty"`
	Languages  map[string]int `json:"languages,omitempty"`
}

// Options tunes a scan.
type Options struct {
	// Exclude holds extra gitignore-style rules on top of ignore.DefaultRules.
	Exclude  []string
	MaxFiles int
	// NoGitignore disables .gitignore files found in the tree.
	NoGitignore bool
}

var extraManifests = []string{"package.json", "pyproject.toml", "setup.py", "Gemfile"}

var entryCandidates = map[string][]string{
	"python":     {"server.py", "main.py", "app.py", "__main__.py", "run.py"},
	"javascript": {"server.js", "index.js", "main.js", "app.js"},
	"typescript": {"server.ts", "src/server.ts", "index.ts", "src/index.ts", "main.ts", "app.ts"},
	"rust":       {"src/main.rs", "src/lib.rs", "main.rs"},
	"go":         {"main.go", "cmd/main.go"},
	"c":          {"main.c", "src/main.c"},
	"ruby":       {"server.rb", "main.rb", "app.rb"},
}

var moduleMarkers = []string{"__init__.py", "index.js", "index.ts", "mod.rs"}

// Scan walks root and returns every source file the registry recognizes,
// skipping default excludes, configured excludes and .gitignore matches.
// Files are absolute and sorted.
func Scan(ctx context.Context, root string, registry *parser.Registry, opts Options) (Structure, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Structure{}, failure.Wrap(failure.IOFailure, err, "resolve %s", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Structure{}, failure.Wrap(failure.IOFailure, err, "stat %s", abs)
	}
	if !info.IsDir() {
		return Structure{}, failure.New(failure.InvalidArgument, "%s is not a directory", abs)
	}
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	s := Structure{Root: abs, Languages: map[string]int{}}
	matcher := ignore.NewMatcher(opts.Exclude)
	manifests := map[string]bool{}
	for _, name := range append(build.Manifests(), extraManifests...) {
		manifests[name] = true
	}

	err = filepath.WalkDir(abs, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == abs {
				return walkErr
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		parts := splitRel(rel)

		if d.IsDir() {
			if path != abs {
				if matcher.ShouldIgnore(rel, true) {
					return filepath.SkipDir
				}
				if hasAny(path, moduleMarkers) {
					s.Modules = append(s.Modules, rel)
				}
			}
			if !opts.NoGitignore {
				matcher.AddGitignore(path, parts)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.ShouldIgnore(rel, false) {
			return nil
		}
		if manifests[d.Name()] {
			s.Manifests = append(s.Manifests, rel)
		}
		p, ok := registry.ForFile(path)
		if !ok {
			return nil
		}
		if len(s.Files) >= maxFiles {
			return failure.New(failure.InvalidArgument, "%s holds more than %d source files", abs, maxFiles)
		}
		s.Files = append(s.Files, path)
		s.Languages[p.Language]++
		return nil
	})
	if err != nil {
		if _, ok := failure.As(err); ok {
			return Structure{}, err
		}
		return Structure{}, failure.Wrap(failure.IOFailure, err, "scan %s", abs)
	}

	sort.Strings(s.Files)
	s.Language = detectLanguage(abs, s.Languages)
	s.EntryPoint = detectEntryPoint(abs, s.Language)
	return s, nil
}

func splitRel(rel string) []string {
	if rel == "." || rel == "" {
		return nil
	}
	return strings.Split(rel, "/")
}

func hasAny(dir string, names []string) bool {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// detectLanguage prefers manifests over file counts.
func detectLanguage(root string, counts map[string]int) string {
	switch {
	case exists(root, "Cargo.toml"):
		return "rust"
	case exists(root, "go.mod"):
		return "go"
	case exists(root, "pyproject.toml"), exists(root, "setup.py"):
		return "python"
	case exists(root, "Gemfile"):
		return "ruby"
	case exists(root, "package.json"):
		if usesTypeScript(root) {
			return "typescript"
		}
		return "javascript"
	}
	best, bestCount := "unknown", 0
	for language, count := range counts {
		if count > bestCount || (count == bestCount && language < best) {
			best, bestCount = language, count
		}
	}
	if best == "tsx" {
		return "typescript"
	}
	return best
}

func usesTypeScript(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if json.Unmarshal(data, &pkg) != nil {
		return false
	}
	_, dep := pkg.Dependencies["typescript"]
	_, dev := pkg.DevDependencies["typescript"]
	return dep || dev || exists(root, "tsconfig.json")
}

func detectEntryPoint(root, language string) string {
	for _, candidate := range entryCandidates[language] {
		if exists(root, candidate) {
			return filepath.Join(root, filepath.FromSlash(candidate))
		}
	}
	return ""
}

func exists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(name)))
	return err == nil
}
