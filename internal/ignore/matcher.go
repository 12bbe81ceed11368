// Package ignore decides which paths under a project root are excluded
// from scans and checkpoints. Configured rules and .gitignore files share
// gitignore syntax and are matched with go-git's implementation.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultRules exclude dependency, cache and build-output directories
// that never hold a target's own sources.
var DefaultRules = []string{
	".git/",
	"node_modules/",
	"__pycache__/",
	".venv/",
	"venv/",
	"env/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	".next/",
	".nuxt/",
	"*.pyc",
}

// Matcher applies gitignore rules with "last rule wins" behavior. A path
// is ignored when the configured rules or any collected .gitignore file
// exclude it.
type Matcher struct {
	rules     []gitignore.Pattern
	gitignore []gitignore.Pattern
}

// NewMatcher builds a matcher from configured exclude lines. DefaultRules
// are prepended and can be overridden by negation rules.
func NewMatcher(userRules []string) *Matcher {
	all := make([]string, 0, len(DefaultRules)+len(userRules))
	all = append(all, DefaultRules...)
	all = append(all, userRules...)
	return &Matcher{rules: parseLines(all, nil)}
}

// AddGitignore reads dir/.gitignore, scoping its patterns to domain (the
// path segments of dir below the project root). A missing file adds
// nothing. AddGitignore is meant for a single walk and is not safe for
// concurrent use with ShouldIgnore.
func (m *Matcher) AddGitignore(dir string, domain []string) {
	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	m.gitignore = append(m.gitignore, parseLines(lines, domain)...)
}

// ShouldIgnore returns true when relPath should be excluded.
func (m *Matcher) ShouldIgnore(relPath string, isDir bool) bool {
	parts := splitPath(relPath)
	if len(parts) == 0 {
		return false
	}
	if gitignore.NewMatcher(m.rules).Match(parts, isDir) {
		return true
	}
	return len(m.gitignore) > 0 && gitignore.NewMatcher(m.gitignore).Match(parts, isDir)
}

func parseLines(lines []string, domain []string) []gitignore.Pattern {
	patterns := make([]gitignore.Pattern, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(trimmed, domain))
	}
	return patterns
}

func splitPath(path string) []string {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "./")
	path = strings.Trim(path, "/")
	if path == "" || path == "." {
		return nil
	}
	return strings.Split(path, "/")
}
