// Package sandbox confines every path the engine touches to one root.
package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/morozRed/unitsmith/internal/failure"
)

// Policy is an allowed-root boundary. The zero root allows every path.
type Policy struct {
	root string
}

// New resolves root (following symlinks) and returns the policy. An empty
// root disables containment.
func New(root string) (*Policy, error) {
	if strings.TrimSpace(root) == "" {
		return &Policy{}, nil
	}
	resolved, err := resolve(root)
	if err != nil {
		return nil, err
	}
	return &Policy{root: resolved}, nil
}

// Root returns the resolved root, or "" when unrestricted.
func (p *Policy) Root() string {
	if p == nil {
		return ""
	}
	return p.root
}

// Check returns the absolute, symlink-resolved form of path, or an
// OutOfScope failure when it escapes the root.
func (p *Policy) Check(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", failure.New(failure.InvalidArgument, "path is required")
	}
	resolved, err := resolve(path)
	if err != nil {
		return "", failure.Wrap(failure.IOFailure, err, "resolve %s", path)
	}
	if p == nil || p.root == "" {
		return resolved, nil
	}
	if !within(p.root, resolved) {
		return "", failure.New(failure.OutOfScope, "%s is outside the allowed root %s", path, p.root)
	}
	return resolved, nil
}

// Allows reports whether path passes Check.
func (p *Policy) Allows(path string) bool {
	_, err := p.Check(path)
	return err == nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve makes path absolute and resolves symlinks in its longest
// existing prefix, so paths that do not exist yet still resolve.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	existing := abs
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, rest...)...), nil
}
