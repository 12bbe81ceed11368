// Package engine coordinates every source mutation: it locates the unit,
// splices a candidate buffer, validates it, records a backup and only then
// replaces the file. It also fronts the ledger and build operations so a
// caller has one surface for all of them.
package engine

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/ledger"
	"github.com/morozRed/unitsmith/internal/parser"
	"github.com/morozRed/unitsmith/internal/sandbox"
	"github.com/morozRed/unitsmith/internal/targets"
	"github.com/morozRed/unitsmith/internal/validate"
	"go.uber.org/zap"
)

// Options wires an Engine. Registry, Validator and Ledger are required.
type Options struct {
	Registry  *parser.Registry
	Validator *validate.Validator
	Ledger    *ledger.Store
	Sandbox   *sandbox.Policy
	Builder   *build.Builder
	Targets   *targets.Registry
	// Exclude adds gitignore-style rules to project scans.
	Exclude []string
	Logger  *zap.Logger
}

// Engine is safe for concurrent use. Requests against the same file
// serialize; requests against different files do not share state.
type Engine struct {
	registry  *parser.Registry
	validator *validate.Validator
	ledger    *ledger.Store
	policy    *sandbox.Policy
	builder   *build.Builder
	targets   *targets.Registry
	exclude   []string
	logger    *zap.Logger
	locks     *pathLocks
}

func New(opts Options) (*Engine, error) {
	if opts.Registry == nil || opts.Validator == nil || opts.Ledger == nil {
		return nil, errors.New("engine: registry, validator and ledger are required")
	}
	e := &Engine{
		registry:  opts.Registry,
		validator: opts.Validator,
		ledger:    opts.Ledger,
		policy:    opts.Sandbox,
		builder:   opts.Builder,
		targets:   opts.Targets,
		exclude:   opts.Exclude,
		logger:    opts.Logger,
		locks:     newPathLocks(),
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// FileRef names a source file directly or through a target.
type FileRef struct {
	Target   string `json:"target,omitempty"`
	File     string `json:"file,omitempty"`
	Language string `json:"language,omitempty"`
}

// resolved is a sandboxed file with its language profile.
type resolved struct {
	path    string
	profile *parser.Profile
	target  *targets.Target
}

func (e *Engine) resolve(ref FileRef) (resolved, error) {
	var r resolved
	file, language := ref.File, ref.Language
	if ref.Target != "" {
		t, err := e.target(ref.Target)
		if err != nil {
			return r, err
		}
		r.target = &t
		if file == "" {
			file = t.SourceFile
		}
		if language == "" {
			language = t.Language
		}
	}
	if file == "" {
		return r, failure.New(failure.InvalidArgument, "a file or a target is required")
	}
	path, err := e.policy.Check(file)
	if err != nil {
		return r, err
	}
	p, ok := e.registry.Resolve(path, language)
	if !ok {
		if language != "" {
			return r, failure.New(failure.Unsupported, "language %q is not supported", language)
		}
		return r, failure.New(failure.Unsupported, "no language profile for %s", filepath.Base(path))
	}
	r.path = path
	r.profile = p
	return r, nil
}

func (e *Engine) target(name string) (targets.Target, error) {
	if e.targets == nil {
		return targets.Target{}, failure.New(failure.NotFound, "target %q is not configured", name)
	}
	return e.targets.Get(name)
}

// ProjectRef names a project directly or through a target.
type ProjectRef struct {
	Target string `json:"target,omitempty"`
	Root   string `json:"root,omitempty"`
}

// projectRoot resolves ref to a sandboxed directory and a display name.
func (e *Engine) projectRoot(ref ProjectRef) (root, name string, err error) {
	root, name = ref.Root, ref.Target
	if ref.Target != "" {
		t, err := e.target(ref.Target)
		if err != nil {
			return "", "", err
		}
		if root == "" {
			root = t.ProjectRoot
		}
		if root == "" {
			if root, err = build.FindProjectRoot(t.SourceFile); err != nil {
				return "", "", failure.Wrap(failure.IOFailure, err, "find project root of %s", ref.Target)
			}
		}
	}
	if root == "" {
		return "", "", failure.New(failure.InvalidArgument, "a project root or a target is required")
	}
	root, err = e.policy.Check(root)
	if err != nil {
		return "", "", err
	}
	if name == "" {
		name = filepath.Base(root)
	}
	return root, name, nil
}

func readSource(path string) ([]byte, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, failure.Wrap(failure.IOFailure, err, "stat %s", path)
	}
	if info.IsDir() {
		return nil, 0, failure.New(failure.InvalidArgument, "%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, failure.Wrap(failure.IOFailure, err, "read %s", path)
	}
	return data, info.Mode().Perm(), nil
}
