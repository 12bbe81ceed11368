// Package targets resolves managed server names to a project root and a
// primary source file.
package targets

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/morozRed/unitsmith/internal/build"
	"github.com/morozRed/unitsmith/internal/config"
	"github.com/morozRed/unitsmith/internal/failure"
	"github.com/morozRed/unitsmith/internal/parser"
)

const (
	OriginConfig = "config"
	OriginClient = "client"
)

// Target is one managed server.
type Target struct {
	Name        string   `json:"name"`
	SourceFile  string   `json:"source_file,omitempty"`
	ProjectRoot string   `json:"project_root,omitempty"`
	Language    string   `json:"language,omitempty"`
	Origin      string   `json:"origin"`
	Command     string   `json:"command,omitempty"`
	Args        []string `json:"args,omitempty"`
	// Unresolved explains why no source file could be derived.
	Unresolved string `json:"unresolved,omitempty"`
}

// Registry is the set of known targets, keyed by name.
type Registry struct {
	targets map[string]Target
}

type clientConfig struct {
	MCPServers map[string]clientServer `json:"mcpServers"`
}

type clientServer struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
}

// Load merges targets declared in cfg with the servers of cfg.ClientConfig.
// Declared targets win on a name clash. A missing client config file is
// not an error.
func Load(cfg *config.Config, languages *parser.Registry) (*Registry, error) {
	r := &Registry{targets: make(map[string]Target)}

	if cfg.ClientConfig != "" {
		servers, err := readClientConfig(cfg.ClientConfig)
		if err != nil {
			return nil, err
		}
		for name, server := range servers {
			r.targets[name] = fromClient(name, server, languages)
		}
	}

	for _, declared := range cfg.Targets {
		t := Target{Name: declared.Name, Origin: OriginConfig, Language: declared.Language}
		source, err := filepath.Abs(declared.SourceFile)
		if err != nil {
			return nil, failure.Wrap(failure.InvalidArgument, err, "target %s", declared.Name)
		}
		t.SourceFile = source
		t.ProjectRoot = declared.ProjectRoot
		if t.ProjectRoot == "" {
			t.ProjectRoot, err = build.FindProjectRoot(source)
			if err != nil {
				return nil, failure.Wrap(failure.IOFailure, err, "target %s", declared.Name)
			}
		} else if t.ProjectRoot, err = filepath.Abs(t.ProjectRoot); err != nil {
			return nil, failure.Wrap(failure.InvalidArgument, err, "target %s", declared.Name)
		}
		if t.Language == "" {
			if p, ok := languages.ForFile(source); ok {
				t.Language = p.Language
			}
		}
		r.targets[t.Name] = t
	}
	return r, nil
}

func readClientConfig(path string) (map[string]clientServer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, failure.Wrap(failure.IOFailure, err, "read client config %s", path)
	}
	var cc clientConfig
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, failure.Wrap(failure.InvalidArgument, err, "parse client config %s", path)
	}
	return cc.MCPServers, nil
}

// fromClient derives the source file from the first argument with a
// supported extension, resolved against cwd.
func fromClient(name string, server clientServer, languages *parser.Registry) Target {
	t := Target{Name: name, Origin: OriginClient, Command: server.Command, Args: server.Args}
	for _, arg := range server.Args {
		p, ok := languages.ForFile(arg)
		if !ok {
			continue
		}
		source := arg
		if !filepath.IsAbs(source) && server.Cwd != "" {
			source = filepath.Join(server.Cwd, source)
		}
		abs, err := filepath.Abs(source)
		if err != nil {
			continue
		}
		t.SourceFile = abs
		t.Language = p.Language
		break
	}
	if t.SourceFile == "" {
		t.Unresolved = "no argument names a supported source file"
		if server.Cwd != "" {
			t.ProjectRoot = server.Cwd
		}
		return t
	}
	if root, err := build.FindProjectRoot(t.SourceFile); err == nil {
		t.ProjectRoot = root
	}
	return t
}

// Get returns the named target. A target without a source file is reported
// as NotFound.
func (r *Registry) Get(name string) (Target, error) {
	t, ok := r.targets[name]
	if !ok {
		return Target{}, failure.New(failure.NotFound, "target %q is not configured", name)
	}
	if t.SourceFile == "" {
		return t, failure.New(failure.NotFound, "target %q: %s", name, t.Unresolved)
	}
	return t, nil
}

// List returns every target sorted by name.
func (r *Registry) List() []Target {
	out := make([]Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
