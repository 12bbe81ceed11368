package build

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/morozRed/unitsmith/internal/fileutil"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	CacheFile = "builds.mp"

	// MaxErrors is how many build failures are remembered per project.
	MaxErrors = 10

	cacheSchema uint16 = 1
)

// Failure is one remembered build error.
type Failure struct {
	System  string    `json:"system" msgpack:"system"`
	Command []string  `json:"command" msgpack:"command"`
	Error   string    `json:"error" msgpack:"error"`
	At      time.Time `json:"at" msgpack:"at"`
}

type entry struct {
	Profile Profile   `msgpack:"profile"`
	Errors  []Failure `msgpack:"errors"`
	// Failed holds systems whose latest build failed.
	Failed map[string]bool `msgpack:"failed"`
}

type cacheFile struct {
	Schema   uint16            `msgpack:"schema"`
	Projects map[string]*entry `msgpack:"projects"`
}

// Cache persists build profiles and failure history keyed by project root.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	path     string
	projects map[string]*entry
}

// LoadCache reads dir/builds.mp. A missing file or one written by another
// schema yields an empty cache.
func LoadCache(dir string) (*Cache, error) {
	c := &Cache{path: filepath.Join(dir, CacheFile), projects: make(map[string]*entry)}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	var file cacheFile
	if err := msgpack.Unmarshal(data, &file); err != nil || file.Schema != cacheSchema {
		return c, nil
	}
	for root, e := range file.Projects {
		if e == nil {
			continue
		}
		if e.Failed == nil {
			e.Failed = make(map[string]bool)
		}
		c.projects[root] = e
	}
	return c, nil
}

// Save writes the cache atomically.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Cache) saveLocked() error {
	data, err := msgpack.Marshal(&cacheFile{Schema: cacheSchema, Projects: c.projects})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return fileutil.WriteAtomic(c.path, data, 0o644)
}

func (c *Cache) entryLocked(root string) *entry {
	e, ok := c.projects[root]
	if !ok {
		e = &entry{Failed: make(map[string]bool)}
		c.projects[root] = e
	}
	return e
}

// Profile returns the cached profile for root.
func (c *Cache) Profile(root string) (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.projects[root]
	if !ok || e.Profile.System == "" {
		return Profile{}, false
	}
	return e.Profile, true
}

// Put stores a freshly detected profile, keeping the outcome history of the
// same build system.
func (c *Cache) Put(p Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(p.Root)
	if e.Profile.System == p.System {
		p.LastSuccess = e.Profile.LastSuccess
		p.LastFailure = e.Profile.LastFailure
		p.LastError = e.Profile.LastError
	}
	e.Profile = p
	return c.saveLocked()
}

// RecordSuccess marks the cached profile of root as built at time at.
func (c *Cache) RecordSuccess(root string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(root)
	e.Profile.LastSuccess = at
	delete(e.Failed, e.Profile.System)
	return c.saveLocked()
}

// RecordFailure remembers a failed build, keeping the newest MaxErrors.
func (c *Cache) RecordFailure(root string, f Failure) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(root)
	e.Profile.LastFailure = f.At
	e.Profile.LastError = f.Error
	e.Failed[f.System] = true
	e.Errors = append(e.Errors, f)
	if len(e.Errors) > MaxErrors {
		e.Errors = e.Errors[len(e.Errors)-MaxErrors:]
	}
	return c.saveLocked()
}

// Errors returns the remembered failures of root, oldest first.
func (c *Cache) Errors(root string) []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.projects[root]
	if !ok {
		return nil
	}
	return append([]Failure(nil), e.Errors...)
}

// FailedSystems returns the build systems whose latest build in root failed.
func (c *Cache) FailedSystems(root string) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool)
	if e, ok := c.projects[root]; ok {
		for system, failed := range e.Failed {
			if failed {
				out[system] = true
			}
		}
	}
	return out
}
