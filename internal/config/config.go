// Package config loads unitsmith's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/morozRed/unitsmith/internal/parser"
	"gopkg.in/yaml.v3"
)

const (
	AppName  = "unitsmith"
	FileName = "config.yaml"
)

// Config holds all unitsmith configuration.
type Config struct {
	// StoreDir holds the ledger and the build cache.
	StoreDir string `yaml:"store_dir"`
	// AllowedRoot confines every path unitsmith touches. Empty means no limit.
	AllowedRoot string `yaml:"allowed_root"`

	ValidatorTimeout string `yaml:"validator_timeout"`
	BuildTimeout     string `yaml:"build_timeout"`

	Backup BackupConfig `yaml:"backup"`

	Targets []TargetConfig `yaml:"targets,omitempty"`
	// ClientConfig points at an MCP client config with an mcpServers map.
	ClientConfig string `yaml:"client_config,omitempty"`

	// Validators replaces a language's syntax-check commands. The first
	// command found on PATH is used; "{file}" is the candidate file.
	Validators map[string][]ValidatorCommand `yaml:"validators,omitempty"`

	// Exclude adds gitignore-style rules to project scans.
	Exclude []string `yaml:"exclude,omitempty"`

	Log LogConfig `yaml:"log"`
}

// BackupConfig holds retention defaults for cleanup.
type BackupConfig struct {
	KeepRecent    int `yaml:"keep_recent"`
	OlderThanDays int `yaml:"older_than_days"`
}

// TargetConfig describes one managed server.
type TargetConfig struct {
	Name        string `yaml:"name"`
	ProjectRoot string `yaml:"project_root,omitempty"`
	SourceFile  string `yaml:"source_file"`
	Language    string `yaml:"language,omitempty"`
}

type ValidatorCommand struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		StoreDir:         DefaultStoreDir(),
		ValidatorTimeout: "10s",
		BuildTimeout:     "5m",
		Backup: BackupConfig{
			KeepRecent:    10,
			OlderThanDays: 30,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/unitsmith/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", FileName)
	}
	return filepath.Join(dir, AppName, FileName)
}

// DefaultStoreDir returns $XDG_CACHE_HOME/unitsmith.
func DefaultStoreDir() string {
	if base := os.Getenv("XDG_CACHE_HOME"); base != "" {
		return filepath.Join(base, AppName)
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "."+AppName)
	}
	return filepath.Join(dir, AppName)
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("ALLOWED_ROOT_DIR"); root != "" {
		c.AllowedRoot = root
	}
	if root := os.Getenv("UNITSMITH_ALLOWED_ROOT"); root != "" {
		c.AllowedRoot = root
	}
	if dir := os.Getenv("UNITSMITH_STORE_DIR"); dir != "" {
		c.StoreDir = dir
	}
	if path := os.Getenv("CLAUDE_CONFIG_PATH"); path != "" {
		c.ClientConfig = path
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StoreDir) == "" {
		return fmt.Errorf("store_dir must be set")
	}
	if _, err := time.ParseDuration(c.ValidatorTimeout); c.ValidatorTimeout != "" && err != nil {
		return fmt.Errorf("invalid validator_timeout %q: %w", c.ValidatorTimeout, err)
	}
	if _, err := time.ParseDuration(c.BuildTimeout); c.BuildTimeout != "" && err != nil {
		return fmt.Errorf("invalid build_timeout %q: %w", c.BuildTimeout, err)
	}
	if c.Backup.KeepRecent < 0 || c.Backup.OlderThanDays < 0 {
		return fmt.Errorf("backup retention values must not be negative")
	}
	seen := map[string]bool{}
	for _, target := range c.Targets {
		if target.Name == "" || target.SourceFile == "" {
			return fmt.Errorf("every target needs a name and a source_file")
		}
		if seen[target.Name] {
			return fmt.Errorf("duplicate target %q", target.Name)
		}
		seen[target.Name] = true
	}
	for language, commands := range c.Validators {
		for _, command := range commands {
			if command.Binary == "" {
				return fmt.Errorf("validator for %s has no binary", language)
			}
		}
	}
	return nil
}

// GetValidatorTimeout returns the syntax-check timeout as a duration.
func (c *Config) GetValidatorTimeout() time.Duration {
	d, err := time.ParseDuration(c.ValidatorTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetBuildTimeout returns the build timeout as a duration.
func (c *Config) GetBuildTimeout() time.Duration {
	d, err := time.ParseDuration(c.BuildTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ValidatorOverrides converts Validators to profile commands.
func (c *Config) ValidatorOverrides() map[string][]parser.Command {
	if len(c.Validators) == 0 {
		return nil
	}
	out := make(map[string][]parser.Command, len(c.Validators))
	for language, commands := range c.Validators {
		for _, command := range commands {
			out[language] = append(out[language], parser.Command{Binary: command.Binary, Args: command.Args})
		}
	}
	return out
}
