// Package config provides YAML-backed application configuration: remote
// index/repository locations, cache and bookkeeping directories, network
// timeouts, and platform overrides. Mirrors the teacher's pkg/config.
package config

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/instl-run/instl/pkg/xerrors"
)

// Default configuration values.
const (
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultMaxConcurrent = 5
	YAMLIndent           = 2
)

// RepositoryConfig describes one remote index location, matching spec §6's
// "Index input" contract collaborator.
type RepositoryConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Enabled  bool   `yaml:"enabled"`
	Priority uint   `yaml:"priority"`
	PublicKey string `yaml:"public_key,omitempty"` // signature verification key, spec §6
}

// Settings holds the general, non-repository application settings.
type Settings struct {
	CacheDir        string        `yaml:"cache_dir,omitempty"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	BookkeepingDir  string        `yaml:"bookkeeping_dir,omitempty"` // $(LOCAL_REPO_BOOKKEEPING_DIR), spec §6
	SyncDir         string        `yaml:"sync_dir,omitempty"`        // $(LOCAL_REPO_SYNC_DIR), spec §4.D
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent_syncs"`
	OS              string        `yaml:"os,omitempty"`
	Arch            string        `yaml:"arch,omitempty"`
	LogLevel        string        `yaml:"log_level"`
}

// Config is the top-level application configuration document.
type Config struct {
	Repositories []*RepositoryConfig `yaml:"repositories"`
	Settings     Settings            `yaml:"settings"`
}

// Default returns a configuration with sensible defaults, following the
// teacher's DefaultConfig.
func Default() *Config {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return &Config{
		Repositories: []*RepositoryConfig{},
		Settings: Settings{
			CacheTTL:       24 * time.Hour,
			HTTPTimeout:    DefaultHTTPTimeout,
			MaxConcurrent:  DefaultMaxConcurrent,
			CacheDir:       filepath.Join(base, "instl"),
			BookkeepingDir: filepath.Join(base, "instl", "bookkeeping"),
			SyncDir:        filepath.Join(base, "instl", "sync"),
			LogLevel:       "info",
			OS:             runtime.GOOS,
			Arch:           runtime.GOARCH,
		},
	}
}

// Load reads configuration from path, returning defaults if the file does
// not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, xerrors.Wrap(xerrors.ErrConfig, "config path cannot be empty")
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, xerrors.Wrapf(err, "open config file %s", path)
	}
	defer func() { _ = f.Close() }()
	return LoadFromReader(f)
}

// LoadFromReader parses configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Wrap(err, "read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrConfig, err.Error())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to path atomically (temp file + rename).
func (c *Config) Save(path string) error {
	if path == "" {
		return xerrors.Wrap(xerrors.ErrConfig, "config path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Wrap(err, "create config directory")
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return xerrors.Wrap(err, "create temp config file")
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(YAMLIndent)
	if err := enc.Encode(c); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return xerrors.Wrap(err, "encode config")
	}
	_ = enc.Close()
	_ = f.Close()
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return xerrors.Wrap(err, "rename config file")
	}
	return os.Chmod(path, 0o644)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c == nil {
		return xerrors.ErrConfig
	}
	names := make(map[string]bool)
	for _, repo := range c.Repositories {
		if repo.Name == "" {
			return xerrors.Wrap(xerrors.ErrConfig, "repository name cannot be empty")
		}
		if repo.URL == "" {
			return xerrors.Wrapf(xerrors.ErrConfig, "repository %s has empty URL", repo.Name)
		}
		if names[repo.Name] {
			return xerrors.Wrapf(xerrors.ErrConfig, "repository %s already defined", repo.Name)
		}
		names[repo.Name] = true
	}
	if c.Settings.HTTPTimeout < 0 {
		return xerrors.Wrap(xerrors.ErrConfig, "http_timeout cannot be negative")
	}
	if c.Settings.CacheTTL < 0 {
		return xerrors.Wrap(xerrors.ErrConfig, "cache_ttl cannot be negative")
	}
	if c.Settings.MaxConcurrent < 1 {
		return xerrors.Wrap(xerrors.ErrConfig, "max_concurrent_syncs must be >= 1")
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Settings.CacheTTL == 0 {
		c.Settings.CacheTTL = d.Settings.CacheTTL
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = d.Settings.HTTPTimeout
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = d.Settings.MaxConcurrent
	}
	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = d.Settings.CacheDir
	}
	if c.Settings.BookkeepingDir == "" {
		c.Settings.BookkeepingDir = d.Settings.BookkeepingDir
	}
	if c.Settings.SyncDir == "" {
		c.Settings.SyncDir = d.Settings.SyncDir
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = d.Settings.LogLevel
	}
	if c.Settings.OS == "" {
		c.Settings.OS = d.Settings.OS
	}
	if c.Settings.Arch == "" {
		c.Settings.Arch = d.Settings.Arch
	}
	for _, r := range c.Repositories {
		if r.Name != "" && r.URL != "" {
			r.Enabled = true
		}
	}
}

// AddRepository appends a repository, rejecting duplicate names.
func (c *Config) AddRepository(name, url string, enabled bool) error {
	for _, r := range c.Repositories {
		if r.Name == name {
			return xerrors.Wrapf(xerrors.ErrConfig, "repository %s already exists", name)
		}
	}
	c.Repositories = append(c.Repositories, &RepositoryConfig{Name: name, URL: url, Enabled: enabled})
	return nil
}

// GetRepository returns the named repository, or nil.
func (c *Config) GetRepository(name string) *RepositoryConfig {
	for _, r := range c.Repositories {
		if r.Name == name {
			return r
		}
	}
	return nil
}
