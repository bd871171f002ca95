// Package config loads server configuration from a YAML file, the
// environment, and built-in defaults, merging them by priority.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables for the repository engine server.
//
// MetricsEnabled and WatchEnabled are pointers so a source can leave
// them untouched: a plain bool would make "not set" indistinguishable
// from "set to false", and every source would stomp the default.
type Config struct {
	BindAddr       string `yaml:"bind_addr"`
	DataRoot       string `yaml:"data_root"`
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled *bool  `yaml:"metrics_enabled"`
	WatchEnabled   *bool  `yaml:"watch_enabled"`
	RateLimitRPS   int    `yaml:"rate_limit_rps"`
	RateLimitBurst int    `yaml:"rate_limit_burst"`
}

func boolPtr(b bool) *bool { return &b }

// MetricsOn reports whether metrics collection is enabled, treating an
// unset pointer as disabled.
func (c *Config) MetricsOn() bool { return c.MetricsEnabled != nil && *c.MetricsEnabled }

// WatchOn reports whether the filesystem watcher is enabled, treating
// an unset pointer as disabled.
func (c *Config) WatchOn() bool { return c.WatchEnabled != nil && *c.WatchEnabled }

func defaultConfig() *Config {
	return &Config{
		BindAddr:       "127.0.0.1:8765",
		DataRoot:       "./data",
		LogLevel:       "info",
		MetricsEnabled: boolPtr(true),
		WatchEnabled:   boolPtr(true),
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

// Source loads a partial or full configuration. Only non-zero fields
// returned by a Source override whatever has been merged so far;
// higher-priority sources are applied later.
type Source interface {
	Load() (*Config, error)
	Priority() int
	Name() string
}

// FileSource loads configuration from a YAML file.
type FileSource struct {
	Path string
}

func (s FileSource) Load() (*Config, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", s.Path, err)
	}
	return &cfg, nil
}

func (s FileSource) Priority() int { return 100 }
func (s FileSource) Name() string  { return "file:" + s.Path }

// EnvSource loads configuration from environment variables prefixed by
// Prefix (e.g. "MESHVCS_").
type EnvSource struct {
	Prefix string
}

func (s EnvSource) Load() (*Config, error) {
	cfg := &Config{}
	cfg.BindAddr = os.Getenv(s.Prefix + "BIND_ADDR")
	cfg.DataRoot = os.Getenv(s.Prefix + "DATA_ROOT")
	cfg.LogLevel = os.Getenv(s.Prefix + "LOG_LEVEL")
	if b, ok := s.lookupEnvBool("METRICS_ENABLED"); ok {
		cfg.MetricsEnabled = &b
	}
	if b, ok := s.lookupEnvBool("WATCH_ENABLED"); ok {
		cfg.WatchEnabled = &b
	}
	cfg.RateLimitRPS = s.getEnvInt("RATE_LIMIT_RPS", 0)
	cfg.RateLimitBurst = s.getEnvInt("RATE_LIMIT_BURST", 0)
	return cfg, nil
}

func (s EnvSource) Priority() int { return 200 }
func (s EnvSource) Name() string  { return "environment:" + s.Prefix }

func (s EnvSource) getEnvInt(key string, fallback int) int {
	v := os.Getenv(s.Prefix + key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s EnvSource) lookupEnvBool(key string) (bool, bool) {
	v, present := os.LookupEnv(s.Prefix + key)
	if !present {
		return false, false
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Loader merges configuration from an ordered set of Sources on top of
// the built-in defaults, highest Priority last.
type Loader struct {
	sources []Source
}

// NewLoader returns an empty Loader.
func NewLoader() *Loader { return &Loader{} }

// AddSource registers a configuration source.
func (l *Loader) AddSource(s Source) { l.sources = append(l.sources, s) }

// Load merges defaults with every registered source, lowest priority
// first, and returns the final configuration.
func (l *Loader) Load() (*Config, error) {
	sorted := make([]Source, len(l.sources))
	copy(sorted, l.sources)
	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if sorted[j].Priority() > sorted[j+1].Priority() {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	cfg := defaultConfig()
	for _, source := range sorted {
		overlay, err := source.Load()
		if err != nil {
			return nil, fmt.Errorf("load from source %s: %w", source.Name(), err)
		}
		merge(cfg, overlay)
	}
	return cfg, nil
}

// merge copies every non-zero field of overlay onto base.
func merge(base, overlay *Config) {
	if overlay.BindAddr != "" {
		base.BindAddr = overlay.BindAddr
	}
	if overlay.DataRoot != "" {
		base.DataRoot = overlay.DataRoot
	}
	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}
	if overlay.RateLimitRPS != 0 {
		base.RateLimitRPS = overlay.RateLimitRPS
	}
	if overlay.RateLimitBurst != 0 {
		base.RateLimitBurst = overlay.RateLimitBurst
	}
	if overlay.MetricsEnabled != nil {
		base.MetricsEnabled = overlay.MetricsEnabled
	}
	if overlay.WatchEnabled != nil {
		base.WatchEnabled = overlay.WatchEnabled
	}
}

// LoadDefault builds the standard Loader: an optional YAML file at
// path (if it exists), then MESHVCS_-prefixed environment variables,
// on top of defaults.
func LoadDefault(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			l.AddSource(FileSource{Path: path})
		}
	}
	l.AddSource(EnvSource{Prefix: "MESHVCS_"})
	return l.Load()
}
