// Package config holds the settings of a migration run. Values come from an
// optional YAML file and are then overridden by command-line flags.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Field names a setting, as spelled in the YAML file.
type Field string

const (
	PatchedJar  Field = "patched_jar"
	Mappings    Field = "mappings"
	SrgMappings Field = "srg_mappings"
	CacheDir    Field = "cache_dir"
)

// Config is the full set of run settings.
type Config struct {
	PatchedJar  string `yaml:"patched_jar"`
	Mappings    string `yaml:"mappings"`
	SrgMappings string `yaml:"srg_mappings"`
	CacheDir    string `yaml:"cache_dir"`
	Refresh     bool   `yaml:"refresh"`
	// Workers bounds the scan pool.
	Workers int       `yaml:"workers"`
	Log     LogConfig `yaml:"log"`
}

// LogConfig configures the console logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Workers: runtime.NumCPU(),
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Relative paths inside the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Errorf("parse config %s: %w", path, err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.Errorf("parse config %s: multiple YAML documents are not supported", path)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) resolve(base string) {
	for _, p := range []*string{&c.PatchedJar, &c.Mappings, &c.SrgMappings, &c.CacheDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Level parses Log.Level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return lvl, nil
}

// Validate checks the settings and that every field in required is set.
// All problems are reported together.
func (c *Config) Validate(required ...Field) error {
	var issues []string
	for _, f := range required {
		if c.value(f) == "" {
			issues = append(issues, string(f)+" is required")
		}
	}
	if c.Workers < 1 {
		issues = append(issues, "workers must be at least 1")
	}
	if _, err := c.Level(); err != nil {
		issues = append(issues, err.Error())
	}
	if len(issues) > 0 {
		return errors.Errorf("invalid config:\n%s", strings.Join(issues, "\n"))
	}
	return nil
}

func (c *Config) value(f Field) string {
	switch f {
	case PatchedJar:
		return c.PatchedJar
	case Mappings:
		return c.Mappings
	case SrgMappings:
		return c.SrgMappings
	case CacheDir:
		return c.CacheDir
	}
	return ""
}
