// Package config loads the optional blockrender configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"

	"github.com/wenmine/tiny-engine/internal/module"
	"github.com/wenmine/tiny-engine/internal/style"
)

// DefaultFiles are the config file names looked up by FindDefault, in order.
var DefaultFiles = []string{"blockrender.yaml", "blockrender.yml", "blockrender.hcl"}

// Config represents the optional blockrender.yaml / blockrender.hcl file.
type Config struct {
	// Origin is the authority segment of minted module references.
	Origin string `yaml:"origin,omitempty"`

	// Database is the SQLite path of the module store and compile log.
	// ":memory:" keeps everything in process.
	Database string `yaml:"database,omitempty"`

	Log   LogConfig   `yaml:"log"`
	Style StyleConfig `yaml:"style"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" hcl:"level,optional"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" hcl:"format,optional"` // text, json
}

// StyleConfig contains style registry settings.
type StyleConfig struct {
	PagePrefix string `yaml:"page_prefix,omitempty" hcl:"page_prefix,optional"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Origin:   module.DefaultOrigin,
		Database: ":memory:",
		Log:      LogConfig{Level: "info", Format: "text"},
		Style:    StyleConfig{PagePrefix: style.DefaultPagePrefix},
	}
}

// hclFile mirrors Config for HCL decoding; blocks are optional.
type hclFile struct {
	Origin   string       `hcl:"origin,optional"`
	Database string       `hcl:"database,optional"`
	Log      *LogConfig   `hcl:"log,block"`
	Style    *StyleConfig `hcl:"style,block"`
}

// Load reads the config file at path. A missing file yields Default().
// Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file Config
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".hcl":
		var h hclFile
		if err := hclsimple.Decode(path, data, nil, &h); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		file.Origin = h.Origin
		file.Database = h.Database
		if h.Log != nil {
			file.Log = *h.Log
		}
		if h.Style != nil {
			file.Style = *h.Style
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	cfg := Default()
	cfg.merge(&file)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// FindDefault returns the first default config file present in dir, or "".
func FindDefault(dir string) string {
	for _, name := range DefaultFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) merge(o *Config) {
	if v := strings.TrimSpace(o.Origin); v != "" {
		c.Origin = v
	}
	if v := strings.TrimSpace(o.Database); v != "" {
		c.Database = v
	}
	if v := strings.TrimSpace(o.Log.Level); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(o.Log.Format); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(o.Style.PagePrefix); v != "" {
		c.Style.PagePrefix = v
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if strings.ContainsAny(c.Origin, "/ ") || c.Origin == "" {
		return fmt.Errorf("origin %q must be a non-empty host-like token", c.Origin)
	}
	return nil
}

// NewLogger creates a logger for c writing to w. It does not set the
// global logger.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
