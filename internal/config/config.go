// Package config reads procflow.yaml, the settings shared by every
// procflow command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "procflow.yaml"

const defaultConfigYAML = `# procflow configuration
version: 1

# SQLite file holding documents and the transaction log.
database: procflow.db

# Directory of CUE class and process definitions.
definitions: definitions

# Documents deriving from this class can start and drive processes.
base_class: card:class:Card

log:
  level: info   # debug | info | warn | error
  format: text  # text | json

serve:
  address: ":8080"
  metrics: true
`

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServeConfig configures procflow serve.
type ServeConfig struct {
	Address string `yaml:"address"`
	Metrics bool   `yaml:"metrics"`
}

// Config models procflow.yaml.
type Config struct {
	Version     int         `yaml:"version"`
	Database    string      `yaml:"database"`
	Definitions string      `yaml:"definitions"`
	BaseClass   string      `yaml:"base_class"`
	Log         LogConfig   `yaml:"log"`
	Serve       ServeConfig `yaml:"serve"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version:     1,
		Database:    "procflow.db",
		Definitions: "definitions",
		BaseClass:   string(model.ClassCard),
		Log:         LogConfig{Level: "info", Format: "text"},
		Serve:       ServeConfig{Address: ":8080", Metrics: true},
	}
}

// DefaultYAML returns a commented config file holding the defaults.
func DefaultYAML() string {
	return defaultConfigYAML
}

// Load reads path. A missing file yields the defaults unless mustExist is
// set. Relative database and definitions paths resolve against the
// directory of the file.
func Load(path string, mustExist bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Path = path
	cfg.normalize(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Version == 0 {
		c.Version = def.Version
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if strings.TrimSpace(c.BaseClass) == "" {
		c.BaseClass = def.BaseClass
	}
	if c.Serve.Address == "" {
		c.Serve.Address = def.Serve.Address
	}
}

func (c *Config) normalize(base string) {
	if c.Database != "" && c.Database != ":memory:" && !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(base, c.Database)
	}
	if c.Definitions != "" && !filepath.IsAbs(c.Definitions) {
		c.Definitions = filepath.Join(base, c.Definitions)
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}
	if strings.TrimSpace(c.Database) == "" {
		return errors.New("database is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// BaseClassRef returns BaseClass as a class reference.
func (c *Config) BaseClassRef() ir.ClassRef {
	return ir.ClassRef(c.BaseClass)
}
