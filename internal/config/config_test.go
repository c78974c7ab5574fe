package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/model"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFile), false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, model.ClassCard, cfg.BaseClassRef())
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFile), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	data := strings.TrimSpace(`
version: 1
database: data/docs.db
definitions: /etc/procflow/defs
base_class: card:class:Task
log:
  level: DEBUG
  format: json
serve:
  address: 127.0.0.1:9000
  metrics: false
`)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(dir, "data", "docs.db"), cfg.Database)
	assert.Equal(t, "/etc/procflow/defs", cfg.Definitions)
	assert.Equal(t, "card:class:Task", cfg.BaseClass)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, ServeConfig{Address: "127.0.0.1:9000", Metrics: false}, cfg.Serve)
}

func TestParseKeepsDefaultsForOmittedKeys(t *testing.T) {
	cfg, err := Parse([]byte("database: other.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Database)
	assert.Equal(t, "definitions", cfg.Definitions)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Serve.Address)
	assert.True(t, cfg.Serve.Metrics)
}

func TestParseMemoryDatabaseNotResolved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("database: \":memory:\"\n"), 0o644))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Database)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{"bad yaml", "log: [", "yaml"},
		{"bad version", "version: 2", "unsupported config version"},
		{"bad level", "log: {level: loud}", "log.level"},
		{"bad format", "log: {format: xml}", "log.format"},
		{"empty database", "database: \"\"", "database is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestDefaultYAMLParses(t *testing.T) {
	cfg, err := Parse([]byte(DefaultYAML()))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
