package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/config"
)

func TestInitWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procflow.yaml")

	out, err := runCLI(t, "", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := config.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestInitKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: keep.db\n"), 0o644))

	out, err := runCLI(t, "", "--format", "json", "init", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeWriteFailed, decodeError(t, out).Code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "database: keep.db\n", string(data))

	_, err = runCLI(t, "", "init", "--config", path, "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultYAML(), string(data))
}
