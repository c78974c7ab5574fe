package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const warnedProcessCUE = `
process: p: {
	master_tag: "card:class:Card"
	states: [{id: "a"}, {id: "orphan"}, {id: "end", terminal: true}]
	transitions: [{from: "a", to: "end", trigger: "on_card_update"}]
}
`

func TestValidateClean(t *testing.T) {
	out, err := runCLI(t, "", "validate", definitionsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 process(es) valid")
	assert.NotContains(t, out, "⚠")
}

func TestValidateWarnings(t *testing.T) {
	dir := writeDefinitionsDir(t, map[string]string{"p.cue": warnedProcessCUE})

	out, err := runCLI(t, "", "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "⚠ p [orphan]")
	assert.Contains(t, out, "✓ 1 process(es) valid")

	out, err = runCLI(t, "", "validate", dir, "--strict", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	result := decodeData[ValidationResult](t, out)
	assert.False(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, []string{"orphan"}, result.Warnings[0].Path)
}

func TestValidateInstallFailure(t *testing.T) {
	dir := writeDefinitionsDir(t, map[string]string{"p.cue": `
process: p: {
	master_tag: "card:class:Missing"
	states: [{id: "a", terminal: true}]
}
`})
	out, err := runCLI(t, "", "validate", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInstall, decodeError(t, out).Code)
}

func TestValidateLoadFailure(t *testing.T) {
	dir := writeDefinitionsDir(t, map[string]string{"bad.cue": "class: {"})
	out, err := runCLI(t, "", "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
}
