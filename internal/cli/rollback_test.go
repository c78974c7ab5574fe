package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
)

// lastEntry returns the newest logged mutation of a document.
func (e *testEnv) lastEntry(t *testing.T, id string) LogEntry {
	t.Helper()
	out, err := e.runJSON(t, "", "history", id)
	require.NoError(t, err)
	entries := decodeData[[]LogEntry](t, out)
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

func TestRollbackReopensCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	checkpoint := env.seedReview(t)
	_, err := env.run(t, "", "complete", string(checkpoint.ID), "-r", "verdict=ok")
	require.NoError(t, err)
	closeTx := env.lastEntry(t, string(checkpoint.ID))

	out, err := env.runJSON(t, "", "rollback", closeTx.ID, "--dry-run")
	require.NoError(t, err)
	dry := decodeData[RollbackResult](t, out)
	assert.True(t, dry.DryRun)
	assert.Nil(t, dry.Compensation)
	tx, err := ir.DecodeTx(dry.Tx)
	require.NoError(t, err)
	update, ok := tx.(ir.TxUpdate)
	require.True(t, ok)
	assert.True(t, ir.IsNull(update.Operations.Set["done_on"]))
	assert.Equal(t, ir.Actor("procflow"), update.ModifiedBy)

	out, err = env.run(t, "", "rollback", closeTx.ID, "--actor", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Undid "+closeTx.ID)

	reopened := env.lastEntry(t, string(checkpoint.ID))
	assert.Equal(t, ir.Actor("ops"), reopened.ModifiedBy)

	out, err = env.runJSON(t, "", "executions", "card-1")
	require.NoError(t, err)
	views := decodeData[[]ExecutionView](t, out)
	assert.False(t, views[0].Checkpoints[0].Done)
	assert.Equal(t, "closed", views[0].State, "the execution keeps its state")

	out, err = env.run(t, "", "rollback", closeTx.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to undo for "+closeTx.ID)
}

func TestRollbackInvertsFieldChange(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, createCardTx, "apply")
	require.NoError(t, err)
	_, err = env.run(t, bumpPointsTx, "apply")
	require.NoError(t, err)
	bump := env.lastEntry(t, "card-1")

	out, err := env.runJSON(t, "", "rollback", bump.ID)
	require.NoError(t, err)
	res := decodeData[RollbackResult](t, out)
	require.NotNil(t, res.Compensation)
	assert.True(t, res.Compensation.Success)

	undo := env.lastEntry(t, "card-1")
	tx, err := ir.DecodeTx(undo.Tx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"points": -3}, tx.(ir.TxUpdate).Operations.Inc)
}

func TestRollbackErrors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, createCardTx, "apply")
	require.NoError(t, err)
	create := env.lastEntry(t, "card-1")

	out, err := env.runJSON(t, "", "rollback", "no-such-tx")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)

	out, err = env.runJSON(t, "", "rollback", create.ID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeUndo, decodeError(t, out).Code)

	unset := `{"kind":"update","object_id":"card-1","object_class":"card:class:Task",` +
		`"object_space":"space-1","operations":{"$unset":{"owner":""}}}`
	_, err = env.run(t, unset, "apply")
	require.NoError(t, err)
	out, err = env.runJSON(t, "", "rollback", env.lastEntry(t, "card-1").ID)
	require.Error(t, err)
	assert.Equal(t, ErrCodeUndo, decodeError(t, out).Code)
}
