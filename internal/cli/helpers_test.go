package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const definitionsDir = "testdata/definitions"

// testEnv is a database in a temp dir plus the test definitions.
type testEnv struct {
	db   string
	defs string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{db: filepath.Join(t.TempDir(), "procflow.db"), defs: definitionsDir}
}

// run executes procflow with the env's database and definitions.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	args = append(args, "--db", e.db, "--definitions", e.defs)
	return runCLI(t, stdin, args...)
}

// runJSON executes procflow with --format json.
func (e *testEnv) runJSON(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return e.run(t, stdin, append(args, "--format", "json")...)
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData decodes the data of an "ok" JSON envelope.
func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	return resp.Data
}

// decodeError decodes the error of an "error" JSON envelope.
func decodeError(t *testing.T, out string) CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "error", resp.Status, out)
	require.NotNil(t, resp.Error, out)
	return *resp.Error
}

const (
	createCardTx = `{"kind":"create","object_id":"card-1","object_class":"card:class:Task",` +
		`"object_space":"space-1","attributes":{"status":"draft","owner":"ana","points":0}}`
	reviewCardTx = `{"kind":"update","object_id":"card-1","object_class":"card:class:Task",` +
		`"object_space":"space-1","operations":{"status":"review"}}`
	bumpPointsTx = `{"kind":"update","object_id":"card-1","object_class":"card:class:Task",` +
		`"object_space":"space-1","operations":{"$inc":{"points":3}}}`
)

// seedReview creates card-1 and moves it to review, leaving one open
// checkpoint. It returns that checkpoint.
func (e *testEnv) seedReview(t *testing.T) CheckpointView {
	t.Helper()
	_, err := e.run(t, createCardTx, "apply")
	require.NoError(t, err)
	_, err = e.run(t, reviewCardTx, "apply", "-")
	require.NoError(t, err)

	out, err := e.runJSON(t, "", "executions", "card-1")
	require.NoError(t, err)
	views := decodeData[[]ExecutionView](t, out)
	require.Len(t, views, 1)
	require.Len(t, views[0].Checkpoints, 1)
	return views[0].Checkpoints[0]
}
