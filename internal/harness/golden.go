package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/SacredTexts/huly/internal/ir"
)

// Snapshot renders a scenario's trace in canonical JSON: sorted keys, no
// insignificant whitespace.
func Snapshot(name string, result *Result) ([]byte, error) {
	return ir.Encode(ir.Object{
		"scenario": ir.String(name),
		"trace":    result.Value(),
	})
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
