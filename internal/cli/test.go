package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>...",
		Short: "Run process scenarios",
		Long: `Run YAML scenarios against a throwaway in-memory database and check their
assertions. Each scenario names its own definitions, so the config file is
not consulted.

Exit codes:
  0 - all scenarios passed
  1 - one or more scenarios failed
  2 - command error (invalid paths, bad filter)

Examples:
  procflow test ./scenarios
  procflow test ./scenarios --filter "review-*"
  procflow test ./scenarios --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")

	return cmd
}

func runTests(opts *TestOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var paths []string
	for _, arg := range args {
		found, err := harness.FindScenarios(arg)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios: %v", err), nil)
		}
		for _, p := range found {
			ok, err := matchFilter(opts.Filter, p)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
			}
			if ok {
				paths = append(paths, p)
			}
		}
	}

	for _, p := range paths {
		f.VerboseLog("Running %s", p)
	}
	result := harness.RunSuite(cmd.Context(), paths)

	if err := f.Success(result, func(w io.Writer) {
		if result.Total == 0 {
			fmt.Fprintln(w, "No scenarios found.")
			return
		}
		for _, fail := range result.Failures {
			name := fail.Scenario
			if name == "" {
				name = filepath.Base(fail.Path)
			}
			fmt.Fprintf(w, "✗ %s (%s)\n", name, fail.Path)
			for _, e := range fail.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
		mark := "✓"
		if result.Failed > 0 {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", mark, result.Summary())
	}); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, result.Summary())
	}
	return nil
}

func matchFilter(pattern, path string) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	ok, err := filepath.Match(pattern, filepath.Base(path))
	if err != nil {
		return false, fmt.Errorf("invalid filter %q: %w", pattern, err)
	}
	return ok, nil
}
