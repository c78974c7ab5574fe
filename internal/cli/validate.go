package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/compiler"
	"github.com/SacredTexts/huly/internal/model"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool
}

// ValidationResult is the outcome of validate.
type ValidationResult struct {
	Valid     bool                           `json:"valid"`
	Processes int                            `json:"processes"`
	Warnings  []compiler.ReachabilityWarning `json:"warnings"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [definitions-dir]",
		Short: "Check definitions and install them into a class hierarchy",
		Long: `Compile the definitions, install them into a fresh class hierarchy and
report state graph warnings: states no execution can reach and states an
execution can never leave towards a terminal state.

With --strict any warning fails the command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, definitionsArg(rootOpts, args), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat warnings as failures")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	defs, errs := LoadDefinitions(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return outputLoadErrors(f, "Validation failed", errs)
	}

	h := model.NewHierarchy()
	if err := defs.Install(h, model.NewRegistry(h)); err != nil {
		return f.Fail(ExitCommandError, ErrCodeInstall, err.Error(), nil)
	}

	result := ValidationResult{
		Valid:     true,
		Processes: len(defs.Processes),
		Warnings:  defs.Warnings,
	}
	if opts.Strict && len(result.Warnings) > 0 {
		result.Valid = false
	}

	if err := f.Success(result, func(w io.Writer) {
		for _, warn := range result.Warnings {
			fmt.Fprintf(w, "⚠ %s [%s]: %s\n", warn.Process, strings.Join(warn.Path, ", "), warn.Message)
		}
		if result.Valid {
			fmt.Fprintf(w, "✓ %d process(es) valid\n", result.Processes)
		} else {
			fmt.Fprintf(w, "✗ %d warning(s) in strict mode\n", len(result.Warnings))
		}
	}); err != nil {
		return err
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d warning(s) in strict mode", len(result.Warnings)))
	}
	return nil
}
