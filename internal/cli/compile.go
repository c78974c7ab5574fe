package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/compiler"
	"github.com/SacredTexts/huly/internal/model"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// CompilationResult is the compiled content of a definitions directory.
type CompilationResult struct {
	Classes   []model.Class   `json:"classes"`
	Processes []model.Process `json:"processes"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [definitions-dir]",
		Short: "Compile CUE class and process definitions",
		Long: `Compile the CUE class and process definitions of a directory.

Without an argument the definitions directory of the config file is used.
With --output the compiled definitions are written as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, definitionsArg(rootOpts, args), cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled definitions to this file")

	return cmd
}

func definitionsArg(opts *RootOptions, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return opts.config().Definitions
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	defs, errs := LoadDefinitions(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return outputLoadErrors(f, "Compilation failed", errs)
	}
	f.VerboseLog("Compiled %d CUE file(s) in %s", defs.FileCount, dir)

	result := &CompilationResult{Classes: defs.Classes, Processes: defs.Processes}
	if opts.Output != "" {
		if err := writeDefinitions(result, opts.Output); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
	}

	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Compiled %d class(es), %d process(es)\n", len(result.Classes), len(result.Processes))
		if len(result.Classes) > 0 {
			fmt.Fprintln(w, "\nClasses:")
			for _, c := range result.Classes {
				fmt.Fprintf(w, "  %s (%s) extends %s\n", c.ID, c.Kind, c.Extends)
			}
		}
		if len(result.Processes) > 0 {
			fmt.Fprintln(w, "\nProcesses:")
			for _, p := range result.Processes {
				fmt.Fprintf(w, "  %s on %s: %d state(s), %d transition(s)\n",
					p.ID, p.MasterTag, len(p.States), len(p.Transitions))
			}
		}
		if opts.Output != "" {
			fmt.Fprintf(w, "\nWrote compiled definitions to %s\n", opts.Output)
		}
	})
}

// outputLoadErrors reports definition errors and returns a command error.
func outputLoadErrors(f *OutputFormatter, title string, errs []*LoadError) error {
	exit := NewExitError(ExitCommandError, fmt.Sprintf("%s with %d error(s)", title, len(errs)))
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
			Data:   errs,
		}); err != nil {
			return err
		}
		return exit
	}

	fmt.Fprintf(f.Writer, "✗ %s\n\n", title)
	for _, e := range errs {
		if e.Pos.IsValid() {
			fmt.Fprintf(f.Writer, "%s:%d:%d\n", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return exit
}

func writeDefinitions(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal definitions: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
