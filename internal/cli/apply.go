package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/ir"
)

// ApplyResult reports a submitted transaction.
type ApplyResult struct {
	ir.TxResult
	Submitted string `json:"submitted"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [tx-file]",
		Short: "Submit a transaction through the process gate",
		Long: `Submit a JSON transaction through the process gate and commit it together
with every process step it triggers.

The transaction is read from the file argument, or from stdin when the
argument is missing or "-". Missing ids, authors and timestamps are filled
in.

Example:
  echo '{"kind":"update","object_id":"card-1","object_class":"card:class:Task",
    "object_space":"space-1","operations":{"status":"review"}}' | procflow apply`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runApply(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	data, err := readInput(cmd, args)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	tx, err := ir.DecodeTx(data)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}
	tx = opts.factory().Stamp(tx)

	ws, err := opts.openWorkspace()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	defer ws.Close()

	res, err := ws.Submit(cmd.Context(), tx)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
	}
	if !res.Success {
		return f.Fail(ExitFailure, ErrCodeRejected, fmt.Sprintf("transaction %s rejected: precondition failed", res.ID), nil)
	}

	result := ApplyResult{TxResult: res, Submitted: tx.Meta().ID}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Committed %s: %d mutation(s)\n", res.ID, res.Applied)
	})
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
