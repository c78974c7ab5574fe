package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/rollback"
	"github.com/SacredTexts/huly/internal/workspace"
)

// RollbackOptions holds flags for the rollback command.
type RollbackOptions struct {
	*RootOptions
	DryRun bool
}

// RollbackResult reports a compensation. Compensation is empty when
// nothing needed undoing.
type RollbackResult struct {
	Undone       string          `json:"undone"`
	Compensation *ir.TxResult    `json:"compensation,omitempty"`
	Tx           json.RawMessage `json:"tx,omitempty"`
	DryRun       bool            `json:"dry_run,omitempty"`
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RollbackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rollback <tx-id>",
		Short: "Undo a committed step with a compensating transaction",
		Long: `Undo one committed mutation: reopen a closed checkpoint, restore a
cancelled one, or invert a field change.

The compensation goes through the process gate like any edit. Undoing a
step that is already undone does nothing. With --dry-run the compensation
is printed instead of submitted.

Exit codes:
  0 - compensation committed, or nothing to undo
  1 - the mutation cannot be undone or the compensation was rejected
  2 - command error (unknown transaction, unreadable database)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the compensation without submitting it")

	return cmd
}

func runRollback(opts *RollbackOptions, txID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	ws, err := opts.openWorkspace()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	defer ws.Close()

	factory := opts.factory()
	result := RollbackResult{Undone: txID, DryRun: opts.DryRun}

	var tx ir.Tx
	if opts.DryRun {
		tx, err = ws.Compensation(ctx, rollback.NewCompensator(factory, ws.Store), txID)
	} else {
		var res ir.TxResult
		tx, res, err = ws.Undo(ctx, factory, txID)
		if tx != nil {
			result.Compensation = &res
		}
	}
	if err != nil {
		return failRollback(f, err)
	}
	if result.Compensation != nil && !result.Compensation.Success {
		return f.Fail(ExitFailure, ErrCodeRejected, fmt.Sprintf("compensation of %s rejected", txID), nil)
	}
	if tx != nil {
		if result.Tx, err = ir.EncodeTx(tx); err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
		}
	}

	return f.Success(result, func(w io.Writer) {
		switch {
		case tx == nil:
			fmt.Fprintf(w, "Nothing to undo for %s.\n", txID)
		case opts.DryRun:
			fmt.Fprintf(w, "Compensation of %s:\n%s\n", txID, result.Tx)
		default:
			fmt.Fprintf(w, "✓ Undid %s with %s\n", txID, result.Compensation.ID)
		}
	})
}

func failRollback(f *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, workspace.ErrTxNotFound):
		return f.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	case errors.Is(err, rollback.ErrNotCompensable),
		errors.Is(err, rollback.ErrNoInverse),
		errors.Is(err, rollback.ErrMissingContext):
		return f.Fail(ExitFailure, ErrCodeUndo, err.Error(), nil)
	}
	return f.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
}
