package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/engine"
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// CompleteOptions holds flags for the complete command.
type CompleteOptions struct {
	*RootOptions
	Results []string
	Approve bool
	Reject  bool
}

// CompleteResult reports a completed checkpoint.
type CompleteResult struct {
	ir.TxResult
	Checkpoint ir.Ref    `json:"checkpoint"`
	Results    ir.Object `json:"results"`
	Approved   *bool     `json:"approved,omitempty"`
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "complete <checkpoint-id>",
		Short: "Complete a checkpoint and let its execution continue",
		Long: `Complete an open checkpoint the way a user closing the todo would: the
result slots are written, done_on is stamped and the close fires the
on_todo_close transitions of its execution.

Result values are JSON when they parse as JSON and strings otherwise.
Approval requests also take --approve or --reject.

Example:
  procflow complete todo-1 --result verdict=ok --result score=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(opts, ir.Ref(args[0]), cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Results, "result", "r", nil, "result slot as key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Approve, "approve", false, "approve an approval request")
	cmd.Flags().BoolVar(&opts.Reject, "reject", false, "reject an approval request")
	cmd.MarkFlagsMutuallyExclusive("approve", "reject")

	return cmd
}

func runComplete(opts *CompleteOptions, id ir.Ref, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	results, err := parseResults(opts.Results)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadInput, err.Error(), nil)
	}
	var approved *bool
	if opts.Approve || opts.Reject {
		v := opts.Approve
		approved = &v
	}

	ws, err := opts.openWorkspace()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	defer ws.Close()

	doc, ok, err := ws.Store.Get(ctx, id)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if !ok || !ws.IsCheckpoint(doc.Class) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("checkpoint %s not found", id), nil)
	}
	todo, err := model.ToDoFromDoc(doc)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if todo.Done() {
		return f.Fail(ExitFailure, ErrCodeBadInput, fmt.Sprintf("checkpoint %s is already completed", id), nil)
	}
	if approved != nil && !ws.Hierarchy.IsDerived(todo.Class, model.ClassApproveRequest) {
		return f.Fail(ExitCommandError, ErrCodeBadInput, fmt.Sprintf("checkpoint %s is not an approval request", id), nil)
	}

	tx := engine.CompleteCheckpoint(opts.factory(), todo, results, approved)
	res, err := ws.Submit(ctx, tx)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
	}
	if !res.Success {
		return f.Fail(ExitFailure, ErrCodeRejected, fmt.Sprintf("completion of %s rejected", id), nil)
	}

	out := CompleteResult{TxResult: res, Checkpoint: id, Results: results, Approved: approved}
	return f.Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Completed %s in %s: %d mutation(s)\n", id, res.ID, res.Applied)
	})
}

// parseResults reads key=value pairs. Values that are valid JSON keep
// their type; anything else is a string.
func parseResults(pairs []string) (ir.Object, error) {
	out := ir.Object{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid result %q: want key=value", pair)
		}
		v, err := ir.DecodeValue([]byte(raw))
		if err != nil {
			v = ir.String(raw)
		}
		out[key] = v
	}
	return out, nil
}
