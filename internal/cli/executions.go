package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/engine"
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// ExecutionView is an execution with its checkpoints.
type ExecutionView struct {
	ID          ir.Ref           `json:"id"`
	Process     string           `json:"process"`
	State       string           `json:"state"`
	Status      string           `json:"status"`
	Context     ir.Object        `json:"context"`
	Checkpoints []CheckpointView `json:"checkpoints"`
}

// CheckpointView is one checkpoint of an execution.
type CheckpointView struct {
	ID       ir.Ref      `json:"id"`
	Class    ir.ClassRef `json:"class"`
	Title    string      `json:"title,omitempty"`
	Done     bool        `json:"done"`
	Approved *bool       `json:"approved,omitempty"`
	Slots    []string    `json:"slots,omitempty"`
}

// NewExecutionsCommand creates the executions command.
func NewExecutionsCommand(rootOpts *RootOptions) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "executions <card-id>",
		Short: "Show the process executions of a card",
		Long: `Show every execution bound to a card with its current state, context and
checkpoints. Finished and cancelled executions are included unless
--active is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecutions(rootOpts, ir.Ref(args[0]), activeOnly, cmd)
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active executions")

	return cmd
}

func runExecutions(opts *RootOptions, card ir.Ref, activeOnly bool, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	ws, err := opts.openWorkspace()
	if err != nil {
		return f.Fail(ExitCommandError, errorCode(err), err.Error(), nil)
	}
	defer ws.Close()

	execs, err := engine.ExecutionsOf(ctx, ws.Store, card)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	views := []ExecutionView{}
	for _, e := range execs {
		if activeOnly && e.Status != model.StatusActive {
			continue
		}
		todos, err := engine.CheckpointsOf(ctx, ws.Store, e.ID)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		views = append(views, executionView(e, todos))
	}

	return f.Success(views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintf(w, "No executions on %s.\n", card)
			return
		}
		for _, v := range views {
			fmt.Fprintf(w, "%s  %s  state=%s  status=%s\n", v.ID, v.Process, v.State, v.Status)
			fmt.Fprintf(w, "  context: %s\n", ir.MustEncode(v.Context))
			for _, c := range v.Checkpoints {
				mark := "○"
				if c.Done {
					mark = "●"
				}
				fmt.Fprintf(w, "  %s %s %s", mark, c.ID, c.Class)
				if c.Title != "" {
					fmt.Fprintf(w, " %q", c.Title)
				}
				if c.Approved != nil {
					fmt.Fprintf(w, " approved=%t", *c.Approved)
				}
				fmt.Fprintln(w)
			}
		}
	})
}

func executionView(e model.Execution, todos []model.ToDo) ExecutionView {
	v := ExecutionView{
		ID:          e.ID,
		Process:     e.Process,
		State:       e.CurrentState,
		Status:      string(e.Status),
		Context:     e.Context,
		Checkpoints: make([]CheckpointView, 0, len(todos)),
	}
	for _, t := range todos {
		c := CheckpointView{ID: t.ID, Class: t.Class, Title: t.Title, Done: t.Done(), Approved: t.Approved}
		for _, r := range t.Results {
			c.Slots = append(c.Slots, r.Slot)
		}
		v.Checkpoints = append(v.Checkpoints, c)
	}
	return v
}
