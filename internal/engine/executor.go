package engine

import (
	"fmt"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// StepResult is the outcome of executing one transition.
type StepResult struct {
	// State is the execution's next state (the transition target).
	State string

	// Status is done when State is terminal, otherwise unchanged.
	Status model.ExecutionStatus

	// Context is the updated execution context.
	Context ir.Object

	// Changed is false when state, status and context equal the stored
	// values and nothing was staged, so the caller can skip the update.
	Changed bool

	// Staged holds transactions requested by actions (checkpoint creations).
	Staged []ir.Tx
}

// Executor runs a transition's actions and derives the next state.
type Executor struct {
	actions *ActionRegistry
	defs    Definitions
}

// NewExecutor creates an executor.
func NewExecutor(actions *ActionRegistry, defs Definitions) *Executor {
	return &Executor{actions: actions, defs: defs}
}

// Execute runs t for exec with the given input context.
//
// Actions run in order against a private copy of the stored context. If any
// action fails or panics the whole step is abandoned: a *StepError is
// returned and no context write or staged transaction survives.
func (x *Executor) Execute(ctl *Control, exec model.Execution, t model.Transition, input ir.Object, triggerTx string) (StepResult, error) {
	working := exec.Context.Clone()
	var staged []ir.Tx

	for i, action := range t.Actions {
		sc := &StepContext{
			Control:    ctl,
			Execution:  exec,
			Transition: t,
			Action:     action,
			Index:      i,
			Input:      input,
			Context:    working,
			TriggerTx:  triggerTx,
		}
		if err := x.runAction(sc); err != nil {
			return StepResult{}, err
		}
		staged = append(staged, sc.staged...)
	}

	status := exec.Status
	if state, ok := x.defs.State(exec.Process, t.To); ok && state.Terminal {
		status = model.StatusDone
	}

	res := StepResult{
		State:   t.To,
		Status:  status,
		Context: working,
		Staged:  staged,
	}
	res.Changed = res.State != exec.CurrentState ||
		res.Status != exec.Status ||
		!ir.Equal(res.Context, exec.Context) ||
		len(staged) > 0
	return res, nil
}

func (x *Executor) runAction(sc *StepContext) (err error) {
	label := fmt.Sprintf("%d:%s", sc.Index, sc.Action.Method)
	fault := func(code StepErrorCode, msg string, cause error) *StepError {
		return &StepError{
			Code:       code,
			Message:    msg,
			Execution:  sc.Execution.ID,
			Transition: sc.Transition.ID,
			Action:     label,
			Cause:      cause,
		}
	}

	impl, ok := x.actions.Lookup(sc.Action.Method)
	if !ok {
		return fault(ErrCodeUnknownAction, "no implementation registered", nil)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fault(ErrCodeActionPanic, fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	if err := impl(sc); err != nil {
		return fault(ErrCodeActionFailed, "action returned an error", err)
	}
	return nil
}
