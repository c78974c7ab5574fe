package engine

import (
	"fmt"
	"sync"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// Built-in action methods.
const (
	ActionSetContext      = "set_context"
	ActionCopyField       = "copy_field"
	ActionCreateToDo      = "create_todo"
	ActionRequestApproval = "request_approval"
)

// Action implements one action method. It reads sc.Input, writes slots of
// sc.Context and may stage transactions. Returning an error abandons the
// whole step.
type Action func(sc *StepContext) error

// StepContext is what an action sees while its transition executes.
type StepContext struct {
	Control    *Control
	Execution  model.Execution
	Transition model.Transition
	Action     model.Action
	// Index is the position of Action within the transition.
	Index int
	// Input is the read-only input context of the step.
	Input ir.Object
	// Context is the working execution context; writes survive only if
	// every action of the step succeeds.
	Context ir.Object
	// TriggerTx is the id of the mutation that fired the transition.
	TriggerTx string

	staged []ir.Tx
}

// Stage queues a transaction to be committed with the step.
func (sc *StepContext) Stage(tx ir.Tx) {
	sc.staged = append(sc.staged, tx)
}

// Resolve resolves "${path}" references against the input context
// overlaid with the working context.
func (sc *StepContext) Resolve(v ir.Value) ir.Value {
	return Resolve(v, sc.Input.Overlay(sc.Context))
}

// ActionRegistry maps action methods to implementations.
// It is safe for concurrent use.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewActionRegistry returns a registry holding the built-in actions.
func NewActionRegistry() *ActionRegistry {
	r := &ActionRegistry{actions: map[string]Action{}}
	r.actions[ActionSetContext] = setContext
	r.actions[ActionCopyField] = copyField
	r.actions[ActionCreateToDo] = checkpointAction(model.ClassToDo)
	r.actions[ActionRequestApproval] = checkpointAction(model.ClassApproveRequest)
	return r
}

// Register adds an action. Methods cannot be registered twice.
func (r *ActionRegistry) Register(method string, a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[method]; ok {
		return fmt.Errorf("action %q already registered", method)
	}
	r.actions[method] = a
	return nil
}

// Lookup returns the implementation of method.
func (r *ActionRegistry) Lookup(method string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[method]
	return a, ok
}

// setContext writes every param into the context slot of the same name.
func setContext(sc *StepContext) error {
	for _, slot := range sc.Action.Params.SortedKeys() {
		sc.Context[slot] = sc.Resolve(sc.Action.Params[slot])
	}
	return nil
}

// copyField copies the value at params.from in the input into slot params.to.
func copyField(sc *StepContext) error {
	from, _ := sc.Action.Params["from"].(ir.String)
	to, _ := sc.Action.Params["to"].(ir.String)
	if from == "" || to == "" {
		return fmt.Errorf("copy_field needs string params from and to")
	}
	v, ok := sc.Input.Lookup(string(from))
	if !ok {
		return fmt.Errorf("copy_field: %s is not in the input context", from)
	}
	sc.Context[string(to)] = ir.Clone(v)
	return nil
}

// checkpointAction stages the creation of a checkpoint waiting for user
// input. Its id is derived from the step so replays produce the same id.
func checkpointAction(class ir.ClassRef) Action {
	return func(sc *StepContext) error {
		title := sc.Resolve(sc.Action.Params["title"])
		if ir.IsNull(title) {
			title = ir.String(sc.Transition.ID)
		}
		attrs := ir.Object{
			model.AttrExecution: ir.String(sc.Execution.ID),
			model.AttrTitle:     title,
			model.AttrResults:   model.ResultBindingsToValue(sc.Action.Results),
			model.AttrDoneOn:    ir.Null{},
		}
		if class == model.ClassApproveRequest {
			attrs[model.AttrApproved] = ir.Null{}
		}
		target := ir.Target{
			ObjectID:    ir.CheckpointID(sc.Execution.ID, sc.Transition.ID, sc.Index, sc.TriggerTx),
			ObjectClass: class,
			ObjectSpace: sc.Execution.Space,
		}
		sc.Stage(sc.Control.Factory.CreateDoc(target, attrs))
		return nil
	}
}
