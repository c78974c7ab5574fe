package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/SacredTexts/huly/internal/compiler"
	"github.com/SacredTexts/huly/internal/engine"
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
	"github.com/SacredTexts/huly/internal/rollback"
	"github.com/SacredTexts/huly/internal/testutil"
	"github.com/SacredTexts/huly/internal/workspace"
)

// Harness runs one scenario on its own workspace.
type Harness struct {
	ws      *workspace.Workspace
	factory *ir.TxFactory
	space   string
	logger  *slog.Logger

	// txs holds the id each step submitted, for rollback steps.
	txs     []string
	aliases map[ir.Ref]string
	counts  map[string]int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a deterministic
// clock and id sequences. An error is returned when the scenario cannot be
// executed at all (bad definitions, a rejected step); failed assertions are
// reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	defs, err := loadDefinitions(scenario)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewDeterministicClock()
	ws, err := workspace.Open(":memory:", defs,
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("engine")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close()

	h := &Harness{
		ws:      ws,
		factory: ir.NewTxFactory(ir.Actor(scenario.Actor), clock, testutil.NewSequenceGenerator("tx")),
		space:   scenario.Space,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		aliases: map[ir.Ref]string{},
		counts:  map[string]int{},
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		result.AddStep(ev)
	}

	actx := &AssertionContext{Workspace: ws, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func loadDefinitions(s *Scenario) (*compiler.Definitions, error) {
	var (
		defs *compiler.Definitions
		errs []error
	)
	if s.Source != "" {
		defs, errs = compiler.LoadSource(s.Name+".cue", s.Source, compiler.LoadModeCollectAll)
	} else {
		defs, errs = compiler.LoadDir(s.Definitions, compiler.LoadModeCollectAll)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load definitions: %w", errors.Join(errs...))
	}
	return defs, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: i + 1, Op: step.Op}

	tx, err := h.buildTx(ctx, step)
	if err != nil {
		return ev, err
	}
	if tx == nil {
		// rollback with nothing left to undo
		h.txs = append(h.txs, "")
		ev.Success = true
		h.logger.Info("nothing to undo", "step", i+1)
		return ev, nil
	}
	h.txs = append(h.txs, tx.Meta().ID)

	res, err := h.ws.Submit(ctx, tx)
	if err != nil {
		return ev, err
	}
	ev.Tx = res.ID
	ev.Success = res.Success
	if !res.Success {
		return ev, nil
	}

	logged, err := h.ws.Store.Bundle(ctx, res.ID)
	if err != nil {
		return ev, err
	}
	for _, l := range logged {
		ev.Mutations = append(ev.Mutations, h.describe(l.Tx))
	}
	h.logger.Info("step completed", "step", i+1, "op", step.Op, "tx", res.ID, "mutations", len(logged))
	return ev, nil
}

func (h *Harness) buildTx(ctx context.Context, step Step) (ir.Tx, error) {
	switch step.Op {
	case OpCreate:
		attrs, err := ir.ObjectFromAny(step.Attrs)
		if err != nil {
			return nil, fmt.Errorf("attrs: %w", err)
		}
		target := ir.Target{ObjectID: ir.Ref(step.ID), ObjectClass: ir.ClassRef(step.Class), ObjectSpace: h.space}
		return h.factory.CreateDoc(target, attrs), nil

	case OpUpdate:
		obj, err := ir.ObjectFromAny(step.Ops)
		if err != nil {
			return nil, fmt.Errorf("ops: %w", err)
		}
		ops, err := ir.ParseUpdate(obj)
		if err != nil {
			return nil, fmt.Errorf("ops: %w", err)
		}
		target, err := h.ws.Target(ctx, ir.Ref(step.ID))
		if err != nil {
			return nil, err
		}
		return h.factory.UpdateDoc(target, ops), nil

	case OpMixin:
		attrs, err := ir.ObjectFromAny(step.Attrs)
		if err != nil {
			return nil, fmt.Errorf("attrs: %w", err)
		}
		target, err := h.ws.Target(ctx, ir.Ref(step.ID))
		if err != nil {
			return nil, err
		}
		return h.factory.Mixin(target, ir.ClassRef(step.Mixin), attrs), nil

	case OpRemove:
		target, err := h.ws.Target(ctx, ir.Ref(step.ID))
		if err != nil {
			return nil, err
		}
		return h.factory.RemoveDoc(target), nil

	case OpComplete:
		return h.completeTx(ctx, step)

	case OpRollback:
		undo := h.txs[step.Undo-1]
		if undo == "" {
			return nil, fmt.Errorf("step %d submitted nothing to undo", step.Undo)
		}
		c := rollback.NewCompensator(h.factory, h.ws.Store)
		return h.ws.Compensation(ctx, c, undo)
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

// completeTx finishes the first open checkpoint of the card's execution of
// step.Process.
func (h *Harness) completeTx(ctx context.Context, step Step) (ir.Tx, error) {
	exec, ok, err := findExecution(ctx, h.ws, ir.Ref(step.Card), step.Process)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("card %s has no execution of %s", step.Card, step.Process)
	}
	todos, err := engine.CheckpointsOf(ctx, h.ws.Store, exec.ID)
	if err != nil {
		return nil, err
	}
	results, err := ir.ObjectFromAny(step.Results)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	for _, todo := range todos {
		if !todo.Done() {
			return engine.CompleteCheckpoint(h.factory, todo, results, step.Approved), nil
		}
	}
	return nil, fmt.Errorf("execution of %s on %s has no open checkpoint", step.Process, step.Card)
}

// findExecution returns the card's execution of process, preferring an
// active one when the process ran more than once.
func findExecution(ctx context.Context, ws *workspace.Workspace, card ir.Ref, process string) (model.Execution, bool, error) {
	execs, err := engine.ExecutionsOf(ctx, ws.Store, card)
	if err != nil {
		return model.Execution{}, false, err
	}
	var (
		found model.Execution
		ok    bool
	)
	for _, e := range execs {
		if e.Process != process {
			continue
		}
		if !ok || e.Status == model.StatusActive {
			found, ok = e, true
		}
	}
	return found, ok, nil
}

func (h *Harness) describe(m ir.Mutation) MutationEvent {
	target := m.Subject()
	ev := MutationEvent{
		Kind:   string(m.Kind()),
		Class:  string(target.ObjectClass),
		Object: h.alias(target),
	}
	if u, ok := m.(ir.TxUpdate); ok {
		ev.Fields = u.Operations.Fields()
	}
	return ev
}

// alias replaces content-derived ids with stable names.
func (h *Harness) alias(t ir.Target) string {
	var prefix string
	switch {
	case t.ObjectClass == model.ClassExecution:
		prefix = "execution"
	case h.ws.IsCheckpoint(t.ObjectClass):
		prefix = "checkpoint"
	default:
		return string(t.ObjectID)
	}
	if a, ok := h.aliases[t.ObjectID]; ok {
		return a
	}
	h.counts[prefix]++
	a := fmt.Sprintf("%s#%d", prefix, h.counts[prefix])
	h.aliases[t.ObjectID] = a
	return a
}
