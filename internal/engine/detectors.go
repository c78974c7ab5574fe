package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// detectCreate starts autostart processes of the created document's class
// and its ancestors. Non-primary versions never start processes.
func (g *Gate) detectCreate(ctx context.Context, ctl *Control, m ir.Mutation, b *bundle) error {
	t, ok := m.(ir.TxCreate)
	if !ok || !g.hierarchy.IsDerived(t.ObjectClass, g.baseClass) {
		return nil
	}
	if t.BaseID != "" && t.BaseID != t.ObjectID {
		return nil
	}
	var tags []ir.ClassRef
	for _, anc := range g.hierarchy.Ancestors(t.ObjectClass) {
		if g.hierarchy.IsDerived(anc, g.baseClass) {
			tags = append(tags, anc)
		}
	}
	return g.startProcesses(ctx, ctl, t.Target, t.ID, g.defs.AutostartProcesses(tags), b)
}

// detectTag starts autostart processes keyed to a mixin attached with no
// attribute payload.
func (g *Gate) detectTag(ctx context.Context, ctl *Control, m ir.Mutation, b *bundle) error {
	t, ok := m.(ir.TxMixin)
	if !ok || len(t.Attributes) != 0 || !g.hierarchy.IsDerived(t.ObjectClass, g.baseClass) {
		return nil
	}
	return g.startProcesses(ctx, ctl, t.Target, t.ID, g.defs.AutostartProcesses([]ir.ClassRef{t.Mixin}), b)
}

func (g *Gate) startProcesses(ctx context.Context, ctl *Control, card ir.Target, triggerTx string, procs []model.Process, b *bundle) error {
	if len(procs) == 0 {
		return nil
	}
	running, err := g.activeExecutions(ctx, card.ObjectID, b)
	if err != nil {
		return err
	}
	for _, p := range procs {
		if slices.ContainsFunc(running, func(e model.Execution) bool { return e.Process == p.ID }) {
			slog.Debug("process already running", "process", p.ID, "card", card.ObjectID)
			continue
		}
		exec := model.Execution{
			ID:           ir.ExecutionID(card.ObjectID, p.ID, triggerTx),
			Space:        card.ObjectSpace,
			Process:      p.ID,
			Card:         card.ObjectID,
			CurrentState: p.InitialState,
			Context:      ir.Object{},
			Status:       model.StatusActive,
		}
		b.start(ctl.Factory, exec)
		slog.Info("starting execution", "process", p.ID, "card", card.ObjectID, "execution", exec.ID)
	}
	return nil
}

// detectFieldChange previews the document after an update or mixin and asks
// every active execution of the document whether a transition fires.
func (g *Gate) detectFieldChange(ctx context.Context, ctl *Control, m ir.Mutation, b *bundle) error {
	var (
		target ir.Target
		ops    ir.Object
	)
	switch t := m.(type) {
	case ir.TxUpdate:
		target, ops = t.Target, t.Operations.ToObject()
	case ir.TxMixin:
		target, ops = t.Target, t.Attributes.Clone()
	default:
		return nil
	}
	if !g.hierarchy.IsDerived(target.ObjectClass, g.baseClass) {
		return nil
	}

	execs, err := g.activeExecutions(ctx, target.ObjectID, b)
	if err != nil || len(execs) == 0 {
		return err
	}
	preview, ok, err := g.document(ctx, target.ObjectID, b)
	if err != nil || !ok {
		return err
	}
	if err := applyMutation(&preview, m); err != nil {
		return fmt.Errorf("preview %s: %w", target.ObjectID, err)
	}
	card := preview.ToObject()

	for _, exec := range execs {
		candidates := g.defs.Transitions(exec.Process, exec.CurrentState, model.TriggerOnCardUpdate, model.TriggerWhenFieldChanges)
		if len(candidates) == 0 {
			continue
		}
		input := exec.Context.Overlay(ir.Object{InputCard: card, InputOperations: ops})
		tr, ok := g.selector.Select(candidates, input)
		if !ok {
			continue
		}
		res, err := g.executor.Execute(ctl, exec, tr, input, m.Meta().ID)
		if err != nil {
			g.stepFault(exec, tr, err)
			continue
		}
		g.queueStep(ctl, exec, tr, res, b)
	}
	return nil
}

// detectCheckpoint handles the completion of a checkpoint: results are
// collected into the execution context and the matching transition, if
// any, fires. The context delta is queued whether or not one fires.
func (g *Gate) detectCheckpoint(ctx context.Context, ctl *Control, m ir.Mutation, b *bundle) error {
	t, ok := m.(ir.TxUpdate)
	if !ok || !g.hierarchy.IsDerived(t.ObjectClass, model.ClassToDo) {
		return nil
	}
	if ir.IsNull(t.Operations.Set[model.AttrDoneOn]) {
		return nil
	}
	kind := model.TriggerOnToDoClose
	if g.hierarchy.IsDerived(t.ObjectClass, model.ClassApproveRequest) {
		approved, ok := t.Operations.Set[model.AttrApproved].(ir.Bool)
		if !ok {
			return nil
		}
		kind = model.TriggerOnApproveRejected
		if approved {
			kind = model.TriggerOnApproveApproved
		}
	}

	doc, ok, err := g.document(ctx, t.ObjectID, b)
	if err != nil || !ok {
		return err
	}
	if stored, err := model.ToDoFromDoc(doc); err != nil || stored.Done() {
		// not a process checkpoint, or already consumed
		return nil
	}
	preview := doc.Clone()
	if err := t.Operations.Apply(preview.Attributes); err != nil {
		return fmt.Errorf("preview %s: %w", t.ObjectID, err)
	}
	todo, err := model.ToDoFromDoc(preview)
	if err != nil {
		return nil
	}

	exec, ok, err := g.execution(ctx, todo.Execution, b)
	if err != nil || !ok || exec.Status != model.StatusActive {
		return err
	}

	collected, changed := CollectResults(exec.Context, todo.Results, preview)
	withResults := exec
	withResults.Context = collected

	input := collected.Overlay(ir.Object{InputToDo: preview.ToObject()})
	if card, ok, err := g.document(ctx, exec.Card, b); err != nil {
		return err
	} else if ok {
		input[InputCard] = card.ToObject()
	}

	if tr, ok := g.selector.Select(g.defs.Transitions(exec.Process, exec.CurrentState, kind), input); ok {
		res, err := g.executor.Execute(ctl, withResults, tr, input, t.ID)
		switch {
		case err != nil:
			g.stepFault(exec, tr, err)
		case res.Changed:
			g.queueStep(ctl, exec, tr, res, b)
			return nil
		}
	}

	if changed {
		b.write(ctl.Factory, withResults, ir.Update{
			Set: ir.Object{model.AttrContext: collected.Clone()},
		})
		slog.Debug("checkpoint results collected", "execution", exec.ID, "todo", todo.ID)
	}
	return nil
}

// queueStep queues the execution update of a successful step before the
// original and its staged transactions after it.
func (g *Gate) queueStep(ctl *Control, exec model.Execution, tr model.Transition, res StepResult, b *bundle) {
	if !res.Changed {
		return
	}
	next := exec
	next.CurrentState, next.Status, next.Context = res.State, res.Status, res.Context

	b.write(ctl.Factory, next, ir.Update{Set: ir.Object{
		model.AttrCurrentState: ir.String(next.CurrentState),
		model.AttrContext:      next.Context.Clone(),
		model.AttrStatus:       ir.String(next.Status),
	}})
	b.after = append(b.after, res.Staged...)

	recordTransition(string(tr.Trigger))
	slog.Info("transition fired",
		"execution", exec.ID,
		"transition", tr.ID,
		"from", exec.CurrentState,
		"to", next.CurrentState,
		"status", next.Status)
}

func (g *Gate) stepFault(exec model.Execution, tr model.Transition, err error) {
	recordStepFault()
	slog.Error("step abandoned", "execution", exec.ID, "transition", tr.ID, "error", err)
}

// activeExecutions returns the active executions of card, including those
// started or changed earlier in the same bundle, ordered by id.
func (g *Gate) activeExecutions(ctx context.Context, card ir.Ref, b *bundle) ([]model.Execution, error) {
	stored, err := ExecutionsOf(ctx, g.docs, card)
	if err != nil {
		return nil, err
	}
	byID := map[ir.Ref]model.Execution{}
	for _, e := range stored {
		byID[e.ID] = e
	}
	for _, id := range b.order {
		if e := b.pending[id]; e.Card == card {
			byID[id] = e
		}
	}

	out := make([]model.Execution, 0, len(byID))
	for _, e := range byID {
		if e.Status == model.StatusActive {
			out = append(out, e)
		}
	}
	sortExecutions(out)
	return out, nil
}

// execution loads one execution, preferring its pending state.
func (g *Gate) execution(ctx context.Context, id ir.Ref, b *bundle) (model.Execution, bool, error) {
	if e, ok := b.pending[id]; ok {
		return e, true, nil
	}
	doc, ok, err := g.docs.FindOne(ctx, ir.DocQuery{Class: model.ClassExecution, Query: ir.Object{ir.KeyID: ir.String(id)}})
	if err != nil || !ok {
		return model.Execution{}, false, err
	}
	e, err := model.ExecutionFromDoc(doc)
	if err != nil {
		return model.Execution{}, false, err
	}
	return e, true, nil
}
