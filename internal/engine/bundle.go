package engine

import (
	"context"
	"log/slog"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// bundle accumulates the companions of one incoming transaction.
type bundle struct {
	before []ir.Tx
	after  []ir.Tx

	// pending holds executions as they will be once the bundle commits, so
	// later mutations of the same tree see earlier ones' effects.
	pending map[ir.Ref]model.Execution
	order   []ir.Ref

	// created maps an execution started in this bundle to the index of its
	// creation in after.
	created map[ir.Ref]int

	// docs holds documents touched by earlier mutations of the original,
	// as those mutations leave them. A nil entry is a removal.
	docs map[ir.Ref]*ir.Doc
}

func newBundle() *bundle {
	return &bundle{
		pending: map[ir.Ref]model.Execution{},
		created: map[ir.Ref]int{},
		docs:    map[ir.Ref]*ir.Doc{},
	}
}

func (b *bundle) empty() bool {
	return len(b.before) == 0 && len(b.after) == 0
}

func (b *bundle) track(e model.Execution) {
	if _, ok := b.pending[e.ID]; !ok {
		b.order = append(b.order, e.ID)
	}
	b.pending[e.ID] = e
}

// start queues the creation of a new execution.
func (b *bundle) start(f *ir.TxFactory, e model.Execution) {
	b.created[e.ID] = len(b.after)
	b.after = append(b.after, f.CreateDoc(e.Target(), e.Attributes()))
	b.track(e)
}

// write queues next as the new state of an execution. An execution started
// in the same bundle is not stored until after the original, so its
// pending creation is rewritten instead of being updated.
func (b *bundle) write(f *ir.TxFactory, next model.Execution, ops ir.Update) {
	if i, ok := b.created[next.ID]; ok {
		create := b.after[i].(ir.TxCreate)
		create.Attributes = next.Attributes()
		b.after[i] = create
	} else {
		b.before = append(b.before, f.UpdateDoc(next.Target(), ops))
	}
	b.track(next)
}

// document returns the document with the given id as the mutations visited
// so far leave it, falling back to its stored version.
func (g *Gate) document(ctx context.Context, id ir.Ref, b *bundle) (ir.Doc, bool, error) {
	if d, ok := b.docs[id]; ok {
		if d == nil {
			return ir.Doc{}, false, nil
		}
		return d.Clone(), true, nil
	}
	return g.docs.FindOne(ctx, ir.DocQuery{Query: ir.Object{ir.KeyID: ir.String(id)}})
}

// fold records the effect of a visited mutation on cards and checkpoints.
func (g *Gate) fold(ctx context.Context, m ir.Mutation, b *bundle) error {
	target := m.Subject()
	if !g.hierarchy.IsDerived(target.ObjectClass, g.baseClass) && !g.hierarchy.IsDerived(target.ObjectClass, model.ClassToDo) {
		return nil
	}

	switch t := m.(type) {
	case ir.TxCreate:
		attrs := t.Attributes.Clone()
		if attrs == nil {
			attrs = ir.Object{}
		}
		b.docs[t.ObjectID] = &ir.Doc{
			ID:         t.ObjectID,
			Class:      t.ObjectClass,
			Space:      t.ObjectSpace,
			BaseID:     t.BaseID,
			Attributes: attrs,
			Mixins:     map[ir.ClassRef]ir.Object{},
			ModifiedOn: t.ModifiedOn,
			ModifiedBy: t.ModifiedBy,
		}
		return nil
	case ir.TxRemove:
		b.docs[t.ObjectID] = nil
		return nil
	}

	doc, ok, err := g.document(ctx, target.ObjectID, b)
	if err != nil || !ok {
		return err
	}
	if err := applyMutation(&doc, m); err != nil {
		slog.Debug("mutation not folded into preview", "tx", m.Meta().ID, "error", err)
		return nil
	}
	b.docs[target.ObjectID] = &doc
	return nil
}

// applyMutation applies an update or mixin to d in place.
func applyMutation(d *ir.Doc, m ir.Mutation) error {
	if d.Attributes == nil {
		d.Attributes = ir.Object{}
	}
	if d.Mixins == nil {
		d.Mixins = map[ir.ClassRef]ir.Object{}
	}
	switch t := m.(type) {
	case ir.TxUpdate:
		if err := t.Operations.Apply(d.Attributes); err != nil {
			return err
		}
	case ir.TxMixin:
		d.Mixins[t.Mixin] = d.Mixins[t.Mixin].Overlay(t.Attributes)
	default:
		return nil
	}
	meta := m.Meta()
	d.ModifiedOn, d.ModifiedBy = meta.ModifiedOn, meta.ModifiedBy
	return nil
}
