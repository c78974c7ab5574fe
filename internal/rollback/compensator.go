package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// StepKind names a kind of completed step that can be compensated.
type StepKind string

const (
	// StepToDoClose is the completion of a checkpoint.
	StepToDoClose StepKind = "todo_close"
	// StepToDoCancel is the removal of a checkpoint.
	StepToDoCancel StepKind = "todo_cancel"
	// StepFieldChanged is an update or mixin applied to a card.
	StepFieldChanged StepKind = "field_changed"
)

// Keys of a captured step context. They match the input context the
// process gate builds, so a step's input can be captured verbatim.
const (
	KeyToDo       = "todo"
	KeyCard       = "card"
	KeyOperations = "operations"
	// KeyMixin names the mixin a field_changed step wrote to. Absent for
	// plain updates.
	KeyMixin = "mixin"
)

// ErrMissingContext is returned when the captured context lacks what the
// step kind needs.
var ErrMissingContext = errors.New("captured context is incomplete")

// ErrUnknownStep is returned for a step kind with no compensation.
var ErrUnknownStep = errors.New("unknown step kind")

// DocReader looks up the current state of a document.
type DocReader interface {
	FindOne(ctx context.Context, q ir.DocQuery) (ir.Doc, bool, error)
}

// Compensation builds the compensating transaction of one step kind.
// A nil transaction with a nil error means there is nothing to undo.
type Compensation func(ctx context.Context, c *Compensator, captured ir.Object) (ir.Tx, error)

// Compensator builds compensating transactions on behalf of one actor.
// It is safe for concurrent use.
type Compensator struct {
	factory *ir.TxFactory
	docs    DocReader

	mu    sync.RWMutex
	kinds map[StepKind]Compensation
}

// NewCompensator returns a compensator for the built-in step kinds.
// docs may be nil; compensations then trust the captured context alone and
// are no longer idempotent.
func NewCompensator(factory *ir.TxFactory, docs DocReader) *Compensator {
	return &Compensator{
		factory: factory,
		docs:    docs,
		kinds: map[StepKind]Compensation{
			StepToDoClose:    compensateToDoClose,
			StepToDoCancel:   compensateToDoCancel,
			StepFieldChanged: compensateFieldChanged,
		},
	}
}

// Register adds a compensation for a new step kind.
func (c *Compensator) Register(kind StepKind, fn Compensation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.kinds[kind]; ok {
		return fmt.Errorf("compensation for %q already registered", kind)
	}
	c.kinds[kind] = fn
	return nil
}

// Factory returns the factory compensating transactions are built with.
func (c *Compensator) Factory() *ir.TxFactory {
	return c.factory
}

// Compensate returns the transaction undoing a step of the given kind, or
// nil when nothing needs undoing. Nothing is emitted on error.
func (c *Compensator) Compensate(ctx context.Context, kind StepKind, captured ir.Object) (ir.Tx, error) {
	c.mu.RLock()
	fn, ok := c.kinds[kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("compensate %s: %w", kind, ErrUnknownStep)
	}
	tx, err := fn(ctx, c, captured)
	if err != nil {
		return nil, fmt.Errorf("compensate %s: %w", kind, err)
	}
	if tx == nil {
		slog.Debug("nothing to compensate", "step", kind)
		return nil, nil
	}
	slog.Info("compensation built", "step", kind, "tx", tx.Meta().ID, "kind", tx.Kind())
	return tx, nil
}

// current returns the stored version of d, if a reader is configured.
func (c *Compensator) current(ctx context.Context, d ir.Doc) (ir.Doc, bool, error) {
	if c.docs == nil {
		return d, true, nil
	}
	doc, ok, err := c.docs.FindOne(ctx, ir.DocQuery{Class: d.Class, Query: ir.Object{ir.KeyID: ir.String(d.ID)}})
	if err != nil {
		return ir.Doc{}, false, fmt.Errorf("load %s: %w", d.ID, err)
	}
	return doc, ok, nil
}

func capturedDoc(captured ir.Object, key string) (ir.Doc, error) {
	obj, ok := captured[key].(ir.Object)
	if !ok {
		return ir.Doc{}, fmt.Errorf("%w: no %s", ErrMissingContext, key)
	}
	d, err := ir.DocFromObject(obj)
	if err != nil {
		return ir.Doc{}, fmt.Errorf("%w: %s: %v", ErrMissingContext, key, err)
	}
	return d, nil
}

func targetOf(d ir.Doc) ir.Target {
	return ir.Target{ObjectID: d.ID, ObjectClass: d.Class, ObjectSpace: d.Space}
}

// compensateToDoClose reopens a completed checkpoint.
func compensateToDoClose(ctx context.Context, c *Compensator, captured ir.Object) (ir.Tx, error) {
	todo, err := capturedDoc(captured, KeyToDo)
	if err != nil {
		return nil, err
	}
	cur, ok, err := c.current(ctx, todo)
	if err != nil {
		return nil, err
	}
	if !ok || ir.IsNull(cur.Get(model.AttrDoneOn)) {
		return nil, nil
	}
	return c.factory.UpdateDoc(targetOf(todo), ir.Update{Set: ir.Object{model.AttrDoneOn: ir.Null{}}}), nil
}

// compensateToDoCancel restores a removed checkpoint with its original
// author and timestamp.
func compensateToDoCancel(ctx context.Context, c *Compensator, captured ir.Object) (ir.Tx, error) {
	todo, err := capturedDoc(captured, KeyToDo)
	if err != nil {
		return nil, err
	}
	if c.docs != nil {
		if _, exists, err := c.current(ctx, todo); err != nil {
			return nil, err
		} else if exists {
			return nil, nil
		}
	}
	tx := c.factory.CreateDocAs(targetOf(todo), todo.Attributes.Clone(), todo.ModifiedOn, todo.ModifiedBy)
	tx.BaseID = todo.BaseID
	return tx, nil
}

// compensateFieldChanged applies the inverse of the recorded operations to
// the same card.
func compensateFieldChanged(_ context.Context, c *Compensator, captured ir.Object) (ir.Tx, error) {
	card, err := capturedDoc(captured, KeyCard)
	if err != nil {
		return nil, err
	}
	ops, ok := captured[KeyOperations].(ir.Object)
	if !ok {
		return nil, fmt.Errorf("%w: no %s", ErrMissingContext, KeyOperations)
	}

	if mixin, ok := captured[KeyMixin].(ir.String); ok && mixin != "" {
		// A mixin payload is plain assignments; undo them by nulling each one.
		reset := make(ir.Object, len(ops))
		for k := range ops {
			reset[k] = ir.Null{}
		}
		if len(reset) == 0 {
			return nil, nil
		}
		return c.factory.Mixin(targetOf(card), ir.ClassRef(mixin), reset), nil
	}

	inv, err := InvertUpdate(ops)
	if err != nil {
		return nil, err
	}
	if inv.IsEmpty() {
		return nil, nil
	}
	return c.factory.UpdateDoc(targetOf(card), inv), nil
}
