package rollback

import (
	"errors"
	"fmt"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// ErrNotCompensable is returned by Capture for mutations that are not an
// undoable step.
var ErrNotCompensable = errors.New("mutation is not a compensable step")

// Capture derives the step kind and captured context of an already
// committed mutation, for undoing it after the fact. doc is the affected
// document: its snapshot for a removal, its stored version otherwise.
// isToDo reports whether a class is a checkpoint class, isCard whether it
// is a card class. Mutations of any other document, executions included,
// are not compensable.
func Capture(m ir.Mutation, doc ir.Doc, isToDo, isCard func(ir.ClassRef) bool) (StepKind, ir.Object, error) {
	target := m.Subject()
	checkpoint := isToDo(target.ObjectClass)
	if !checkpoint && !isCard(target.ObjectClass) {
		return "", nil, fmt.Errorf("%s %s on %s %s: %w", m.Kind(), m.Meta().ID, target.ObjectClass, target.ObjectID, ErrNotCompensable)
	}

	switch t := m.(type) {
	case ir.TxUpdate:
		if checkpoint {
			if ir.IsNull(t.Operations.Set[model.AttrDoneOn]) {
				return "", nil, fmt.Errorf("%s does not close %s: %w", t.ID, target.ObjectID, ErrNotCompensable)
			}
			return StepToDoClose, ir.Object{KeyToDo: doc.ToObject()}, nil
		}
		return StepFieldChanged, ir.Object{
			KeyCard:       doc.ToObject(),
			KeyOperations: t.Operations.ToObject(),
		}, nil
	case ir.TxMixin:
		if checkpoint {
			break
		}
		return StepFieldChanged, ir.Object{
			KeyCard:       doc.ToObject(),
			KeyOperations: t.Attributes.Clone(),
			KeyMixin:      ir.String(t.Mixin),
		}, nil
	case ir.TxRemove:
		if checkpoint {
			return StepToDoCancel, ir.Object{KeyToDo: doc.ToObject()}, nil
		}
	}
	return "", nil, fmt.Errorf("%s %s on %s: %w", m.Kind(), m.Meta().ID, target.ObjectID, ErrNotCompensable)
}
