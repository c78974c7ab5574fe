package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// ExecutionsOf returns every execution bound to card, whatever its status,
// ordered by id.
func ExecutionsOf(ctx context.Context, docs DocStore, card ir.Ref) ([]model.Execution, error) {
	found, err := docs.Find(ctx, ir.DocQuery{
		Class: model.ClassExecution,
		Query: ir.Object{model.AttrCard: ir.String(card)},
	})
	if err != nil {
		return nil, fmt.Errorf("find executions of %s: %w", card, err)
	}
	out := make([]model.Execution, 0, len(found))
	for _, d := range found {
		e, err := model.ExecutionFromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sortExecutions(out)
	return out, nil
}

// CheckpointsOf returns the checkpoints requested by an execution,
// approvals included, ordered by id.
func CheckpointsOf(ctx context.Context, docs DocStore, execution ir.Ref) ([]model.ToDo, error) {
	found, err := docs.Find(ctx, ir.DocQuery{
		Class: model.ClassToDo,
		Query: ir.Object{model.AttrExecution: ir.String(execution)},
	})
	if err != nil {
		return nil, fmt.Errorf("find checkpoints of %s: %w", execution, err)
	}
	out := make([]model.ToDo, 0, len(found))
	for _, d := range found {
		t, err := model.ToDoFromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b model.ToDo) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}

// CompleteCheckpoint builds the update a user makes when finishing a
// checkpoint: done_on is stamped with the factory's clock and the result
// slots are written. approved is only meaningful for approval requests.
func CompleteCheckpoint(f *ir.TxFactory, todo model.ToDo, results ir.Object, approved *bool) ir.TxUpdate {
	set := results.Clone()
	if approved != nil {
		set[model.AttrApproved] = ir.Bool(*approved)
	}
	target := ir.Target{ObjectID: todo.ID, ObjectClass: todo.Class, ObjectSpace: todo.Space}
	tx := f.UpdateDoc(target, ir.Update{Set: set})
	tx.Operations.Set[model.AttrDoneOn] = ir.Int(tx.ModifiedOn)
	return tx
}

func sortExecutions(execs []model.Execution) {
	slices.SortFunc(execs, func(a, b model.Execution) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
}
