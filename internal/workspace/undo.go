package workspace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/rollback"
)

// Compensation returns the transaction undoing the committed mutation with
// the given id, or nil when there is nothing left to undo. The affected
// document is read from the removal snapshot or, for every other kind, from
// its stored version.
func (w *Workspace) Compensation(ctx context.Context, c *rollback.Compensator, txID string) (ir.Tx, error) {
	logged, ok, err := w.Store.Transaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", txID, ErrTxNotFound)
	}

	var doc ir.Doc
	if logged.Snapshot != nil {
		doc = *logged.Snapshot
	} else {
		id := logged.Tx.Subject().ObjectID
		d, found, err := w.Store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("undo %s: document %s no longer exists", txID, id)
		}
		doc = d
	}

	kind, captured, err := rollback.Capture(logged.Tx, doc, w.IsCheckpoint, w.IsCard)
	if err != nil {
		return nil, fmt.Errorf("undo %s: %w", txID, err)
	}
	return c.Compensate(ctx, kind, captured)
}

// Undo builds the compensation of txID on behalf of factory's actor and
// submits it through the gate. The returned transaction is nil when nothing
// needed undoing.
func (w *Workspace) Undo(ctx context.Context, factory *ir.TxFactory, txID string) (ir.Tx, ir.TxResult, error) {
	tx, err := w.Compensation(ctx, rollback.NewCompensator(factory, w.Store), txID)
	if err != nil || tx == nil {
		return nil, ir.TxResult{}, err
	}
	res, err := w.Submit(ctx, tx)
	if err != nil {
		return tx, res, err
	}
	slog.Info("transaction undone", "tx", txID, "compensation", res.ID, "success", res.Success)
	return tx, res, nil
}
