// Package workspace assembles a running process engine: compiled
// definitions installed into a class hierarchy and process registry, a
// document store, and the process gate in front of it.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SacredTexts/huly/internal/compiler"
	"github.com/SacredTexts/huly/internal/engine"
	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
	"github.com/SacredTexts/huly/internal/store"
)

// ErrTxNotFound is returned when a transaction id is not in the log.
var ErrTxNotFound = errors.New("transaction not found")

// Workspace holds everything one engine instance needs.
type Workspace struct {
	Definitions *compiler.Definitions
	Hierarchy   *model.Hierarchy
	Registry    *model.Registry
	Store       *store.Store
	Gate        *engine.Gate
}

// Open installs defs and opens the store at dbPath (":memory:" for a
// throwaway database). defs may be nil for a workspace with only the
// built-in classes.
func Open(dbPath string, defs *compiler.Definitions, opts ...engine.GateOption) (*Workspace, error) {
	h := model.NewHierarchy()
	r := model.NewRegistry(h)
	if defs != nil {
		if err := defs.Install(h, r); err != nil {
			return nil, fmt.Errorf("install definitions: %w", err)
		}
	}

	st, err := store.Open(dbPath, store.WithClassResolver(h.Descendants))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	slog.Debug("workspace opened", "database", dbPath, "processes", len(r.Processes()))
	return &Workspace{
		Definitions: defs,
		Hierarchy:   h,
		Registry:    r,
		Store:       st,
		Gate:        engine.NewGate(st, r, h, opts...),
	}, nil
}

// Close closes the store.
func (w *Workspace) Close() error {
	return w.Store.Close()
}

// Submit passes tx through the gate.
func (w *Workspace) Submit(ctx context.Context, tx ir.Tx) (ir.TxResult, error) {
	return w.Gate.Tx(ctx, tx)
}

// IsCheckpoint reports whether class is ToDo or one of its subclasses.
func (w *Workspace) IsCheckpoint(class ir.ClassRef) bool {
	return w.Hierarchy.IsDerived(class, model.ClassToDo)
}

// IsCard reports whether class derives from the class processes attach to.
func (w *Workspace) IsCard(class ir.ClassRef) bool {
	return w.Hierarchy.IsDerived(class, w.Gate.BaseClass())
}

// Target returns the address of a stored document.
func (w *Workspace) Target(ctx context.Context, id ir.Ref) (ir.Target, error) {
	doc, ok, err := w.Store.Get(ctx, id)
	if err != nil {
		return ir.Target{}, err
	}
	if !ok {
		return ir.Target{}, fmt.Errorf("document %s not found", id)
	}
	return ir.Target{ObjectID: doc.ID, ObjectClass: doc.Class, ObjectSpace: doc.Space}, nil
}
