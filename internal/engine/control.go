package engine

import (
	"context"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// DocStore is the persistence surface the engine consumes.
// store.Store implements it.
type DocStore interface {
	Find(ctx context.Context, q ir.DocQuery) ([]ir.Doc, error)
	FindOne(ctx context.Context, q ir.DocQuery) (ir.Doc, bool, error)
	Apply(ctx context.Context, tx ir.Tx) (ir.TxResult, error)
}

// Hierarchy is the class-hierarchy surface the engine consumes.
// model.Hierarchy implements it.
type Hierarchy interface {
	Ancestors(ref ir.ClassRef) []ir.ClassRef
	Descendants(ref ir.ClassRef) []ir.ClassRef
	IsDerived(ref, base ir.ClassRef) bool
	IsMixin(ref ir.ClassRef) bool
	Attribute(ref ir.ClassRef, attr string) (string, bool)
}

// Definitions is the workflow-definition surface the engine consumes.
// model.Registry implements it.
type Definitions interface {
	Process(id string) (model.Process, bool)
	State(process, state string) (model.State, bool)
	AutostartProcesses(tags []ir.ClassRef) []model.Process
	Transitions(process, from string, kinds ...model.TriggerKind) []model.Transition
}

// Control is the explicit execution context threaded through one incoming
// transaction: who acted, how to build transactions on their behalf, and
// where documents live.
type Control struct {
	// Actor is the account the incoming transaction was made by.
	Actor ir.Actor

	// Factory stamps every engine-produced transaction with Actor.
	Factory *ir.TxFactory

	// Docs reads documents. Writes go through the gate's bundle, never here.
	Docs DocStore

	// Hierarchy answers class queries.
	Hierarchy Hierarchy

	// TriggerTx is the id of the incoming transaction.
	TriggerTx string
}
