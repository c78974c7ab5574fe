package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
	"github.com/SacredTexts/huly/internal/store"
	"github.com/SacredTexts/huly/internal/testutil"
)

const (
	testSpace   = "space-1"
	testActor   = ir.Actor("user-1")
	classTask   = ir.ClassRef("card:class:Task")
	mixinUrgent = ir.ClassRef("card:mixin:Urgent")
)

// fixture wires a gate to a temp-dir store and a registry.
type fixture struct {
	t     *testing.T
	store *store.Store
	reg   *model.Registry
	h     *model.Hierarchy
	gate  *Gate
	txSeq int
}

func newFixture(t *testing.T, procs ...model.Process) *fixture {
	t.Helper()
	return newFixtureWith(t, procs, nil)
}

func newFixtureWith(t *testing.T, procs []model.Process, opts []GateOption) *fixture {
	t.Helper()
	h := model.NewHierarchy()
	require.NoError(t, h.AddClass(model.Class{ID: classTask, Extends: model.ClassCard, Kind: model.KindClass}))
	require.NoError(t, h.AddClass(model.Class{ID: mixinUrgent, Extends: model.ClassCard, Kind: model.KindMixin}))

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClassResolver(h.Descendants))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := model.NewRegistry(h)
	for _, p := range procs {
		require.NoError(t, reg.Register(p))
	}

	defaults := []GateOption{
		WithClock(NewClockAt(1000)),
		WithIDGenerator(testutil.NewSequenceGenerator("engine")),
	}
	return &fixture{
		t:     t,
		store: s,
		reg:   reg,
		h:     h,
		gate:  NewGate(s, reg, h, append(defaults, opts...)...),
	}
}

func (f *fixture) meta() ir.TxMeta {
	f.txSeq++
	return ir.TxMeta{ID: fmt.Sprintf("tx-%d", f.txSeq), ModifiedBy: testActor, ModifiedOn: int64(f.txSeq)}
}

func (f *fixture) submit(tx ir.Tx) ir.TxResult {
	f.t.Helper()
	res, err := f.gate.Tx(context.Background(), tx)
	require.NoError(f.t, err)
	require.True(f.t, res.Success, "transaction %s rejected", res.ID)
	return res
}

func taskTarget(id string) ir.Target {
	return ir.Target{ObjectID: ir.Ref(id), ObjectClass: classTask, ObjectSpace: testSpace}
}

func (f *fixture) createTask(id string, attrs ir.Object) ir.TxCreate {
	return ir.TxCreate{TxMeta: f.meta(), Target: taskTarget(id), Attributes: attrs}
}

func (f *fixture) updateTask(id string, ops ir.Update) ir.TxUpdate {
	return ir.TxUpdate{TxMeta: f.meta(), Target: taskTarget(id), Operations: ops}
}

func (f *fixture) closeCheckpoint(todo ir.Doc, set ir.Object) ir.TxUpdate {
	ops := ir.Object{model.AttrDoneOn: ir.Int(5000)}.Overlay(set)
	return ir.TxUpdate{
		TxMeta:     f.meta(),
		Target:     ir.Target{ObjectID: todo.ID, ObjectClass: todo.Class, ObjectSpace: todo.Space},
		Operations: ir.Update{Set: ops},
	}
}

// executions returns every execution of card, in id order.
func (f *fixture) executions(card string) []model.Execution {
	f.t.Helper()
	docs, err := f.store.Find(context.Background(), ir.DocQuery{
		Class: model.ClassExecution,
		Query: ir.Object{model.AttrCard: ir.String(card)},
	})
	require.NoError(f.t, err)
	out := make([]model.Execution, 0, len(docs))
	for _, d := range docs {
		e, err := model.ExecutionFromDoc(d)
		require.NoError(f.t, err)
		out = append(out, e)
	}
	return out
}

func (f *fixture) onlyExecution(card string) model.Execution {
	f.t.Helper()
	execs := f.executions(card)
	require.Len(f.t, execs, 1)
	return execs[0]
}

// checkpoints returns the checkpoints of exec, including approvals.
func (f *fixture) checkpoints(exec ir.Ref) []ir.Doc {
	f.t.Helper()
	docs, err := f.store.Find(context.Background(), ir.DocQuery{
		Class: model.ClassToDo,
		Query: ir.Object{model.AttrExecution: ir.String(exec)},
	})
	require.NoError(f.t, err)
	return docs
}

func (f *fixture) doc(id string) ir.Doc {
	f.t.Helper()
	d, ok, err := f.store.Get(context.Background(), ir.Ref(id))
	require.NoError(f.t, err)
	require.True(f.t, ok, "document %s not found", id)
	return d
}

// fieldProcess is a two-state process on Task that advances when x
// becomes 5.
func fieldProcess() model.Process {
	return model.Process{
		ID:        "proc-field",
		MasterTag: classTask,
		AutoStart: true,
		States:    []model.State{{ID: "S0"}, {ID: "S1"}},
		Transitions: []model.Transition{{
			ID:      "advance",
			From:    "S0",
			To:      "S1",
			Trigger: model.TriggerWhenFieldChanges,
			TriggerParams: ir.Object{
				"field": ir.String("x"),
				"when":  ir.Object{"card.x": ir.Int(5)},
			},
			Rank: 1,
		}},
	}
}

// reviewProcess requests a checkpoint, then waits for it.
//
//	open --(status becomes review)--> waiting --(todo closed, ok=true)--> closed
func reviewProcess() model.Process {
	return model.Process{
		ID:        "proc-review",
		MasterTag: classTask,
		AutoStart: true,
		States:    []model.State{{ID: "open"}, {ID: "waiting"}, {ID: "closed", Terminal: true}},
		Transitions: []model.Transition{
			{
				ID:            "ask",
				From:          "open",
				To:            "waiting",
				Trigger:       model.TriggerWhenFieldChanges,
				TriggerParams: ir.Object{"field": ir.String("status"), "when": ir.Object{"card.status": ir.String("review")}},
				Actions: []model.Action{
					{Method: ActionSetContext, Params: ir.Object{"owner": ir.String("${card.owner}")}},
					{
						Method:  ActionCreateToDo,
						Params:  ir.Object{"title": ir.String("Review")},
						Results: []model.ResultBinding{{Slot: "verdict", Key: "verdict"}, {Slot: "score", Key: "score"}},
					},
				},
			},
			{
				ID:            "finish",
				From:          "waiting",
				To:            "closed",
				Trigger:       model.TriggerOnToDoClose,
				TriggerParams: ir.Object{"verdict": ir.String("ok")},
			},
		},
	}
}

// approvalProcess routes on an approval decision.
func approvalProcess() model.Process {
	return model.Process{
		ID:        "proc-approval",
		MasterTag: classTask,
		AutoStart: true,
		States: []model.State{
			{ID: "draft"}, {ID: "pending"},
			{ID: "approved", Terminal: true}, {ID: "rejected", Terminal: true},
		},
		Transitions: []model.Transition{
			{
				ID:            "request",
				From:          "draft",
				To:            "pending",
				Trigger:       model.TriggerWhenFieldChanges,
				TriggerParams: ir.Object{"field": ir.String("submitted")},
				Actions: []model.Action{{
					Method:  ActionRequestApproval,
					Params:  ir.Object{"title": ir.String("Sign off")},
					Results: []model.ResultBinding{{Slot: "approved", Key: "decision"}},
				}},
			},
			{ID: "accept", From: "pending", To: "approved", Trigger: model.TriggerOnApproveApproved},
			{ID: "decline", From: "pending", To: "rejected", Trigger: model.TriggerOnApproveRejected},
		},
	}
}
