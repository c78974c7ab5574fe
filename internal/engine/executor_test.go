package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
	"github.com/SacredTexts/huly/internal/testutil"
)

func newTestExecutor(t *testing.T, actions *ActionRegistry) (*Executor, *Control) {
	t.Helper()
	reg := model.NewRegistry(nil)
	require.NoError(t, reg.Register(model.Process{
		ID:        "proc",
		MasterTag: classTask,
		States:    []model.State{{ID: "a"}, {ID: "b"}, {ID: "end", Terminal: true}},
	}))
	ctl := &Control{
		Actor:     testActor,
		Factory:   ir.NewTxFactory(testActor, NewClock(), testutil.NewSequenceGenerator("step")),
		TriggerTx: "tx-trigger",
	}
	return NewExecutor(actions, reg), ctl
}

func testExecution() model.Execution {
	return model.Execution{
		ID:           "exec-1",
		Space:        testSpace,
		Process:      "proc",
		Card:         "task-1",
		CurrentState: "a",
		Context:      ir.Object{"kept": ir.Int(1)},
		Status:       model.StatusActive,
	}
}

func TestExecute_ActionsRunInOrder(t *testing.T) {
	x, ctl := newTestExecutor(t, NewActionRegistry())
	tr := model.Transition{
		ID: "go", Process: "proc", From: "a", To: "b",
		Actions: []model.Action{
			{Method: ActionSetContext, Params: ir.Object{"amount": ir.String("${card.amount}")}},
			{Method: ActionCopyField, Params: ir.Object{"from": ir.String("card.owner"), "to": ir.String("owner")}},
			{Method: ActionSetContext, Params: ir.Object{"double": ir.String("${amount}")}},
		},
	}
	input := ir.Object{"card": ir.Object{"amount": ir.Int(10), "owner": ir.String("ana")}}

	exec := testExecution()
	res, err := x.Execute(ctl, exec, tr, input, "tx-trigger")
	require.NoError(t, err)

	assert.Equal(t, "b", res.State)
	assert.Equal(t, model.StatusActive, res.Status)
	assert.True(t, res.Changed)
	assert.Empty(t, res.Staged)
	assert.Equal(t, ir.Object{
		"kept":   ir.Int(1),
		"amount": ir.Int(10),
		"owner":  ir.String("ana"),
		"double": ir.Int(10),
	}, res.Context, "later actions see earlier writes")
	assert.Equal(t, ir.Object{"kept": ir.Int(1)}, exec.Context, "the stored context is not mutated")
}

func TestExecute_TerminalTargetCompletes(t *testing.T) {
	x, ctl := newTestExecutor(t, NewActionRegistry())
	tr := model.Transition{ID: "finish", Process: "proc", From: "a", To: "end"}

	res, err := x.Execute(ctl, testExecution(), tr, ir.Object{}, "tx-trigger")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, res.Status)
}

func TestExecute_SelfLoopWithoutEffectIsUnchanged(t *testing.T) {
	x, ctl := newTestExecutor(t, NewActionRegistry())
	tr := model.Transition{
		ID: "loop", Process: "proc", From: "a", To: "a",
		Actions: []model.Action{{Method: ActionSetContext, Params: ir.Object{"kept": ir.Int(1)}}},
	}

	res, err := x.Execute(ctl, testExecution(), tr, ir.Object{}, "tx-trigger")
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestExecute_CheckpointStaged(t *testing.T) {
	x, ctl := newTestExecutor(t, NewActionRegistry())
	tr := model.Transition{
		ID: "ask", Process: "proc", From: "a", To: "a",
		Actions: []model.Action{
			{Method: ActionSetContext, Params: ir.Object{"kept": ir.Int(1)}},
			{Method: ActionRequestApproval, Results: []model.ResultBinding{{Slot: "approved", Key: "ok"}}},
		},
	}

	res, err := x.Execute(ctl, testExecution(), tr, ir.Object{}, "tx-trigger")
	require.NoError(t, err)
	assert.True(t, res.Changed, "staging alone is a change")
	require.Len(t, res.Staged, 1)

	create, ok := res.Staged[0].(ir.TxCreate)
	require.True(t, ok)
	assert.Equal(t, ir.CheckpointID("exec-1", "ask", 1, "tx-trigger"), create.ObjectID)
	assert.Equal(t, model.ClassApproveRequest, create.ObjectClass)
	assert.Equal(t, testSpace, create.ObjectSpace)
	assert.Equal(t, testActor, create.ModifiedBy)
	assert.Equal(t, ir.String("exec-1"), create.Attributes[model.AttrExecution])
	assert.Equal(t, ir.String("ask"), create.Attributes[model.AttrTitle], "title defaults to the transition id")
	assert.Equal(t, ir.Null{}, create.Attributes[model.AttrApproved])
	assert.Equal(t, []model.ResultBinding{{Slot: "approved", Key: "ok"}},
		model.ResultBindingsFromValue(create.Attributes[model.AttrResults]))
}

func TestExecute_Faults(t *testing.T) {
	actions := NewActionRegistry()
	require.NoError(t, actions.Register("fail", func(*StepContext) error { return errors.New("boom") }))
	require.NoError(t, actions.Register("panic", func(*StepContext) error { panic("kaboom") }))
	require.NoError(t, actions.Register("stage_then_fail", func(sc *StepContext) error {
		sc.Stage(sc.Control.Factory.RemoveDoc(taskTarget("task-1")))
		return errors.New("late")
	}))

	tests := []struct {
		method string
		code   StepErrorCode
	}{
		{"fail", ErrCodeActionFailed},
		{"panic", ErrCodeActionPanic},
		{"stage_then_fail", ErrCodeActionFailed},
		{"missing", ErrCodeUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			x, ctl := newTestExecutor(t, actions)
			tr := model.Transition{
				ID: "go", Process: "proc", From: "a", To: "b",
				Actions: []model.Action{
					{Method: ActionSetContext, Params: ir.Object{"partial": ir.Bool(true)}},
					{Method: tt.method},
				},
			}

			res, err := x.Execute(ctl, testExecution(), tr, ir.Object{}, "tx-trigger")
			require.Error(t, err)
			assert.True(t, IsStepError(err))

			var se *StepError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, ir.Ref("exec-1"), se.Execution)
			assert.Equal(t, "go", se.Transition)
			assert.Equal(t, "1:"+tt.method, se.Action)
			assert.Empty(t, res.Staged)
			assert.Nil(t, res.Context)
		})
	}
}

func TestStepError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &StepError{Code: ErrCodeActionFailed, Message: "action returned an error", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ACTION_FAILED")
	assert.Contains(t, err.Error(), "root cause")
	assert.False(t, IsStepError(cause))
}

func TestActionRegistry(t *testing.T) {
	r := NewActionRegistry()
	for _, m := range []string{ActionSetContext, ActionCopyField, ActionCreateToDo, ActionRequestApproval} {
		_, ok := r.Lookup(m)
		assert.True(t, ok, m)
	}

	assert.Error(t, r.Register(ActionSetContext, setContext), "built-ins cannot be replaced")
	require.NoError(t, r.Register("custom", setContext))
	_, ok := r.Lookup("custom")
	assert.True(t, ok)
}

func TestCopyField_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params ir.Object
	}{
		{"missing params", ir.Object{}},
		{"missing source", ir.Object{"from": ir.String("card.nope"), "to": ir.String("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &StepContext{
				Action:  model.Action{Method: ActionCopyField, Params: tt.params},
				Input:   ir.Object{"card": ir.Object{}},
				Context: ir.Object{},
			}
			assert.Error(t, copyField(sc))
		})
	}
}
