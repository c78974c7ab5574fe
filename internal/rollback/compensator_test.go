package rollback

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
	"github.com/SacredTexts/huly/internal/store"
	"github.com/SacredTexts/huly/internal/testutil"
)

const testActor = ir.Actor("user-1")

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	h := model.NewHierarchy()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClassResolver(h.Descendants))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestCompensator(docs DocReader) *Compensator {
	f := ir.NewTxFactory(testActor, testutil.NewDeterministicClockAt(100), testutil.NewSequenceGenerator("undo"))
	return NewCompensator(f, docs)
}

func closedToDo() ir.Doc {
	return ir.Doc{
		ID:    "todo-1",
		Class: model.ClassToDo,
		Space: "space-1",
		Attributes: ir.Object{
			model.AttrExecution: ir.String("exec-1"),
			model.AttrTitle:     ir.String("Review"),
			model.AttrDoneOn:    ir.Int(42),
		},
		Mixins:     map[ir.ClassRef]ir.Object{},
		ModifiedOn: 7,
		ModifiedBy: "user-9",
	}
}

func apply(t *testing.T, s *store.Store, tx ir.Tx) {
	t.Helper()
	res, err := s.Apply(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestCompensate_ToDoClose(t *testing.T) {
	s := createTestStore(t)
	todo := closedToDo()
	apply(t, s, ir.TxCreate{
		TxMeta:     ir.TxMeta{ID: "tx-todo", ModifiedBy: todo.ModifiedBy, ModifiedOn: todo.ModifiedOn},
		Target:     ir.Target{ObjectID: todo.ID, ObjectClass: todo.Class, ObjectSpace: todo.Space},
		Attributes: todo.Attributes,
	})
	c := newTestCompensator(s)
	captured := ir.Object{KeyToDo: todo.ToObject()}

	tx, err := c.Compensate(context.Background(), StepToDoClose, captured)
	require.NoError(t, err)
	update, ok := tx.(ir.TxUpdate)
	require.True(t, ok)
	assert.Equal(t, todo.ID, update.ObjectID)
	assert.Equal(t, model.ClassToDo, update.ObjectClass)
	assert.Equal(t, ir.Object{model.AttrDoneOn: ir.Null{}}, update.Operations.Set)
	assert.Equal(t, testActor, update.ModifiedBy)
	apply(t, s, tx)

	// The checkpoint is open again: compensating twice is a no-op.
	again, err := c.Compensate(context.Background(), StepToDoClose, captured)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestCompensate_ToDoCloseWithoutReader(t *testing.T) {
	c := newTestCompensator(nil)

	tx, err := c.Compensate(context.Background(), StepToDoClose, ir.Object{KeyToDo: closedToDo().ToObject()})
	require.NoError(t, err)
	assert.NotNil(t, tx)

	open := closedToDo()
	open.Attributes[model.AttrDoneOn] = ir.Null{}
	tx, err = c.Compensate(context.Background(), StepToDoClose, ir.Object{KeyToDo: open.ToObject()})
	require.NoError(t, err)
	assert.Nil(t, tx, "the captured checkpoint is already open")
}

func TestCompensate_ToDoCancel(t *testing.T) {
	s := createTestStore(t)
	c := newTestCompensator(s)
	todo := closedToDo()
	captured := ir.Object{KeyToDo: todo.ToObject()}

	tx, err := c.Compensate(context.Background(), StepToDoCancel, captured)
	require.NoError(t, err)
	create, ok := tx.(ir.TxCreate)
	require.True(t, ok)
	assert.Equal(t, todo.ID, create.ObjectID)
	assert.Equal(t, todo.Attributes, create.Attributes)
	assert.Equal(t, todo.ModifiedOn, create.ModifiedOn, "original timestamp is kept")
	assert.Equal(t, todo.ModifiedBy, create.ModifiedBy, "original author is kept")
	apply(t, s, tx)

	restored, ok, err := s.Get(context.Background(), todo.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, todo.Attributes, restored.Attributes)

	again, err := c.Compensate(context.Background(), StepToDoCancel, captured)
	require.NoError(t, err)
	assert.Nil(t, again, "an existing checkpoint is not re-created")
}

func TestCompensate_FieldChanged(t *testing.T) {
	c := newTestCompensator(nil)
	card := ir.Doc{ID: "card-1", Class: "card:class:Card", Space: "space-1", Attributes: ir.Object{}}

	tx, err := c.Compensate(context.Background(), StepFieldChanged, ir.Object{
		KeyCard:       card.ToObject(),
		KeyOperations: ir.Object{ir.OpInc: ir.Object{"count": ir.Int(3)}},
	})
	require.NoError(t, err)
	update, ok := tx.(ir.TxUpdate)
	require.True(t, ok)
	assert.Equal(t, card.ID, update.ObjectID)
	assert.Equal(t, map[string]int64{"count": -3}, update.Operations.Inc)
}

func TestCompensate_FieldChangedOnMixin(t *testing.T) {
	c := newTestCompensator(nil)
	card := ir.Doc{ID: "card-1", Class: "card:class:Card", Space: "space-1", Attributes: ir.Object{}}

	tx, err := c.Compensate(context.Background(), StepFieldChanged, ir.Object{
		KeyCard:       card.ToObject(),
		KeyOperations: ir.Object{"level": ir.Int(2)},
		KeyMixin:      ir.String("card:mixin:Urgent"),
	})
	require.NoError(t, err)
	mixin, ok := tx.(ir.TxMixin)
	require.True(t, ok)
	assert.Equal(t, ir.ClassRef("card:mixin:Urgent"), mixin.Mixin)
	assert.Equal(t, ir.Object{"level": ir.Null{}}, mixin.Attributes)
}

func TestCompensate_Faults(t *testing.T) {
	c := newTestCompensator(nil)
	card := ir.Doc{ID: "card-1", Class: "card:class:Card", Attributes: ir.Object{}}

	tests := []struct {
		name     string
		kind     StepKind
		captured ir.Object
		want     error
	}{
		{"close without todo", StepToDoClose, ir.Object{}, ErrMissingContext},
		{"cancel with malformed todo", StepToDoCancel, ir.Object{KeyToDo: ir.Object{"title": ir.String("x")}}, ErrMissingContext},
		{"field change without operations", StepFieldChanged, ir.Object{KeyCard: card.ToObject()}, ErrMissingContext},
		{"field change without card", StepFieldChanged, ir.Object{KeyOperations: ir.Object{}}, ErrMissingContext},
		{"unset", StepFieldChanged, ir.Object{
			KeyCard:       card.ToObject(),
			KeyOperations: ir.Object{ir.OpUnset: ir.Object{"title": ir.Bool(true)}},
		}, ErrNoInverse},
		{"unknown kind", StepKind("archive"), ir.Object{}, ErrUnknownStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := c.Compensate(context.Background(), tt.kind, tt.captured)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, tx, "nothing is emitted on a fault")
		})
	}
}

func TestCompensator_Register(t *testing.T) {
	c := newTestCompensator(nil)
	called := false
	require.NoError(t, c.Register("archive", func(_ context.Context, c *Compensator, _ ir.Object) (ir.Tx, error) {
		called = true
		return nil, errors.New("not supported")
	}))
	assert.Error(t, c.Register(StepToDoClose, compensateToDoClose))

	_, err := c.Compensate(context.Background(), "archive", ir.Object{})
	assert.Error(t, err)
	assert.True(t, called)
}
