package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
)

func TestApply_CreateAndUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res, err := s.Apply(ctx, createCard("card-1", ir.Object{"count": ir.Int(1)}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Applied)

	res, err = s.Apply(ctx, updateCard("tx-u1", "card-1", ir.Update{
		Inc:  map[string]int64{"count": 3},
		Push: map[string]ir.Push{"tags": {Values: ir.Array{ir.String("a")}, Batch: true}},
	}))
	require.NoError(t, err)
	assert.True(t, res.Success)

	doc, ok, err := s.Get(ctx, "card-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.Object{"count": ir.Int(4), "tags": ir.Array{ir.String("a")}}, doc.Attributes)
	assert.Equal(t, ir.Actor("user-2"), doc.ModifiedBy)
	assert.Equal(t, int64(2), doc.ModifiedOn)
}

func TestApply_CreateExisting(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, createCard("card-1", nil))
	require.NoError(t, err)

	_, err = s.Apply(ctx, createCard("card-1", nil))
	assert.ErrorIs(t, err, ErrExists)
}

func TestApply_UpdateMissing(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Apply(context.Background(), updateCard("tx-u1", "nope", ir.Update{Set: ir.Object{"a": ir.Int(1)}}))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApply_MixinMerges(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Apply(ctx, createCard("card-1", nil))
	require.NoError(t, err)

	tag := ir.TxMixin{TxMeta: ir.TxMeta{ID: "tx-m1"}, Target: cardTarget("card-1"), Mixin: "card:mixin:Urgent", Attributes: ir.Object{}}
	_, err = s.Apply(ctx, tag)
	require.NoError(t, err)

	set := tag
	set.ID = "tx-m2"
	set.Attributes = ir.Object{"level": ir.Int(3)}
	_, err = s.Apply(ctx, set)
	require.NoError(t, err)

	doc, _, err := s.Get(ctx, "card-1")
	require.NoError(t, err)
	assert.True(t, doc.HasMixin("card:mixin:Urgent"))
	assert.Equal(t, ir.Object{"level": ir.Int(3)}, doc.Mixins["card:mixin:Urgent"])
}

func TestApply_RemoveKeepsSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Apply(ctx, createCard("card-1", ir.Object{"title": ir.String("t")}))
	require.NoError(t, err)

	_, err = s.Apply(ctx, ir.TxRemove{TxMeta: ir.TxMeta{ID: "tx-r1"}, Target: cardTarget("card-1")})
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "card-1")
	require.NoError(t, err)
	assert.False(t, ok)

	logged, ok, err := s.Transaction(ctx, "tx-r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, logged.Snapshot)
	assert.Equal(t, ir.Object{"title": ir.String("t")}, logged.Snapshot.Attributes)
	assert.Equal(t, ir.Actor("user-1"), logged.Snapshot.ModifiedBy)
}

func TestApply_GroupCommitsAll(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	group := ir.TxApplyIf{
		TxMeta: ir.TxMeta{ID: "bundle-1"},
		Scope:  "process",
		Txes: []ir.Tx{
			createCard("card-1", ir.Object{"x": ir.Int(1)}),
			updateCard("tx-u1", "card-1", ir.Update{Set: ir.Object{"x": ir.Int(5)}}),
			createCard("card-2", nil),
		},
	}
	res, err := s.Apply(ctx, group)
	require.NoError(t, err)
	assert.Equal(t, ir.TxResult{ID: "bundle-1", Success: true, Applied: 3}, res)

	logged, err := s.Bundle(ctx, "bundle-1")
	require.NoError(t, err)
	require.Len(t, logged, 3)
	assert.Equal(t, "tx-create-card-1", logged[0].Tx.Meta().ID)
	assert.Equal(t, "tx-u1", logged[1].Tx.Meta().ID)
	assert.Equal(t, ir.TxKindUpdate, logged[1].Tx.Kind())
}

// A bundle of an original plus N companions commits none of them when any
// single companion fails.
func TestApply_GroupAtomicity(t *testing.T) {
	const companions = 4
	for failing := 0; failing < companions; failing++ {
		s := createTestStore(t)
		ctx := context.Background()
		_, err := s.Apply(ctx, createCard("card-1", ir.Object{"x": ir.Int(0)}))
		require.NoError(t, err)

		txes := []ir.Tx{updateCard("tx-original", "card-1", ir.Update{Set: ir.Object{"x": ir.Int(5)}})}
		for i := 0; i < companions; i++ {
			id := "companion-" + string(rune('a'+i))
			if i == failing {
				// targets a document that does not exist
				txes = append(txes, updateCard("tx-"+id, "missing", ir.Update{Set: ir.Object{"y": ir.Int(1)}}))
				continue
			}
			txes = append(txes, createCard(id, nil))
		}

		_, err = s.Apply(ctx, ir.TxApplyIf{TxMeta: ir.TxMeta{ID: "bundle"}, Scope: "process", Txes: txes})
		require.Error(t, err, "failing companion %d", failing)

		doc, _, err := s.Get(ctx, "card-1")
		require.NoError(t, err)
		assert.Equal(t, ir.Int(0), doc.Attributes["x"], "original must not commit")

		all, err := s.Find(ctx, ir.DocQuery{Class: "card:class:Card"})
		require.NoError(t, err)
		assert.Len(t, all, 1, "no companion may commit")

		logged, err := s.Bundle(ctx, "bundle")
		require.NoError(t, err)
		assert.Empty(t, logged)
	}
}

func TestApply_PreconditionFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Apply(ctx, createCard("card-1", ir.Object{"x": ir.Int(0)}))
	require.NoError(t, err)

	group := ir.TxApplyIf{
		TxMeta: ir.TxMeta{ID: "bundle-1"},
		Match:  []ir.DocQuery{{Class: "card:class:Card", Query: ir.Object{"x": ir.Int(99)}}},
		Txes:   []ir.Tx{updateCard("tx-u1", "card-1", ir.Update{Set: ir.Object{"x": ir.Int(1)}})},
	}
	res, err := s.Apply(ctx, group)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Applied)

	doc, _, err := s.Get(ctx, "card-1")
	require.NoError(t, err)
	assert.Equal(t, ir.Int(0), doc.Attributes["x"])
}

func TestApply_NestedNotMatchSeesEarlierWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	group := ir.TxApplyIf{
		TxMeta: ir.TxMeta{ID: "outer"},
		Txes: []ir.Tx{
			createCard("card-1", nil),
			ir.TxApplyIf{
				TxMeta:   ir.TxMeta{ID: "inner"},
				NotMatch: []ir.DocQuery{{Class: "card:class:Card", Query: ir.Object{"_id": ir.String("card-1")}}},
				Txes:     []ir.Tx{createCard("card-2", nil)},
			},
		},
	}
	res, err := s.Apply(ctx, group)
	require.NoError(t, err)
	assert.False(t, res.Success, "inner group sees card-1 created earlier in the tree")

	all, err := s.Find(ctx, ir.DocQuery{Class: "card:class:Card"})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.Apply(ctx, createCard("card-1", nil))
	require.NoError(t, err)
	_, err = s.Apply(ctx, updateCard("tx-u1", "card-1", ir.Update{Set: ir.Object{"a": ir.Int(1)}}))
	require.NoError(t, err)

	hist, err := s.History(ctx, "card-1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Less(t, hist[0].Seq, hist[1].Seq)
	upd, ok := hist[1].Tx.(ir.TxUpdate)
	require.True(t, ok)
	assert.Equal(t, ir.Object{"a": ir.Int(1)}, upd.Operations.Set)
	assert.Equal(t, "tx-u1", hist[1].BundleID)

	_, ok, err = s.Transaction(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}
