package store

import (
	"path/filepath"
	"testing"

	"github.com/SacredTexts/huly/internal/ir"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func cardTarget(id string) ir.Target {
	return ir.Target{ObjectID: ir.Ref(id), ObjectClass: "card:class:Card", ObjectSpace: "space-1"}
}

// createCard builds a creation with minimal required fields.
func createCard(id string, attrs ir.Object) ir.TxCreate {
	return ir.TxCreate{
		TxMeta:     ir.TxMeta{ID: "tx-create-" + id, ModifiedBy: "user-1", ModifiedOn: 1},
		Target:     cardTarget(id),
		Attributes: attrs,
	}
}

func updateCard(txID, id string, ops ir.Update) ir.TxUpdate {
	return ir.TxUpdate{
		TxMeta:     ir.TxMeta{ID: txID, ModifiedBy: "user-2", ModifiedOn: 2},
		Target:     cardTarget(id),
		Operations: ops,
	}
}
