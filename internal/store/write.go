package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SacredTexts/huly/internal/ir"
)

// ErrNotFound is returned when a mutation targets a missing document.
var ErrNotFound = errors.New("document not found")

// ErrExists is returned when a creation targets an existing id.
var ErrExists = errors.New("document already exists")

// errPrecondition unwinds Apply when a group's preconditions fail.
var errPrecondition = errors.New("precondition failed")

// Apply commits a transaction tree atomically.
//
// A failed TxApplyIf precondition anywhere in the tree rolls everything
// back and returns Success=false with a nil error. Any other failure (a
// missing target, an operator type error, a SQLite error) rolls everything
// back and is returned.
func (s *Store) Apply(ctx context.Context, tx ir.Tx) (ir.TxResult, error) {
	result := ir.TxResult{ID: tx.Meta().ID}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("apply %s: begin tx: %w", result.ID, err)
	}
	defer sqlTx.Rollback() // No-op if committed

	w := &writer{store: s, tx: sqlTx, bundle: result.ID}
	if err := w.apply(ctx, tx); err != nil {
		if errors.Is(err, errPrecondition) {
			return result, nil
		}
		return result, fmt.Errorf("apply %s: %w", result.ID, err)
	}

	if err := sqlTx.Commit(); err != nil {
		return result, fmt.Errorf("apply %s: commit: %w", result.ID, err)
	}
	result.Success = true
	result.Applied = w.applied
	return result, nil
}

// writer applies one tree inside one SQLite transaction.
type writer struct {
	store   *Store
	tx      *sql.Tx
	bundle  string
	applied int
}

func (w *writer) apply(ctx context.Context, tx ir.Tx) error {
	switch t := tx.(type) {
	case ir.TxApplyIf:
		if err := w.checkPreconditions(ctx, t); err != nil {
			return err
		}
		for _, child := range t.Txes {
			if err := w.apply(ctx, child); err != nil {
				return err
			}
		}
		return nil
	case ir.TxCreate:
		return w.create(ctx, t)
	case ir.TxUpdate:
		return w.update(ctx, t)
	case ir.TxMixin:
		return w.mixin(ctx, t)
	case ir.TxRemove:
		return w.remove(ctx, t)
	default:
		return fmt.Errorf("unsupported transaction %T", tx)
	}
}

func (w *writer) checkPreconditions(ctx context.Context, t ir.TxApplyIf) error {
	for _, q := range t.Match {
		docs, err := w.store.find(ctx, w.tx, q, 1)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("%w: group %s (scope %s) expected a %s", errPrecondition, t.ID, t.Scope, q.Class)
		}
	}
	for _, q := range t.NotMatch {
		docs, err := w.store.find(ctx, w.tx, q, 1)
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return fmt.Errorf("%w: group %s (scope %s) found %s %s", errPrecondition, t.ID, t.Scope, q.Class, docs[0].ID)
		}
	}
	return nil
}

func (w *writer) create(ctx context.Context, t ir.TxCreate) error {
	if _, ok, err := getDoc(ctx, w.tx, t.ObjectID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("create %s: %w", t.ObjectID, ErrExists)
	}
	doc := ir.Doc{
		ID:         t.ObjectID,
		Class:      t.ObjectClass,
		Space:      t.ObjectSpace,
		BaseID:     t.BaseID,
		Attributes: t.Attributes.Clone(),
		Mixins:     map[ir.ClassRef]ir.Object{},
		ModifiedOn: t.ModifiedOn,
		ModifiedBy: t.ModifiedBy,
	}
	if err := w.insertDoc(ctx, doc); err != nil {
		return fmt.Errorf("create %s: %w", t.ObjectID, err)
	}
	return w.log(ctx, t, nil)
}

func (w *writer) update(ctx context.Context, t ir.TxUpdate) error {
	doc, err := w.load(ctx, t.Target)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if err := t.Operations.Apply(doc.Attributes); err != nil {
		return fmt.Errorf("update %s: %w", t.ObjectID, err)
	}
	doc.ModifiedOn, doc.ModifiedBy = t.ModifiedOn, t.ModifiedBy
	if err := w.updateDoc(ctx, doc); err != nil {
		return fmt.Errorf("update %s: %w", t.ObjectID, err)
	}
	return w.log(ctx, t, nil)
}

func (w *writer) mixin(ctx context.Context, t ir.TxMixin) error {
	doc, err := w.load(ctx, t.Target)
	if err != nil {
		return fmt.Errorf("mixin: %w", err)
	}
	doc.Mixins[t.Mixin] = doc.Mixins[t.Mixin].Overlay(t.Attributes)
	doc.ModifiedOn, doc.ModifiedBy = t.ModifiedOn, t.ModifiedBy
	if err := w.updateDoc(ctx, doc); err != nil {
		return fmt.Errorf("mixin %s: %w", t.ObjectID, err)
	}
	return w.log(ctx, t, nil)
}

func (w *writer) remove(ctx context.Context, t ir.TxRemove) error {
	doc, err := w.load(ctx, t.Target)
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	if _, err := w.tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", string(t.ObjectID)); err != nil {
		return fmt.Errorf("remove %s: %w", t.ObjectID, err)
	}
	return w.log(ctx, t, &doc)
}

func (w *writer) load(ctx context.Context, target ir.Target) (ir.Doc, error) {
	doc, ok, err := getDoc(ctx, w.tx, target.ObjectID)
	if err != nil {
		return ir.Doc{}, err
	}
	if !ok {
		return ir.Doc{}, fmt.Errorf("%s %s: %w", target.ObjectClass, target.ObjectID, ErrNotFound)
	}
	return doc, nil
}

func (w *writer) insertDoc(ctx context.Context, d ir.Doc) error {
	attrs, mixins, err := marshalDocBody(d)
	if err != nil {
		return err
	}
	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO documents
		(id, class, space, base_id, attributes, mixins, modified_on, modified_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(d.ID),
		string(d.Class),
		d.Space,
		string(d.BaseID),
		attrs,
		mixins,
		d.ModifiedOn,
		string(d.ModifiedBy),
	)
	return err
}

func (w *writer) updateDoc(ctx context.Context, d ir.Doc) error {
	attrs, mixins, err := marshalDocBody(d)
	if err != nil {
		return err
	}
	_, err = w.tx.ExecContext(ctx, `
		UPDATE documents
		SET attributes = ?, mixins = ?, modified_on = ?, modified_by = ?
		WHERE id = ?
	`, attrs, mixins, d.ModifiedOn, string(d.ModifiedBy), string(d.ID))
	return err
}

func marshalDocBody(d ir.Doc) (string, string, error) {
	attrs, err := marshalObject(d.Attributes)
	if err != nil {
		return "", "", err
	}
	mixins, err := marshalMixins(d.Mixins)
	if err != nil {
		return "", "", err
	}
	return attrs, mixins, nil
}

// log appends a committed mutation to the transaction log.
func (w *writer) log(ctx context.Context, m ir.Mutation, snapshot *ir.Doc) error {
	body, err := ir.EncodeTx(m)
	if err != nil {
		return fmt.Errorf("log %s: %w", m.Meta().ID, err)
	}
	snap, err := marshalSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("log %s: %w", m.Meta().ID, err)
	}
	meta, target := m.Meta(), m.Subject()
	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, bundle_id, kind, object_id, object_class, body, snapshot, modified_on, modified_by, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		meta.ID,
		w.bundle,
		string(m.Kind()),
		string(target.ObjectID),
		string(target.ObjectClass),
		string(body),
		snap,
		meta.ModifiedOn,
		string(meta.ModifiedBy),
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("log %s: %w", meta.ID, err)
	}
	w.applied++
	return nil
}
