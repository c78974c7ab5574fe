package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SacredTexts/huly/internal/ir"
)

// querier is satisfied by *sql.DB and *sql.Tx so reads inside Apply see the
// group's own uncommitted writes.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Find returns every document matching q, ordered by id.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Find(ctx context.Context, q ir.DocQuery) ([]ir.Doc, error) {
	return s.find(ctx, s.db, q, 0)
}

// FindOne returns the first document matching q.
func (s *Store) FindOne(ctx context.Context, q ir.DocQuery) (ir.Doc, bool, error) {
	docs, err := s.find(ctx, s.db, q, 1)
	if err != nil || len(docs) == 0 {
		return ir.Doc{}, false, err
	}
	return docs[0], true, nil
}

// Get returns the document with the given id regardless of class.
func (s *Store) Get(ctx context.Context, id ir.Ref) (ir.Doc, bool, error) {
	return getDoc(ctx, s.db, id)
}

func (s *Store) find(ctx context.Context, q querier, dq ir.DocQuery, limit int) ([]ir.Doc, error) {
	var classes []ir.ClassRef
	if s.classes != nil && dq.Class != "" {
		classes = s.classes(dq.Class)
	}
	query, params, err := compileFind(dq, classes, limit)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", dq.Class, err)
	}

	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", dq.Class, err)
	}
	defer rows.Close()

	docs := []ir.Doc{}
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", dq.Class, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func getDoc(ctx context.Context, q querier, id ir.Ref) (ir.Doc, bool, error) {
	row := q.QueryRowContext(ctx, "SELECT "+docColumns+" FROM documents WHERE id = ?", string(id))
	d, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Doc{}, false, nil
	}
	if err != nil {
		return ir.Doc{}, false, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, true, nil
}

// LoggedTx is one committed mutation read back from the transaction log.
type LoggedTx struct {
	Seq      int64
	BundleID string
	Tx       ir.Mutation
	// Snapshot is the document as it was before a removal.
	Snapshot *ir.Doc
}

const logColumns = "seq, bundle_id, body, snapshot"

// Transaction returns the logged mutation with the given transaction id.
func (s *Store) Transaction(ctx context.Context, id string) (LoggedTx, bool, error) {
	rows, err := s.readLog(ctx, "SELECT "+logColumns+" FROM transactions WHERE id = ? ORDER BY seq ASC LIMIT 1", id)
	if err != nil || len(rows) == 0 {
		return LoggedTx{}, false, err
	}
	return rows[0], true, nil
}

// History returns every logged mutation of a document in commit order.
func (s *Store) History(ctx context.Context, objectID ir.Ref) ([]LoggedTx, error) {
	return s.readLog(ctx, "SELECT "+logColumns+" FROM transactions WHERE object_id = ? ORDER BY seq ASC", string(objectID))
}

// Bundle returns every mutation committed in one outermost group, in
// commit order.
func (s *Store) Bundle(ctx context.Context, bundleID string) ([]LoggedTx, error) {
	return s.readLog(ctx, "SELECT "+logColumns+" FROM transactions WHERE bundle_id = ? ORDER BY seq ASC", bundleID)
}

func (s *Store) readLog(ctx context.Context, query string, args ...any) ([]LoggedTx, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []LoggedTx{}
	for rows.Next() {
		var (
			lt       LoggedTx
			body     string
			snapshot sql.NullString
		)
		if err := rows.Scan(&lt.Seq, &lt.BundleID, &body, &snapshot); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx, err := ir.DecodeTx([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", lt.Seq, err)
		}
		m, ok := tx.(ir.Mutation)
		if !ok {
			return nil, fmt.Errorf("transaction %d: logged %s is not a mutation", lt.Seq, tx.Kind())
		}
		lt.Tx = m
		if lt.Snapshot, err = unmarshalSnapshot(snapshot); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", lt.Seq, err)
		}
		out = append(out, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
