package ir

import (
	"encoding/json"
	"fmt"
)

// TxKind tags the variants of the transaction tree.
type TxKind string

const (
	TxKindCreate  TxKind = "create"
	TxKindUpdate  TxKind = "update"
	TxKindMixin   TxKind = "mixin"
	TxKindRemove  TxKind = "remove"
	TxKindApplyIf TxKind = "apply_if"
)

// TxMeta is carried by every transaction.
type TxMeta struct {
	ID         string `json:"id"`
	ModifiedBy Actor  `json:"modified_by"`
	ModifiedOn int64  `json:"modified_on"`
}

// Tx is a node of the transaction tree. Leaves (Mutation) change exactly one
// document; ApplyIf groups are all-or-nothing internal nodes.
type Tx interface {
	Kind() TxKind
	Meta() TxMeta
	isTx()
}

// Mutation is an elementary, single-document transaction.
type Mutation interface {
	Tx
	Subject() Target
}

// Target names the document a mutation applies to.
type Target struct {
	ObjectID    Ref      `json:"object_id"`
	ObjectClass ClassRef `json:"object_class"`
	ObjectSpace string   `json:"object_space"`
}

// TxCreate creates a document.
type TxCreate struct {
	TxMeta
	Target
	BaseID     Ref    `json:"base_id,omitempty"`
	Attributes Object `json:"attributes"`
}

// TxUpdate applies an update to a document's own attributes.
type TxUpdate struct {
	TxMeta
	Target
	Operations Update `json:"-"`
}

// TxMixin attaches a mixin to a document and assigns its attributes.
// An empty Attributes object is pure tagging.
type TxMixin struct {
	TxMeta
	Target
	Mixin      ClassRef `json:"mixin"`
	Attributes Object   `json:"attributes"`
}

// TxRemove deletes a document.
type TxRemove struct {
	TxMeta
	Target
}

// DocQuery matches documents of Class whose attributes equal every entry of
// Query. An empty Query matches any document of the class.
type DocQuery struct {
	Class ClassRef `json:"class"`
	Query Object   `json:"query,omitempty"`
}

// TxApplyIf commits Txes as one unit, only if every Match query finds a
// document and no NotMatch query does. Groups nest.
type TxApplyIf struct {
	TxMeta
	Scope    string     `json:"scope"`
	Match    []DocQuery `json:"match,omitempty"`
	NotMatch []DocQuery `json:"not_match,omitempty"`
	Txes     []Tx       `json:"-"`
}

func (TxCreate) Kind() TxKind  { return TxKindCreate }
func (TxUpdate) Kind() TxKind  { return TxKindUpdate }
func (TxMixin) Kind() TxKind   { return TxKindMixin }
func (TxRemove) Kind() TxKind  { return TxKindRemove }
func (TxApplyIf) Kind() TxKind { return TxKindApplyIf }

func (t TxCreate) Meta() TxMeta  { return t.TxMeta }
func (t TxUpdate) Meta() TxMeta  { return t.TxMeta }
func (t TxMixin) Meta() TxMeta   { return t.TxMeta }
func (t TxRemove) Meta() TxMeta  { return t.TxMeta }
func (t TxApplyIf) Meta() TxMeta { return t.TxMeta }

func (TxCreate) isTx()  {}
func (TxUpdate) isTx()  {}
func (TxMixin) isTx()   {}
func (TxRemove) isTx()  {}
func (TxApplyIf) isTx() {}

func (t TxCreate) Subject() Target { return t.Target }
func (t TxUpdate) Subject() Target { return t.Target }
func (t TxMixin) Subject() Target  { return t.Target }
func (t TxRemove) Subject() Target { return t.Target }

// TxResult is returned by the storage layer for a forwarded transaction.
type TxResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Applied int    `json:"applied"` // committed mutations, 0 when a precondition failed
}

// WalkMutations visits every mutation of the tree depth-first, in commit
// order. Groups are descended into, never visited themselves.
func WalkMutations(tx Tx, visit func(Mutation) error) error {
	switch t := tx.(type) {
	case TxApplyIf:
		for _, child := range t.Txes {
			if err := WalkMutations(child, visit); err != nil {
				return err
			}
		}
		return nil
	case *TxApplyIf:
		return WalkMutations(*t, visit)
	case Mutation:
		return visit(t)
	default:
		return fmt.Errorf("unknown transaction type %T", tx)
	}
}

// CountMutations returns the number of leaves in the tree.
func CountMutations(tx Tx) int {
	n := 0
	_ = WalkMutations(tx, func(Mutation) error {
		n++
		return nil
	})
	return n
}

// txEnvelope is the JSON form of any transaction.
type txEnvelope struct {
	Kind TxKind `json:"kind"`
	TxMeta
	Target
	BaseID     Ref               `json:"base_id,omitempty"`
	Attributes Object            `json:"attributes,omitempty"`
	Operations Object            `json:"operations,omitempty"`
	Mixin      ClassRef          `json:"mixin,omitempty"`
	Scope      string            `json:"scope,omitempty"`
	Match      []DocQuery        `json:"match,omitempty"`
	NotMatch   []DocQuery        `json:"not_match,omitempty"`
	Txes       []json.RawMessage `json:"txes,omitempty"`
}

// EncodeTx serializes a transaction tree to JSON.
func EncodeTx(tx Tx) ([]byte, error) {
	env := txEnvelope{Kind: tx.Kind(), TxMeta: tx.Meta()}
	switch t := tx.(type) {
	case TxCreate:
		env.Target, env.BaseID, env.Attributes = t.Target, t.BaseID, t.Attributes
	case TxUpdate:
		env.Target, env.Operations = t.Target, t.Operations.ToObject()
	case TxMixin:
		env.Target, env.Mixin, env.Attributes = t.Target, t.Mixin, t.Attributes
		if env.Attributes == nil {
			env.Attributes = Object{}
		}
	case TxRemove:
		env.Target = t.Target
	case TxApplyIf:
		env.Scope, env.Match, env.NotMatch = t.Scope, t.Match, t.NotMatch
		for i, child := range t.Txes {
			data, err := EncodeTx(child)
			if err != nil {
				return nil, fmt.Errorf("txes[%d]: %w", i, err)
			}
			env.Txes = append(env.Txes, data)
		}
	default:
		return nil, fmt.Errorf("cannot encode transaction %T", tx)
	}
	return json.Marshal(env)
}

// DecodeTx parses the JSON produced by EncodeTx.
func DecodeTx(data []byte) (Tx, error) {
	var env txEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	switch env.Kind {
	case TxKindCreate:
		attrs := env.Attributes
		if attrs == nil {
			attrs = Object{}
		}
		return TxCreate{TxMeta: env.TxMeta, Target: env.Target, BaseID: env.BaseID, Attributes: attrs}, nil
	case TxKindUpdate:
		ops, err := ParseUpdate(env.Operations)
		if err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", env.ID, err)
		}
		return TxUpdate{TxMeta: env.TxMeta, Target: env.Target, Operations: ops}, nil
	case TxKindMixin:
		attrs := env.Attributes
		if attrs == nil {
			attrs = Object{}
		}
		return TxMixin{TxMeta: env.TxMeta, Target: env.Target, Mixin: env.Mixin, Attributes: attrs}, nil
	case TxKindRemove:
		return TxRemove{TxMeta: env.TxMeta, Target: env.Target}, nil
	case TxKindApplyIf:
		group := TxApplyIf{TxMeta: env.TxMeta, Scope: env.Scope, Match: env.Match, NotMatch: env.NotMatch}
		for i, raw := range env.Txes {
			child, err := DecodeTx(raw)
			if err != nil {
				return nil, fmt.Errorf("txes[%d]: %w", i, err)
			}
			group.Txes = append(group.Txes, child)
		}
		return group, nil
	default:
		return nil, fmt.Errorf("decode transaction: unknown kind %q", env.Kind)
	}
}
