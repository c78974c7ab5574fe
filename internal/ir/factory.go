package ir

// Clock stamps transactions. Implementations must be monotonic.
type Clock interface {
	Next() int64
}

// IDGenerator produces transaction ids.
type IDGenerator interface {
	Generate() string
}

// TxFactory builds transactions on behalf of one actor.
// It is created per incoming transaction so the engine's own writes carry
// the identity of whoever triggered them.
type TxFactory struct {
	actor Actor
	clock Clock
	ids   IDGenerator
}

// NewTxFactory returns a factory stamping transactions with actor.
func NewTxFactory(actor Actor, clock Clock, ids IDGenerator) *TxFactory {
	return &TxFactory{actor: actor, clock: clock, ids: ids}
}

// Actor returns the identity stamped on every transaction.
func (f *TxFactory) Actor() Actor {
	return f.actor
}

func (f *TxFactory) meta() TxMeta {
	return TxMeta{
		ID:         f.ids.Generate(),
		ModifiedBy: f.actor,
		ModifiedOn: f.clock.Next(),
	}
}

// CreateDoc builds a creation of a primary-version document.
func (f *TxFactory) CreateDoc(target Target, attrs Object) TxCreate {
	if attrs == nil {
		attrs = Object{}
	}
	return TxCreate{TxMeta: f.meta(), Target: target, Attributes: attrs}
}

// CreateDocAs builds a creation that preserves the original author and
// timestamp, used to restore a deleted document verbatim.
func (f *TxFactory) CreateDocAs(target Target, attrs Object, modifiedOn int64, modifiedBy Actor) TxCreate {
	tx := f.CreateDoc(target, attrs)
	tx.ModifiedOn = modifiedOn
	tx.ModifiedBy = modifiedBy
	return tx
}

// UpdateDoc builds an update.
func (f *TxFactory) UpdateDoc(target Target, ops Update) TxUpdate {
	return TxUpdate{TxMeta: f.meta(), Target: target, Operations: ops}
}

// Mixin builds a mixin attachment.
func (f *TxFactory) Mixin(target Target, mixin ClassRef, attrs Object) TxMixin {
	if attrs == nil {
		attrs = Object{}
	}
	return TxMixin{TxMeta: f.meta(), Target: target, Mixin: mixin, Attributes: attrs}
}

// RemoveDoc builds a removal.
func (f *TxFactory) RemoveDoc(target Target) TxRemove {
	return TxRemove{TxMeta: f.meta(), Target: target}
}

// ApplyIf wraps txes in an all-or-nothing group whose id is derived from
// its members.
func (f *TxFactory) ApplyIf(scope string, match, notMatch []DocQuery, txes []Tx) TxApplyIf {
	ids := make([]string, len(txes))
	for i, tx := range txes {
		ids[i] = tx.Meta().ID
	}
	meta := f.meta()
	meta.ID = BundleID(ids)
	return TxApplyIf{TxMeta: meta, Scope: scope, Match: match, NotMatch: notMatch, Txes: txes}
}

// Stamp fills the id, author and timestamp that tx and its children lack,
// leaving set fields untouched. It is applied to transactions arriving
// from outside the process, which may carry only their payload.
func (f *TxFactory) Stamp(tx Tx) Tx {
	fill := func(m TxMeta) TxMeta {
		if m.ID == "" {
			m.ID = f.ids.Generate()
		}
		if m.ModifiedBy == "" {
			m.ModifiedBy = f.actor
		}
		if m.ModifiedOn == 0 {
			m.ModifiedOn = f.clock.Next()
		}
		return m
	}
	switch t := tx.(type) {
	case TxCreate:
		t.TxMeta = fill(t.TxMeta)
		return t
	case TxUpdate:
		t.TxMeta = fill(t.TxMeta)
		return t
	case TxMixin:
		t.TxMeta = fill(t.TxMeta)
		return t
	case TxRemove:
		t.TxMeta = fill(t.TxMeta)
		return t
	case TxApplyIf:
		t.TxMeta = fill(t.TxMeta)
		txes := make([]Tx, len(t.Txes))
		for i, child := range t.Txes {
			txes[i] = f.Stamp(child)
		}
		t.Txes = txes
		return t
	}
	return tx
}
