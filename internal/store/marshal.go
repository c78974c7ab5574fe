package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/SacredTexts/huly/internal/ir"
)

// marshalObject converts an Object to canonical JSON TEXT for storage.
func marshalObject(obj ir.Object) (string, error) {
	if obj == nil {
		obj = ir.Object{}
	}
	data, err := ir.Encode(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses canonical JSON TEXT. Integers round-trip exactly,
// ir.Object decodes through json.Number.
func unmarshalObject(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

func marshalMixins(mixins map[ir.ClassRef]ir.Object) (string, error) {
	obj := make(ir.Object, len(mixins))
	for k, v := range mixins {
		if v == nil {
			v = ir.Object{}
		}
		obj[string(k)] = v
	}
	return marshalObject(obj)
}

func unmarshalMixins(data string) (map[ir.ClassRef]ir.Object, error) {
	obj, err := unmarshalObject(data)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.ClassRef]ir.Object, len(obj))
	for k, v := range obj {
		attrs, ok := v.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("unmarshal mixins: %s is %T, want object", k, v)
		}
		out[ir.ClassRef(k)] = attrs
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const docColumns = "id, class, space, base_id, attributes, mixins, modified_on, modified_by"

func scanDoc(row rowScanner) (ir.Doc, error) {
	var (
		d                 ir.Doc
		id, class, baseID string
		attrs, mixins, by string
	)
	if err := row.Scan(&id, &class, &d.Space, &baseID, &attrs, &mixins, &d.ModifiedOn, &by); err != nil {
		return ir.Doc{}, err
	}
	d.ID = ir.Ref(id)
	d.Class = ir.ClassRef(class)
	d.BaseID = ir.Ref(baseID)
	d.ModifiedBy = ir.Actor(by)

	var err error
	if d.Attributes, err = unmarshalObject(attrs); err != nil {
		return ir.Doc{}, fmt.Errorf("document %s: %w", id, err)
	}
	if d.Mixins, err = unmarshalMixins(mixins); err != nil {
		return ir.Doc{}, fmt.Errorf("document %s: %w", id, err)
	}
	return d, nil
}

func marshalSnapshot(d *ir.Doc) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}
	s, err := marshalObject(d.ToObject())
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func unmarshalSnapshot(ns sql.NullString) (*ir.Doc, error) {
	if !ns.Valid {
		return nil, nil
	}
	obj, err := unmarshalObject(ns.String)
	if err != nil {
		return nil, err
	}
	d, err := ir.DocFromObject(obj)
	if err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &d, nil
}
