package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/SacredTexts/huly/internal/ir"
)

// toValue converts a concrete CUE value into an IR value.
// Floats and bytes have no IR counterpart and are rejected.
func toValue(field string, v cue.Value) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(fmt.Sprintf("%s[%d]", field, i), iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		return toObject(field, v)
	case cue.FloatKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// toObject converts a CUE struct into an IR object.
func toObject(field string, v cue.Value) (ir.Object, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	obj := ir.Object{}
	for iter.Next() {
		name := iter.Label()
		elem, err := toValue(field+"."+name, iter.Value())
		if err != nil {
			return nil, err
		}
		obj[name] = elem
	}
	return obj, nil
}

// optionalObject converts path under v when present.
func optionalObject(v cue.Value, path, field string) (ir.Object, error) {
	sub := v.LookupPath(cue.MakePath(cue.Str(path)))
	if !sub.Exists() {
		return nil, nil
	}
	if sub.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: field, Message: "must be a struct", Pos: sub.Pos()}
	}
	return toObject(field, sub)
}

// requiredString reads a required string field.
func requiredString(v cue.Value, path, field string) (string, cue.Value, error) {
	sub := v.LookupPath(cue.MakePath(cue.Str(path)))
	if !sub.Exists() {
		return "", sub, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := sub.String()
	if err != nil {
		return "", sub, formatCUEError(err)
	}
	return s, sub, nil
}

// optionalString reads a string field, returning "" when absent.
func optionalString(v cue.Value, path string) (string, error) {
	sub := v.LookupPath(cue.MakePath(cue.Str(path)))
	if !sub.Exists() {
		return "", nil
	}
	s, err := sub.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// optionalBool reads a bool field, returning false when absent.
func optionalBool(v cue.Value, path string) (bool, error) {
	sub := v.LookupPath(cue.MakePath(cue.Str(path)))
	if !sub.Exists() {
		return false, nil
	}
	b, err := sub.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// labelOf returns the unquoted last label of v's path.
func labelOf(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	return strings.Trim(sels[len(sels)-1].String(), `"`)
}
