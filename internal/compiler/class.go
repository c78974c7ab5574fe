package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

// CompileClass parses a CUE value into a class or mixin definition.
//
// The value is the class struct itself, labelled by the class id:
//
//	class: "card:class:Task": {
//		extends: "card:class:Card"
//		attributes: { title: string, estimate: int }
//	}
func CompileClass(v cue.Value) (model.Class, error) {
	if err := v.Err(); err != nil {
		return model.Class{}, formatCUEError(err)
	}

	c := model.Class{ID: ir.ClassRef(labelOf(v)), Kind: model.KindClass}

	extends, _, err := requiredString(v, "extends", "extends")
	if err != nil {
		return model.Class{}, err
	}
	c.Extends = ir.ClassRef(extends)

	kind, err := optionalString(v, "kind")
	if err != nil {
		return model.Class{}, err
	}
	switch model.ClassKind(kind) {
	case "", model.KindClass:
	case model.KindMixin:
		c.Kind = model.KindMixin
	default:
		return model.Class{}, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("invalid kind %q, must be \"class\" or \"mixin\"", kind),
			Pos:     v.LookupPath(cue.ParsePath("kind")).Pos(),
		}
	}

	c.Label, err = optionalString(v, "label")
	if err != nil {
		return model.Class{}, err
	}

	attrs := v.LookupPath(cue.ParsePath("attributes"))
	if attrs.Exists() {
		iter, err := attrs.Fields()
		if err != nil {
			return model.Class{}, formatCUEError(err)
		}
		c.Attributes = map[string]string{}
		for iter.Next() {
			typ, err := extractTypeName(iter.Value())
			if err != nil {
				return model.Class{}, err
			}
			c.Attributes[iter.Label()] = typ
		}
	}

	return c, nil
}

// attributeTypes are the type names an attribute may declare as a string.
var attributeTypes = map[string]bool{
	"string": true, "int": true, "bool": true, "array": true, "object": true, "ref": true,
}

// extractTypeName maps a CUE type, or a quoted type name such as "ref",
// to an attribute type name. Floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	if v.Kind() == cue.StringKind {
		name, _ := v.String()
		if !attributeTypes[name] {
			return "", &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("unknown attribute type %q", name),
				Pos:     v.Pos(),
			}
		}
		return name, nil
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.ListKind:
		return "array", nil
	case cue.StructKind:
		return "object", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
