package ir

import "fmt"

// Ref identifies a document.
type Ref string

// ClassRef identifies a class or mixin in the class hierarchy,
// e.g. "card:class:Card" or "process:class:ToDo".
type ClassRef string

// Actor identifies the account a transaction is performed on behalf of.
type Actor string

// Reserved keys of a document's object form. Anything else at the top level
// is a regular attribute.
const (
	KeyID         = "_id"
	KeyClass      = "_class"
	KeySpace      = "space"
	KeyBaseID     = "base_id"
	KeyModifiedOn = "modified_on"
	KeyModifiedBy = "modified_by"
	KeyMixins     = "_mixins"
)

// Doc is a stored document together with the mixins attached to it.
type Doc struct {
	ID         Ref
	Class      ClassRef
	Space      string
	BaseID     Ref // version family; empty or equal to ID for the primary version
	Attributes Object
	Mixins     map[ClassRef]Object
	ModifiedOn int64
	ModifiedBy Actor
}

// IsPrimaryVersion reports whether d is the primary version of its family.
func (d Doc) IsPrimaryVersion() bool {
	return d.BaseID == "" || d.BaseID == d.ID
}

// Get returns a top-level attribute, or nil.
func (d Doc) Get(attr string) Value {
	return d.Attributes[attr]
}

// HasMixin reports whether the mixin is attached.
func (d Doc) HasMixin(mixin ClassRef) bool {
	_, ok := d.Mixins[mixin]
	return ok
}

// Clone returns a deep copy. The field-change preview mutates clones only.
func (d Doc) Clone() Doc {
	out := d
	out.Attributes = d.Attributes.Clone()
	out.Mixins = make(map[ClassRef]Object, len(d.Mixins))
	for k, v := range d.Mixins {
		out.Mixins[k] = v.Clone()
	}
	return out
}

// ToObject renders the document as a context value. Attributes sit at the
// top level so conditions can address them as "card.<attr>".
func (d Doc) ToObject() Object {
	obj := d.Attributes.Clone()
	obj[KeyID] = String(d.ID)
	obj[KeyClass] = String(d.Class)
	obj[KeySpace] = String(d.Space)
	obj[KeyModifiedOn] = Int(d.ModifiedOn)
	obj[KeyModifiedBy] = String(d.ModifiedBy)
	if d.BaseID != "" {
		obj[KeyBaseID] = String(d.BaseID)
	}
	if len(d.Mixins) > 0 {
		mixins := make(Object, len(d.Mixins))
		for k, v := range d.Mixins {
			mixins[string(k)] = v.Clone()
		}
		obj[KeyMixins] = mixins
	}
	return obj
}

// DocFromObject is the inverse of Doc.ToObject. It is how rollbacks recover
// the document snapshot captured in an execution context.
func DocFromObject(obj Object) (Doc, error) {
	var d Doc
	id, ok := obj[KeyID].(String)
	if !ok || id == "" {
		return Doc{}, fmt.Errorf("document object has no %s", KeyID)
	}
	class, ok := obj[KeyClass].(String)
	if !ok || class == "" {
		return Doc{}, fmt.Errorf("document %s has no %s", id, KeyClass)
	}
	d.ID = Ref(id)
	d.Class = ClassRef(class)
	if s, ok := obj[KeySpace].(String); ok {
		d.Space = string(s)
	}
	if b, ok := obj[KeyBaseID].(String); ok {
		d.BaseID = Ref(b)
	}
	if n, ok := obj[KeyModifiedOn].(Int); ok {
		d.ModifiedOn = int64(n)
	}
	if a, ok := obj[KeyModifiedBy].(String); ok {
		d.ModifiedBy = Actor(a)
	}

	d.Attributes = make(Object, len(obj))
	for k, v := range obj {
		switch k {
		case KeyID, KeyClass, KeySpace, KeyBaseID, KeyModifiedOn, KeyModifiedBy:
		case KeyMixins:
			mixins, ok := v.(Object)
			if !ok {
				return Doc{}, fmt.Errorf("document %s: %s is %T, want object", id, KeyMixins, v)
			}
			d.Mixins = make(map[ClassRef]Object, len(mixins))
			for name, attrs := range mixins {
				m, ok := attrs.(Object)
				if !ok {
					return Doc{}, fmt.Errorf("document %s: mixin %s is %T, want object", id, name, attrs)
				}
				d.Mixins[ClassRef(name)] = m.Clone()
			}
		default:
			d.Attributes[k] = Clone(v)
		}
	}
	if d.Mixins == nil {
		d.Mixins = map[ClassRef]Object{}
	}
	return d, nil
}
