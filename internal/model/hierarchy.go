package model

import (
	"fmt"
	"slices"
	"sync"

	"github.com/SacredTexts/huly/internal/ir"
)

// ClassKind distinguishes classes from mixins.
type ClassKind string

const (
	KindClass ClassKind = "class"
	KindMixin ClassKind = "mixin"
)

// Class is a node of the class hierarchy. A mixin extends the class it can
// be attached to.
type Class struct {
	ID         ir.ClassRef       `json:"id"`
	Extends    ir.ClassRef       `json:"extends,omitempty"`
	Kind       ClassKind         `json:"kind"`
	Label      string            `json:"label,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"` // attribute name -> type name
}

// Hierarchy is an in-memory class hierarchy with single inheritance.
// It is safe for concurrent use.
type Hierarchy struct {
	mu      sync.RWMutex
	classes map[ir.ClassRef]Class
}

// NewHierarchy returns a hierarchy seeded with the built-in classes.
func NewHierarchy() *Hierarchy {
	h := &Hierarchy{classes: map[ir.ClassRef]Class{}}
	h.classes[ClassDoc] = Class{ID: ClassDoc, Kind: KindClass}
	for _, c := range []Class{
		{ID: ClassCard, Extends: ClassDoc, Kind: KindClass},
		{ID: ClassExecution, Extends: ClassDoc, Kind: KindClass, Attributes: map[string]string{
			AttrProcess: "string", AttrCard: "ref", AttrCurrentState: "string", AttrContext: "object", AttrStatus: "string",
		}},
		{ID: ClassToDo, Extends: ClassDoc, Kind: KindClass, Attributes: map[string]string{
			AttrExecution: "ref", AttrTitle: "string", AttrResults: "array", AttrDoneOn: "int",
		}},
		{ID: ClassApproveRequest, Extends: ClassToDo, Kind: KindClass, Attributes: map[string]string{
			AttrApproved: "bool",
		}},
	} {
		if err := h.AddClass(c); err != nil {
			panic(err)
		}
	}
	return h
}

// AddClass registers a class or mixin. Its parent must already exist.
func (h *Hierarchy) AddClass(c Class) error {
	if c.ID == "" {
		return &DefinitionError{Code: ErrCodeInvalid, Message: "class has no id"}
	}
	if c.Kind == "" {
		c.Kind = KindClass
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.classes[c.ID]; ok {
		return &DefinitionError{Code: ErrCodeDuplicate, Message: fmt.Sprintf("class %s already defined", c.ID)}
	}
	if c.Extends == "" {
		return &DefinitionError{Code: ErrCodeInvalid, Message: fmt.Sprintf("class %s extends nothing", c.ID)}
	}
	if _, ok := h.classes[c.Extends]; !ok {
		return &DefinitionError{Code: ErrCodeUnknownClass, Message: fmt.Sprintf("class %s extends unknown %s", c.ID, c.Extends)}
	}
	h.classes[c.ID] = c
	return nil
}

// Class returns the definition of ref.
func (h *Hierarchy) Class(ref ir.ClassRef) (Class, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.classes[ref]
	return c, ok
}

// Has reports whether ref is defined.
func (h *Hierarchy) Has(ref ir.ClassRef) bool {
	_, ok := h.Class(ref)
	return ok
}

// Ancestors returns ref followed by its parents up to the root.
// Unknown classes yield nil.
func (h *Hierarchy) Ancestors(ref ir.ClassRef) []ir.ClassRef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []ir.ClassRef
	for cur := ref; cur != ""; {
		c, ok := h.classes[cur]
		if !ok {
			break
		}
		out = append(out, cur)
		cur = c.Extends
	}
	return out
}

// Descendants returns every class deriving from ref, ref included, sorted.
func (h *Hierarchy) Descendants(ref ir.ClassRef) []ir.ClassRef {
	h.mu.RLock()
	ids := make([]ir.ClassRef, 0, len(h.classes))
	for id := range h.classes {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	var out []ir.ClassRef
	for _, id := range ids {
		if h.IsDerived(id, ref) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// IsDerived reports whether ref is base or inherits from it.
func (h *Hierarchy) IsDerived(ref, base ir.ClassRef) bool {
	return slices.Contains(h.Ancestors(ref), base)
}

// IsMixin reports whether ref is a mixin.
func (h *Hierarchy) IsMixin(ref ir.ClassRef) bool {
	c, ok := h.Class(ref)
	return ok && c.Kind == KindMixin
}

// Attribute finds the declared type of attr on ref or its ancestors.
func (h *Hierarchy) Attribute(ref ir.ClassRef, attr string) (string, bool) {
	for _, anc := range h.Ancestors(ref) {
		c, _ := h.Class(anc)
		if t, ok := c.Attributes[attr]; ok {
			return t, true
		}
	}
	return "", false
}
