package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
)

func TestHierarchy_Builtins(t *testing.T) {
	h := NewHierarchy()

	assert.Equal(t, []ir.ClassRef{ClassApproveRequest, ClassToDo, ClassDoc}, h.Ancestors(ClassApproveRequest))
	assert.True(t, h.IsDerived(ClassApproveRequest, ClassToDo))
	assert.False(t, h.IsDerived(ClassToDo, ClassApproveRequest))
	assert.False(t, h.IsDerived(ClassExecution, ClassCard))
}

func TestHierarchy_AddClass(t *testing.T) {
	h := NewHierarchy()
	require.NoError(t, h.AddClass(Class{ID: "card:class:Task", Extends: ClassCard, Attributes: map[string]string{"x": "int"}}))
	require.NoError(t, h.AddClass(Class{ID: "card:mixin:Urgent", Extends: "card:class:Task", Kind: KindMixin}))

	assert.True(t, h.IsDerived("card:class:Task", ClassCard))
	assert.True(t, h.IsMixin("card:mixin:Urgent"))
	assert.False(t, h.IsMixin("card:class:Task"))
	assert.Equal(t, []ir.ClassRef{ClassCard, "card:class:Task", "card:mixin:Urgent"}, h.Descendants(ClassCard))

	typ, ok := h.Attribute("card:mixin:Urgent", "x")
	require.True(t, ok)
	assert.Equal(t, "int", typ)
	_, ok = h.Attribute("card:class:Task", "missing")
	assert.False(t, ok)
}

func TestHierarchy_AddClassErrors(t *testing.T) {
	h := NewHierarchy()

	err := h.AddClass(Class{ID: ClassCard, Extends: ClassDoc})
	assert.True(t, IsDefinitionError(err, ErrCodeDuplicate))

	err = h.AddClass(Class{ID: "card:class:Orphan", Extends: "card:class:Missing"})
	assert.True(t, IsDefinitionError(err, ErrCodeUnknownClass))

	err = h.AddClass(Class{ID: "card:class:Root"})
	assert.True(t, IsDefinitionError(err, ErrCodeInvalid))
}

func TestHierarchy_UnknownClass(t *testing.T) {
	h := NewHierarchy()
	assert.Nil(t, h.Ancestors("nope"))
	assert.False(t, h.IsDerived("nope", ClassDoc))
}
