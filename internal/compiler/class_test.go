package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SacredTexts/huly/internal/ir"
	"github.com/SacredTexts/huly/internal/model"
)

func compileClassSource(t *testing.T, src, id string) (model.Class, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileClass(v.LookupPath(cue.MakePath(cue.Str("class"), cue.Str(id))))
}

func TestCompileClassBasic(t *testing.T) {
	c, err := compileClassSource(t, `
		class: "card:class:Task": {
			extends: "card:class:Card"
			label: "Task"
			attributes: {
				title: string
				estimate: int
				done: bool
				tags: [...string]
				meta: {...}
				owner: "ref"
			}
		}
	`, "card:class:Task")
	require.NoError(t, err)

	assert.Equal(t, ir.ClassRef("card:class:Task"), c.ID)
	assert.Equal(t, model.ClassCard, c.Extends)
	assert.Equal(t, model.KindClass, c.Kind)
	assert.Equal(t, "Task", c.Label)
	assert.Equal(t, map[string]string{
		"title":    "string",
		"estimate": "int",
		"done":     "bool",
		"tags":     "array",
		"meta":     "object",
		"owner":    "ref",
	}, c.Attributes)
}

func TestCompileClassMixin(t *testing.T) {
	c, err := compileClassSource(t, `
		class: "card:mixin:Urgent": {
			extends: "card:class:Task"
			kind: "mixin"
		}
	`, "card:mixin:Urgent")
	require.NoError(t, err)
	assert.Equal(t, model.KindMixin, c.Kind)
	assert.Nil(t, c.Attributes)
}

func TestCompileClassErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains string
	}{
		{
			name:     "missing extends",
			src:      `class: c: { label: "C" }`,
			contains: "extends is required",
		},
		{
			name:     "invalid kind",
			src:      `class: c: { extends: "core:class:Doc", kind: "trait" }`,
			contains: "invalid kind",
		},
		{
			name:     "float attribute",
			src:      `class: c: { extends: "core:class:Doc", attributes: { ratio: float } }`,
			contains: "float types are forbidden",
		},
		{
			name:     "unknown attribute type name",
			src:      `class: c: { extends: "core:class:Doc", attributes: { when: "date" } }`,
			contains: "unknown attribute type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileClassSource(t, tt.src, "c")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}
