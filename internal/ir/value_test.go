package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(Array{Int(1), Object{"a": String("x")}}, Array{Int(1), Object{"a": String("x")}}))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"b": Int(1)}))
	assert.False(t, Equal(Null{}, Bool(false)))
}

func TestCompare(t *testing.T) {
	c, ok := Compare(Int(1), Int(2))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare(String("b"), String("a"))
	require.True(t, ok)
	assert.Equal(t, 1, c)

	_, ok = Compare(Int(1), String("1"))
	assert.False(t, ok)
	_, ok = Compare(Array{}, Array{})
	assert.False(t, ok)
}

func TestObjectLookup(t *testing.T) {
	obj := Object{
		"card":      Object{"x": Int(5), "nested": Object{"y": Bool(true)}},
		"$inc.deep": Int(1),
	}

	v, ok := obj.Lookup("card.x")
	require.True(t, ok)
	assert.Equal(t, Int(5), v)

	v, ok = obj.Lookup("card.nested.y")
	require.True(t, ok)
	assert.Equal(t, Bool(true), v)

	v, ok = obj.Lookup("$inc.deep")
	require.True(t, ok, "verbatim dotted key")
	assert.Equal(t, Int(1), v)

	_, ok = obj.Lookup("card.missing")
	assert.False(t, ok)
	_, ok = obj.Lookup("card.x.y")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	orig := Object{"list": Array{Object{"a": Int(1)}}}
	cp := orig.Clone()
	cp["list"].(Array)[0].(Object)["a"] = Int(2)
	assert.Equal(t, Int(1), orig["list"].(Array)[0].(Object)["a"])
}

func TestOverlayAndWith(t *testing.T) {
	base := Object{"a": Int(1), "b": Int(2)}
	out := base.Overlay(Object{"b": Int(3), "c": Int(4)}).With("d", Int(5))
	assert.Equal(t, Object{"a": Int(1), "b": Int(3), "c": Int(4), "d": Int(5)}, out)
	assert.Equal(t, Object{"a": Int(1), "b": Int(2)}, base, "receiver untouched")
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"s":   "x",
		"n":   float64(3),
		"num": json.Number("7"),
		"arr": []any{true, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, Object{
		"s":   String("x"),
		"n":   Int(3),
		"num": Int(7),
		"arr": Array{Bool(true), Null{}},
	}, v)

	_, err = FromAny(1.5)
	assert.Error(t, err)
	_, err = FromAny(json.Number("1.5"))
	assert.Error(t, err)
	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestToAnyRoundTrip(t *testing.T) {
	v := Object{"a": Array{Int(1), String("b"), Null{}}, "c": Bool(false)}
	back, err := FromAny(ToAny(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}

func TestObjectJSON(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"b":[1,2],"a":{"c":null}}`), &obj))
	assert.Equal(t, Object{"b": Array{Int(1), Int(2)}, "a": Object{"c": Null{}}}, obj)

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":null},"b":[1,2]}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &obj))
	assert.Error(t, json.Unmarshal([]byte(`{"f":1.25}`), &obj))
}
