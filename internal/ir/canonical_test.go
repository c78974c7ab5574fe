package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"bool", Bool(true), "true"},
		{"null", Null{}, "null"},
		{"nil", nil, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array", Array{Int(1), String("a"), Null{}}, `[1,"a",null]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Encode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestEncodeSortedKeys(t *testing.T) {
	obj := Object{
		"z": Object{"b": Int(1), "a": Int(2)},
		"a": Int(3),
	}
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(MustEncode(obj)))
}

func TestEncodeUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair 0xD800 0xDC00, which sorts
	// before U+E000 in UTF-16 even though it sorts after it in UTF-8.
	obj := Object{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}
	expected := "{\"\U00010000\":2,\"\uE000\":1}"
	assert.Equal(t, expected, string(MustEncode(obj)))
}

func TestEncodeNFC(t *testing.T) {
	decomposed := String("e\u0301")
	composed := String("\u00e9")
	assert.Equal(t, MustEncode(composed), MustEncode(decomposed))
}

func TestEncodeNoHTMLEscape(t *testing.T) {
	assert.Equal(t, `"<a&b>"`, string(MustEncode(String("<a&b>"))))
}

func TestEncodeDeterministic(t *testing.T) {
	obj := Object{}
	for _, k := range []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8"} {
		obj[k] = String(k)
	}
	first := MustEncode(obj)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, MustEncode(obj))
	}
}
