package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"object with null", IRObject{"a": IRNull{}}, `{"a":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// U+E000 in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"`+"\U00010000"+`":2,"`+"\uE000"+`":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<b>Pluto & Charon</b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<b>Pluto & Charon</b>"`, string(result))
	assert.NotContains(t, string(result), `\u003c`)
	assert.NotContains(t, string(result), `\u0026`)
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed form.
	decomposed := IRString("cafe\u0301")
	composed := IRString("caf\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	tests := []struct {
		name     string
		input    IRString
		expected string
	}{
		{"line separator", IRString("a\u2028b"), "\"a\u2028b\""},
		{"paragraph separator", IRString("a\u2029b"), "\"a\u2029b\""},
		{"literal backslash text", IRString(`a\u2028b`), `"a\\u2028b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	result, err := MarshalCanonical(IRString("quote\" backslash\\ newline\n"))
	require.NoError(t, err)
	assert.Equal(t, `"quote\" backslash\\ newline\n"`, string(result))
}

func TestMarshalCanonicalIdempotent(t *testing.T) {
	obj := IRObject{
		"name":  IRString("Pluto"),
		"moons": IRArray{IRString("Charon"), IRString("Nix")},
		"order": IRInt(9),
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
