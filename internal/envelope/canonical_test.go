package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	got, err := Canonicalize([]byte(`{"b":2,"a":1,"c":3}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(got))
}

func TestCanonicalizeNested(t *testing.T) {
	got, err := Canonicalize([]byte(`{"z":{"y":true,"x":[3,{"b":null,"a":"s"}]},"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"z":{"x":[3,{"a":"s","b":null}],"y":true}}`, string(got))
}

func TestCanonicalizeSameValuesDifferentOrder(t *testing.T) {
	a, err := Canonicalize([]byte(`{"amount":450000,"name":"Adaeze","active":true}`))
	require.NoError(t, err)
	b, err := Canonicalize([]byte(`{"name":"Adaeze","active":true,"amount":450000}`))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCanonicalizePreservesNumberText(t *testing.T) {
	// Numbers must pass through untouched; a float round-trip would turn
	// 40312.50 into a different byte sequence and break signatures.
	got, err := Canonicalize([]byte(`{"rate":12.50,"big":9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, `{"big":9007199254740993,"rate":12.50}`, string(got))
}

func TestCanonicalizeRejectsGarbage(t *testing.T) {
	_, err := Canonicalize([]byte(`{"unterminated":`))
	assert.Error(t, err)
}
