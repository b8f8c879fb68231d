package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		kind  string
		text  string
	}{
		{"42", "integer", "42"},
		{"-7", "integer", "-7"},
		{"4.99", "decimal", "4.99"},
		{"1.50", "decimal", "1.5"},
		{"1e3", "decimal", "1000"},
		{"99999999999999999999", "decimal", "99999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := ParseNumber(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, Kind(v))

			b, err := MarshalIRValue(v)
			require.NoError(t, err)
			assert.Equal(t, tt.text, string(b))
		})
	}
}

func TestParseNumberInvalid(t *testing.T) {
	_, err := ParseNumber("abc")
	require.Error(t, err)
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"s": "x",
		"n": json.Number("3"),
		"d": json.Number("2.5"),
		"b": true,
		"z": nil,
		"l": []any{int64(1)},
	})
	require.NoError(t, err)

	obj := v.(IRObject)
	assert.Equal(t, IRString("x"), obj["s"])
	assert.Equal(t, IRInt(3), obj["n"])
	assert.Equal(t, "decimal", Kind(obj["d"]))
	assert.Equal(t, IRBool(true), obj["b"])
	assert.Equal(t, IRNull{}, obj["z"])
	assert.Equal(t, IRArray{IRInt(1)}, obj["l"])
}

func TestFromGoRejectsFloats(t *testing.T) {
	_, err := FromGo(3.14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestUnmarshalIRValue(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"price": 12.50, "stock": 3, "tag": null}`))
	require.NoError(t, err)

	obj := v.(IRObject)
	assert.Equal(t, "decimal", Kind(obj["price"]))
	assert.Equal(t, IRInt(3), obj["stock"])
	assert.Equal(t, "null", Kind(obj["tag"]))

	b, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"price":12.5,"stock":3,"tag":null}`, string(b))
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 is a surrogate pair (0xD83D...) in UTF-16 and sorts before
	// U+E000, the reverse of UTF-8 byte order.
	obj := IRObject{"\U0001F600": IRInt(1), "\uE000": IRInt(2)}
	assert.Equal(t, []string{"\U0001F600", "\uE000"}, obj.SortedKeys())
}
