package canon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"integral float", float64(3), "3"},
		{"negative zero", math.Copysign(0, -1), "0"},
		{"fraction", 1.5, "1.5"},
		{"large float", 1e21, "1e+21"},
		{"empty array", []any{}, "[]"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"empty object", map[string]any{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshal_SortedKeys(t *testing.T) {
	out, err := Marshal(map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":null,"zebra":1}`, string(out))
}

func TestMarshal_NoHTMLEscape(t *testing.T) {
	out, err := Marshal("<a&b> ")
	require.NoError(t, err)
	assert.Equal(t, "\"<a&b> \"", string(out))
}

func TestMarshal_ControlCharacters(t *testing.T) {
	out, err := Marshal("a\"b\\c\n\x01")
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\n\u0001"`, string(out))
}

func TestMarshal_NFC(t *testing.T) {
	composed, err := Marshal("\u00e9")
	require.NoError(t, err)
	decomposed, err := Marshal("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshal_Rejects(t *testing.T) {
	_, err := Marshal(struct{}{})
	assert.Error(t, err)

	_, err = Marshal([]any{func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[0]")
}

func TestCompareUTF16_SurrogatesSortBeforePrivateUse(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...), which is below U+E000
	// in UTF-16 even though it is above it in UTF-8.
	assert.Equal(t, -1, CompareUTF16("\U0001F600", "\uE000"))
	assert.Equal(t, []string{"\U0001F600", "\uE000"}, SortedKeys(map[string]int{"\uE000": 1, "\U0001F600": 2}))
}

func TestKey_Deterministic(t *testing.T) {
	v := map[string]any{"filter": map[string]any{"n": float64(1)}, "select": []string{"id"}}

	k1, err := Key("livetable/query/v1", v)
	require.NoError(t, err)
	k2, err := Key("livetable/query/v1", v)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	k3, err := Key("livetable/count/v1", v)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "domain separates keys")
}
