package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom_Nested(t *testing.T) {
	v, err := From(map[string]any{
		"ids":   []any{"a", 2, true},
		"inner": map[string]any{"x": int32(1)},
	})
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Array{String("a"), Int(2), Bool(true)}, obj["ids"])
	assert.Equal(t, Object{"x": Int(1)}, obj["inner"])
}

func TestFrom_PassesValuesThrough(t *testing.T) {
	in := Array{String("x")}
	v, err := From(in)
	require.NoError(t, err)
	assert.Equal(t, in, v)
}

func TestFrom_ErrorNamesPath(t *testing.T) {
	_, err := From(map[string]any{"outer": []any{1, 2.5}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `["outer"]`)
	assert.Contains(t, err.Error(), "[1]")
}

func TestObject_SortedKeys(t *testing.T) {
	obj := Object{"b": Int(1), "a": Int(2), "aa": Int(3)}
	assert.Equal(t, []string{"a", "aa", "b"}, obj.SortedKeys())
}

func TestCompareUTF16(t *testing.T) {
	assert.Equal(t, 0, compareUTF16("abc", "abc"))
	assert.Equal(t, -1, compareUTF16("ab", "abc"))
	assert.Equal(t, 1, compareUTF16("b", "abc"))
	assert.Equal(t, -1, compareUTF16("\U0001F600", "\uff5e"))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("a"), String("a"), true},
		{"string vs int", String("1"), Int(1), false},
		{"bool", Bool(true), Bool(true), true},
		{"array order matters", Array{Int(1), Int(2)}, Array{Int(2), Int(1)}, false},
		{"array equal", Array{Int(1), String("x")}, Array{Int(1), String("x")}, true},
		{"object equal", Object{"a": Int(1), "b": Bool(false)}, Object{"b": Bool(false), "a": Int(1)}, true},
		{"object missing key", Object{"a": Int(1)}, Object{"b": Int(1)}, false},
		{"nil", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}
