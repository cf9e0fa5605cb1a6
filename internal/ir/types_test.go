package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return &Catalog{
		Stores: []StoreDef{
			{Name: "post", Fields: map[string]FieldKind{"title": KindString}},
			{Name: "user", Fields: map[string]FieldKind{"name": KindString, "age": KindInt, "admin": KindBool, "meta": KindAny}},
		},
		Views: []ViewDef{
			{Name: "adults", Store: "user", Where: []ClauseDef{{Field: "age", Op: OpExpr, Value: "value >= 18"}}},
		},
		Joins: []JoinDef{
			{Name: "friendship", Slots: map[string]string{"user": "user", "friend": "user"}},
		},
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := testCatalog()

	s, ok := c.Store("user")
	require.True(t, ok)
	assert.Equal(t, KindInt, s.Fields["age"])
	_, ok = c.Store("nope")
	assert.False(t, ok)

	v, ok := c.View("adults")
	require.True(t, ok)
	assert.Equal(t, "user", v.Store)
	_, ok = c.View("nope")
	assert.False(t, ok)

	j, ok := c.Join("friendship")
	require.True(t, ok)
	assert.Equal(t, []string{"friend", "user"}, j.SortedSlotNames())
	_, ok = c.Join("nope")
	assert.False(t, ok)
}

func TestStoreDef_Validate(t *testing.T) {
	s, _ := testCatalog().Store("user")

	tests := []struct {
		name    string
		fields  map[string]any
		wantErr string
	}{
		{"valid", map[string]any{"name": "ann", "age": int64(3), "admin": true, "meta": []any{1}}, ""},
		{"undeclared field allowed", map[string]any{"nickname": 4}, ""},
		{"missing declared field allowed", map[string]any{}, ""},
		{"int from yaml", map[string]any{"age": 3}, ""},
		{"integral float", map[string]any{"age": 3.0}, ""},
		{"fractional float", map[string]any{"age": 3.5}, "age"},
		{"string for int", map[string]any{"age": "3"}, "age"},
		{"int for string", map[string]any{"name": 1}, "name"},
		{"string for bool", map[string]any{"admin": "yes"}, "admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.fields)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantErr, fe.Field)
			assert.Equal(t, "user", fe.Store)
		})
	}
}

func TestCatalog_JSONFieldNaming(t *testing.T) {
	data, err := json.Marshal(testCatalog())
	require.NoError(t, err)

	for _, key := range []string{`"stores"`, `"views"`, `"joins"`, `"fields"`, `"where"`, `"slots"`, `"payload"`} {
		assert.Contains(t, string(data), key)
	}
}
