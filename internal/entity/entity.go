package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"
)

// Entity is anything a Store can hold.
type Entity interface {
	EntityID() string
}

// Fielder exposes named fields to queries without reflection.
type Fielder interface {
	Field(name string) (any, bool)
}

// FieldResolver reads a named field from an entity. It reports false when the
// entity has no such field.
type FieldResolver[T any] func(entity T, field string) (any, bool)

// ResolveField is the default FieldResolver. It uses Fielder when the entity
// implements it, otherwise exported struct fields matched by json tag or by
// Go name.
func ResolveField(entity any, field string) (any, bool) {
	if f, ok := entity.(Fielder); ok {
		return f.Field(field)
	}
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		index, ok := structFields(rv.Type())[field]
		if !ok {
			return nil, false
		}
		fv, err := rv.FieldByIndexErr(index)
		if err != nil {
			return nil, false
		}
		return fv.Interface(), true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	}
	return nil, false
}

var fieldCache sync.Map // reflect.Type -> map[string][]int

func structFields(t reflect.Type) map[string][]int {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(map[string][]int)
	}
	fields := make(map[string][]int)
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		if _, dup := fields[name]; !dup {
			fields[name] = sf.Index
		}
	}
	fieldCache.Store(t, fields)
	return fields
}

// Record is a schemaless entity. The catalog runtime, the scenario harness
// and the HTTP surfaces all move Records.
//
// A Record encodes to JSON as one flat object with its id under "id".
type Record struct {
	ID     string
	Fields map[string]any
}

// NewRecord returns a Record with a copy of fields.
func NewRecord(id string, fields map[string]any) Record {
	return Record{ID: id, Fields: maps.Clone(fields)}
}

// EntityID implements Entity.
func (r Record) EntityID() string {
	return r.ID
}

// Field implements Fielder. The id is available as "id".
func (r Record) Field(name string) (any, bool) {
	if name == "id" {
		return r.ID, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["id"] = r.ID
	return json.Marshal(flat)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers decode as int64 when
// they are integral and float64 otherwise.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var flat map[string]any
	if err := dec.Decode(&flat); err != nil {
		return err
	}
	rec, err := RecordFromMap(flat)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// RecordFromMap builds a Record from a flat map holding an "id" key.
// json.Number values are narrowed to int64 or float64.
func RecordFromMap(m map[string]any) (Record, error) {
	rawID, ok := m["id"]
	if !ok {
		return Record{}, fmt.Errorf("record has no id")
	}
	id, err := stringID(rawID)
	if err != nil {
		return Record{}, err
	}
	fields := make(map[string]any, len(m))
	for k, v := range m {
		if k == "id" {
			continue
		}
		fields[k] = normalizeNumber(v)
	}
	return Record{ID: id, Fields: fields}, nil
}

func stringID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", fmt.Errorf("record id is empty")
		}
		return id, nil
	case json.Number:
		return id.String(), nil
	case int:
		return fmt.Sprint(id), nil
	case int64:
		return fmt.Sprint(id), nil
	}
	return "", fmt.Errorf("record id must be a string, got %T", v)
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalizeNumber(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = normalizeNumber(e)
		}
		return out
	}
	return v
}
