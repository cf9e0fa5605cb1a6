package canon

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the value kinds that have a canonical form.
// Only String, Int, Bool, Array and Object implement it.
type Value interface {
	canonValue()
}

// String is a canonical string.
type String string

func (String) canonValue() {}

// Int is a canonical integer. Always int64.
type Int int64

func (Int) canonValue() {}

// Bool is a canonical boolean.
type Bool bool

func (Bool) canonValue() {}

// Array is an ordered list of canonical values.
type Array []Value

func (Array) canonValue() {}

// Object maps string keys to canonical values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) canonValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Go's native string
// comparison is by UTF-8 bytes, which sorts supplementary-plane characters
// differently.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// From converts a Go value into a canonical Value.
//
// Accepted inputs are Value itself, string, bool, every integer width,
// integral floats, and slices or string-keyed maps of those. Anything else
// returns an error naming the offending type.
func From(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null has no canonical form")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val))
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint(val)
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			c, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = c
		}
		return arr, nil
	case []string:
		arr := make(Array, len(val))
		for i, elem := range val {
			arr[i] = String(elem)
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			c, err := From(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = c
		}
		return obj, nil
	case map[string]string:
		obj := make(Object, len(val))
		for k, elem := range val {
			obj[k] = String(elem)
		}
		return obj, nil
	}
	return fromReflect(v)
}

// fromReflect handles named types whose underlying kind is canonical,
// e.g. `type Status string` or `[]Status`.
func fromReflect(v any) (Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return fromFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		arr := make(Array, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			c, err := From(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = c
		}
		return arr, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		obj := make(Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			c, err := From(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = c
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unsupported type for canonical form: %T", v)
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d overflows int64", u)
	}
	return Int(int64(u)), nil
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("non-integral number %v has no canonical form", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("number %v overflows int64", f)
	}
	return Int(int64(f)), nil
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Object:
		y, ok := b.(Object)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}
