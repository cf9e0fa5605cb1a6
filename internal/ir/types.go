package ir

import "fmt"

// FieldKind is the declared type of a record field.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindInt    FieldKind = "int"
	KindBool   FieldKind = "bool"
	KindAny    FieldKind = "any"
)

// ValidFieldKinds defines allowed field kinds.
var ValidFieldKinds = map[FieldKind]bool{
	KindString: true,
	KindInt:    true,
	KindBool:   true,
	KindAny:    true,
}

// Catalog is a compiled catalog.
type Catalog struct {
	Stores []StoreDef `json:"stores"`
	Views  []ViewDef  `json:"views"`
	Joins  []JoinDef  `json:"joins"`
}

// StoreDef declares one entity store.
type StoreDef struct {
	Name   string               `json:"name"`
	Fields map[string]FieldKind `json:"fields"`
}

// ViewDef declares a named view over a store.
type ViewDef struct {
	Name  string      `json:"name"`
	Store string      `json:"store"`
	Where []ClauseDef `json:"where"`
}

// Where-clause operators.
const (
	OpEq   = "eq"
	OpIn   = "in"
	OpFold = "fold"
	OpExpr = "expr"
)

// ClauseDef is one where-clause. Value holds a string, int64, bool, or a
// slice or map of those; for OpIn it is a []any, for OpFold and OpExpr a
// string.
type ClauseDef struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// JoinDef declares a join. Slots maps slot name to store name.
type JoinDef struct {
	Name    string            `json:"name"`
	Slots   map[string]string `json:"slots"`
	Payload bool              `json:"payload"`
}

// Store returns the definition of the named store.
func (c *Catalog) Store(name string) (StoreDef, bool) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, true
		}
	}
	return StoreDef{}, false
}

// View returns the definition of the named view.
func (c *Catalog) View(name string) (ViewDef, bool) {
	for _, v := range c.Views {
		if v.Name == name {
			return v, true
		}
	}
	return ViewDef{}, false
}

// Join returns the definition of the named join.
func (c *Catalog) Join(name string) (JoinDef, bool) {
	for _, j := range c.Joins {
		if j.Name == name {
			return j, true
		}
	}
	return JoinDef{}, false
}

// FieldError reports a record field whose value does not match its
// declared kind.
type FieldError struct {
	Store string
	Field string
	Want  FieldKind
	Got   any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("store %s: field %q: want %s, got %T", e.Store, e.Field, e.Want, e.Got)
}

// Validate checks fields against the declared kinds. Undeclared fields are
// accepted as is.
func (s StoreDef) Validate(fields map[string]any) error {
	for name, kind := range s.Fields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if !kindMatches(kind, v) {
			return &FieldError{Store: s.Name, Field: name, Want: kind, Got: v}
		}
	}
	return nil
}

func kindMatches(kind FieldKind, v any) bool {
	switch kind {
	case KindAny:
		return true
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindInt:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			return true
		case float64:
			return n == float64(int64(n))
		}
	}
	return false
}
