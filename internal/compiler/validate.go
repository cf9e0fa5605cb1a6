package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Store errors (E101-E109)
	ErrStoreNameEmpty   = "E101" // store name must be non-empty
	ErrInvalidFieldKind = "E102" // unknown field kind
	ErrDuplicateName    = "E103" // name declared twice across stores, views and joins

	// View errors (E110-E119)
	ErrUnknownViewStore   = "E110" // view references an undeclared store
	ErrInvalidWhereClause = "E111" // where clause cannot be compiled
	ErrWhereFieldKind     = "E112" // where literal does not match the declared field kind

	// Join errors (E120-E129)
	ErrJoinNoSlots      = "E120" // join must have at least one slot
	ErrUnknownSlotStore = "E121" // join slot references an undeclared store
)

// ValidationError represents a catalog validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one catalog.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Validate checks a compiled catalog: names, field kinds, cross references and
// where clauses. Returns all errors found (does not fail-fast).
func Validate(cat *ir.Catalog) ValidationErrors {
	var errs ValidationErrors

	// Stores, views and joins share one namespace: traces and metrics label
	// sources by name alone.
	seen := make(map[string]string)
	claim := func(kind, name, field string) {
		if prev, ok := seen[name]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s %q is already declared as a %s", kind, name, prev),
				Code:    ErrDuplicateName,
			})
			return
		}
		seen[name] = kind
	}

	for i, s := range cat.Stores {
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("stores[%d].name", i),
				Message: "store name is required and must be non-empty",
				Code:    ErrStoreNameEmpty,
			})
			continue
		}
		claim("store", s.Name, fmt.Sprintf("store.%s", s.Name))
		for field, kind := range s.Fields {
			if !ir.ValidFieldKinds[kind] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("store.%s.fields.%s", s.Name, field),
					Message: fmt.Sprintf("invalid kind %q", kind),
					Code:    ErrInvalidFieldKind,
				})
			}
		}
	}

	for _, v := range cat.Views {
		claim("view", v.Name, fmt.Sprintf("view.%s", v.Name))
		store, ok := cat.Store(v.Store)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("view.%s.store", v.Name),
				Message: fmt.Sprintf("unknown store %q", v.Store),
				Code:    ErrUnknownViewStore,
			})
			continue
		}
		for _, cl := range v.Where {
			errs = append(errs, validateClause(v.Name, store, cl)...)
		}
	}

	for _, j := range cat.Joins {
		claim("join", j.Name, fmt.Sprintf("join.%s", j.Name))
		if len(j.Slots) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("join.%s.slots", j.Name),
				Message: "join must have at least one slot",
				Code:    ErrJoinNoSlots,
			})
		}
		for _, slot := range j.SortedSlotNames() {
			if _, ok := cat.Store(j.Slots[slot]); !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("join.%s.slots.%s", j.Name, slot),
					Message: fmt.Sprintf("unknown store %q", j.Slots[slot]),
					Code:    ErrUnknownSlotStore,
				})
			}
		}
	}

	return errs
}

func validateClause(view string, store ir.StoreDef, cl ir.ClauseDef) []ValidationError {
	field := fmt.Sprintf("view.%s.where.%s", view, cl.Field)

	cond, err := Condition(cl)
	if err != nil {
		return []ValidationError{{
			Field:   field,
			Message: err.Error(),
			Code:    ErrInvalidWhereClause,
		}}
	}
	if _, err := entity.Where(cl.Field, cond).Token(); err != nil {
		return []ValidationError{{
			Field:   field,
			Message: err.Error(),
			Code:    ErrInvalidWhereClause,
		}}
	}

	// A literal of the wrong kind can never match; flag it rather than build a
	// view that is always empty.
	kind, declared := store.Fields[cl.Field]
	if !declared {
		return nil
	}
	var literals []any
	switch cl.Op {
	case ir.OpEq:
		literals = []any{cl.Value}
	case ir.OpIn:
		literals, _ = cl.Value.([]any)
	case ir.OpFold:
		if kind != ir.KindString && kind != ir.KindAny {
			return []ValidationError{{
				Field:   field,
				Message: fmt.Sprintf("fold applies to strings, field is %s", kind),
				Code:    ErrWhereFieldKind,
			}}
		}
	}
	check := ir.StoreDef{Name: store.Name, Fields: map[string]ir.FieldKind{cl.Field: kind}}
	for _, lit := range literals {
		if err := check.Validate(map[string]any{cl.Field: lit}); err != nil {
			return []ValidationError{{
				Field:   field,
				Message: fmt.Sprintf("literal %v does not match field kind %s", lit, kind),
				Code:    ErrWhereFieldKind,
			}}
		}
	}
	return nil
}

// Condition builds the entity condition a clause describes.
func Condition(cl ir.ClauseDef) (entity.Condition, error) {
	switch cl.Op {
	case ir.OpEq:
		return entity.Eq(cl.Value), nil
	case ir.OpIn:
		values, ok := cl.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("in takes a list, got %T", cl.Value)
		}
		return entity.In(values...), nil
	case ir.OpFold:
		s, ok := cl.Value.(string)
		if !ok {
			return nil, fmt.Errorf("fold takes a string, got %T", cl.Value)
		}
		return entity.Fold(s), nil
	case ir.OpExpr:
		s, ok := cl.Value.(string)
		if !ok {
			return nil, fmt.Errorf("expr takes a string, got %T", cl.Value)
		}
		return entity.CompileExpr(s)
	default:
		return nil, fmt.Errorf("unknown operator %q", cl.Op)
	}
}

// Query builds the entity query a view declares.
func Query(v ir.ViewDef) (entity.Query, error) {
	var q entity.Query
	for _, cl := range v.Where {
		cond, err := Condition(cl)
		if err != nil {
			return nil, fmt.Errorf("view %s: where %s: %w", v.Name, cl.Field, err)
		}
		q = q.And(cl.Field, cond)
	}
	return q, nil
}
