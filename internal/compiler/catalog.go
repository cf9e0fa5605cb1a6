package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/livestore/internal/ir"
)

// Compile parses a CUE catalog value into an ir.Catalog and validates it.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the catalog root, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`store: user: fields: name: "string"`)
//	cat, err := Compile(v)
func Compile(v cue.Value) (*ir.Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	// Err only reports a failing root; conflicts below it surface here.
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	cat := &ir.Catalog{}
	var err error

	cat.Stores, err = parseStores(v)
	if err != nil {
		return nil, err
	}
	cat.Views, err = parseViews(v)
	if err != nil {
		return nil, err
	}
	cat.Joins, err = parseJoins(v)
	if err != nil {
		return nil, err
	}

	if len(cat.Stores) == 0 {
		return nil, &CompileError{
			Field:   "store",
			Message: "at least one store is required",
			Pos:     v.Pos(),
		}
	}

	if errs := Validate(cat); len(errs) > 0 {
		return nil, errs
	}
	return cat, nil
}

// parseStores extracts store declarations, sorted by name.
func parseStores(v cue.Value) ([]ir.StoreDef, error) {
	var stores []ir.StoreDef

	storeVal := v.LookupPath(cue.ParsePath("store"))
	if !storeVal.Exists() {
		return stores, nil
	}

	iter, err := storeVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		store := ir.StoreDef{
			Name:   name,
			Fields: make(map[string]ir.FieldKind),
		}

		// fields is optional; an untyped store accepts any record
		fieldsVal := iter.Value().LookupPath(cue.ParsePath("fields"))
		if fieldsVal.Exists() {
			fieldIter, err := fieldsVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for fieldIter.Next() {
				fieldName := fieldIter.Label()
				if fieldName == "id" {
					return nil, &CompileError{
						Field:   fmt.Sprintf("store.%s.fields.id", name),
						Message: "id is implicit and cannot be declared",
						Pos:     fieldIter.Value().Pos(),
					}
				}
				kind, err := extractFieldKind(fieldIter.Value())
				if err != nil {
					return nil, err
				}
				store.Fields[fieldName] = kind
			}
		}

		stores = append(stores, store)
	}

	slices.SortFunc(stores, func(a, b ir.StoreDef) int { return strings.Compare(a.Name, b.Name) })
	return stores, nil
}

// extractFieldKind accepts either a kind name ("int") or a CUE type (int).
// Floats are forbidden: canonical tokens only carry integers.
func extractFieldKind(v cue.Value) (ir.FieldKind, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		kind := ir.FieldKind(s)
		if !ir.ValidFieldKinds[kind] {
			return "", &CompileError{
				Field:   "fields",
				Message: fmt.Sprintf("unknown field kind %q", s),
				Pos:     v.Pos(),
			}
		}
		return kind, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.KindString, nil
	case cue.IntKind:
		return ir.KindInt, nil
	case cue.BoolKind:
		return ir.KindBool, nil
	case cue.TopKind:
		return ir.KindAny, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "fields",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "fields",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// parseViews extracts view declarations, sorted by name.
func parseViews(v cue.Value) ([]ir.ViewDef, error) {
	var views []ir.ViewDef

	viewVal := v.LookupPath(cue.ParsePath("view"))
	if !viewVal.Exists() {
		return views, nil
	}

	iter, err := viewVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		value := iter.Value()

		storeVal := value.LookupPath(cue.ParsePath("store"))
		if !storeVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("view.%s.store", name),
				Message: "view store is required",
				Pos:     value.Pos(),
			}
		}
		store, err := storeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		view := ir.ViewDef{Name: name, Store: store}

		whereVal := value.LookupPath(cue.ParsePath("where"))
		if whereVal.Exists() {
			view.Where, err = parseWhere(name, whereVal)
			if err != nil {
				return nil, err
			}
		}

		views = append(views, view)
	}

	slices.SortFunc(views, func(a, b ir.ViewDef) int { return strings.Compare(a.Name, b.Name) })
	return views, nil
}

// parseWhere converts a where struct into clauses, one per field, sorted by
// field. Supported forms:
//   - literal: equality
//   - {in: [...]}: membership
//   - {fold: "..."}: case-insensitive string equality
//   - {expr: "..."}: boolean expression over value
func parseWhere(view string, v cue.Value) ([]ir.ClauseDef, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var clauses []ir.ClauseDef
	for iter.Next() {
		field := iter.Label()
		path := fmt.Sprintf("view.%s.where.%s", view, field)
		clause, err := parseClause(path, field, iter.Value())
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	slices.SortFunc(clauses, func(a, b ir.ClauseDef) int { return strings.Compare(a.Field, b.Field) })
	return clauses, nil
}

func parseClause(path, field string, v cue.Value) (ir.ClauseDef, error) {
	if op, arg, ok := operatorForm(v); ok {
		switch op {
		case ir.OpIn:
			list, err := literal(path+".in", arg)
			if err != nil {
				return ir.ClauseDef{}, err
			}
			if _, isList := list.([]any); !isList {
				return ir.ClauseDef{}, &CompileError{
					Field:   path + ".in",
					Message: "in takes a list",
					Pos:     arg.Pos(),
				}
			}
			return ir.ClauseDef{Field: field, Op: ir.OpIn, Value: list}, nil
		default:
			s, err := arg.String()
			if err != nil {
				return ir.ClauseDef{}, &CompileError{
					Field:   path + "." + op,
					Message: op + " takes a string",
					Pos:     arg.Pos(),
				}
			}
			return ir.ClauseDef{Field: field, Op: op, Value: s}, nil
		}
	}

	value, err := literal(path, v)
	if err != nil {
		return ir.ClauseDef{}, err
	}
	return ir.ClauseDef{Field: field, Op: ir.OpEq, Value: value}, nil
}

// operatorForm reports whether v is a single-key struct naming an operator.
func operatorForm(v cue.Value) (string, cue.Value, bool) {
	if v.IncompleteKind() != cue.StructKind {
		return "", cue.Value{}, false
	}
	iter, err := v.Fields()
	if err != nil || !iter.Next() {
		return "", cue.Value{}, false
	}
	op := iter.Label()
	arg := iter.Value()
	if iter.Next() {
		return "", cue.Value{}, false
	}
	switch op {
	case ir.OpIn, ir.OpFold, ir.OpExpr:
		return op, arg, true
	}
	return "", cue.Value{}, false
}

// literal converts a concrete CUE value into the Go values the entity
// package compares against: string, int64, bool, []any and map[string]any.
func literal(path string, v cue.Value) (any, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{
			Field:   path,
			Message: "value must be concrete",
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for i := 0; iter.Next(); i++ {
			elem, err := literal(fmt.Sprintf("%s[%d]", path, i), iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := map[string]any{}
		for iter.Next() {
			key := iter.Label()
			elem, err := literal(path+"."+key, iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil
	case cue.FloatKind:
		return nil, &CompileError{
			Field:   path,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// parseJoins extracts join declarations, sorted by name.
func parseJoins(v cue.Value) ([]ir.JoinDef, error) {
	var joins []ir.JoinDef

	joinVal := v.LookupPath(cue.ParsePath("join"))
	if !joinVal.Exists() {
		return joins, nil
	}

	iter, err := joinVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		value := iter.Value()

		def := ir.JoinDef{Name: name, Slots: make(map[string]string)}

		slotsVal := value.LookupPath(cue.ParsePath("slots"))
		if !slotsVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("join.%s.slots", name),
				Message: "join slots are required",
				Pos:     value.Pos(),
			}
		}
		slotIter, err := slotsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for slotIter.Next() {
			store, err := slotIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			def.Slots[slotIter.Label()] = store
		}

		payloadVal := value.LookupPath(cue.ParsePath("payload"))
		if payloadVal.Exists() {
			def.Payload, err = payloadVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}

		joins = append(joins, def)
	}

	slices.SortFunc(joins, func(a, b ir.JoinDef) int { return strings.Compare(a.Name, b.Name) })
	return joins, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
