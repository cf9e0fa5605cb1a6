package entity

import (
	"errors"
	"fmt"
	"slices"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/livestore/internal/canon"
)

// ErrInvalidQuery is wrapped by every QueryError.
var ErrInvalidQuery = errors.New("invalid query")

// QueryError reports a clause whose condition cannot be encoded or compiled.
type QueryError struct {
	Field string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query field %q: %v", e.Field, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrInvalidQuery, e.Err}
}

// Condition tests one field value.
//
// Descriptor returns the canonical form of the condition. Two conditions with
// equal descriptors must accept exactly the same values; views are memoized on
// it.
type Condition interface {
	Match(value any) bool
	Descriptor() (canon.Value, error)
}

// Clause pairs a field name with the condition its value must satisfy.
type Clause struct {
	Field string
	Cond  Condition
}

// Query is a conjunction of clauses, evaluated in order and stopping at the
// first clause that fails. A missing field is presented to its condition as
// nil.
type Query []Clause

// Where starts a Query. A Condition value is used as is; anything else is
// matched with Eq.
func Where(field string, value any) Query {
	return Query{{Field: field, Cond: asCondition(value)}}
}

// And returns q extended with one more clause.
func (q Query) And(field string, value any) Query {
	out := slices.Clone(q)
	return append(out, Clause{Field: field, Cond: asCondition(value)})
}

func asCondition(value any) Condition {
	if c, ok := value.(Condition); ok {
		return c
	}
	return Eq(value)
}

// Match reports whether every clause accepts the value resolve returns for
// its field.
func (q Query) Match(resolve func(field string) (any, bool)) bool {
	for _, c := range q {
		v, ok := resolve(c.Field)
		if !ok {
			v = nil
		}
		if !c.Cond.Match(v) {
			return false
		}
	}
	return true
}

// Token returns the canonical encoding of q. Queries with the same clauses
// share a token regardless of the order fields were listed in; several
// clauses on one field keep their relative order.
func (q Query) Token() (string, error) {
	obj := canon.Object{}
	for _, c := range q {
		if c.Cond == nil {
			return "", &QueryError{Field: c.Field, Err: errors.New("nil condition")}
		}
		d, err := c.Cond.Descriptor()
		if err != nil {
			return "", &QueryError{Field: c.Field, Err: err}
		}
		list, _ := obj[c.Field].(canon.Array)
		obj[c.Field] = append(list, d)
	}
	return canon.Token(obj)
}

type eqCondition struct {
	want canon.Value
	err  error
}

// Eq matches values structurally equal to v once both are canonicalized, so
// int and int64 fields compare equal and a string never equals a number.
func Eq(v any) Condition {
	want, err := canon.From(v)
	return eqCondition{want: want, err: err}
}

func (c eqCondition) Match(value any) bool {
	if c.err != nil || value == nil {
		return false
	}
	got, err := canon.From(value)
	if err != nil {
		return false
	}
	return canon.Equal(c.want, got)
}

func (c eqCondition) Descriptor() (canon.Value, error) {
	if c.err != nil {
		return nil, c.err
	}
	return canon.Object{"eq": c.want}, nil
}

type inCondition struct {
	set []canon.Value
	err error
}

// In matches values equal to any of vs.
func In(vs ...any) Condition {
	c := inCondition{set: make([]canon.Value, 0, len(vs))}
	for i, v := range vs {
		cv, err := canon.From(v)
		if err != nil {
			c.err = fmt.Errorf("in[%d]: %w", i, err)
			return c
		}
		c.set = append(c.set, cv)
	}
	return c
}

func (c inCondition) Match(value any) bool {
	if c.err != nil || value == nil {
		return false
	}
	got, err := canon.From(value)
	if err != nil {
		return false
	}
	for _, want := range c.set {
		if canon.Equal(want, got) {
			return true
		}
	}
	return false
}

func (c inCondition) Descriptor() (canon.Value, error) {
	if c.err != nil {
		return nil, c.err
	}
	return canon.Object{"in": canon.Array(c.set)}, nil
}

type foldCondition struct {
	folded string
}

// Fold matches strings equal to s under Unicode case folding. Both sides are
// NFC-normalized first, so composed and decomposed accents compare equal.
func Fold(s string) Condition {
	return foldCondition{folded: fold(s)}
}

func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func (c foldCondition) Match(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	return fold(s) == c.folded
}

func (c foldCondition) Descriptor() (canon.Value, error) {
	return canon.Object{"fold": canon.String(c.folded)}, nil
}

type funcCondition struct {
	name string
	fn   func(any) bool
}

// Func wraps a custom predicate. The name stands in for the function in the
// query token: two Func conditions with the same name are treated as the same
// predicate, so give distinct predicates distinct names.
func Func(name string, fn func(value any) bool) Condition {
	return funcCondition{name: name, fn: fn}
}

func (c funcCondition) Match(value any) bool {
	return c.fn(value)
}

func (c funcCondition) Descriptor() (canon.Value, error) {
	if c.name == "" {
		return nil, errors.New("func condition needs a name")
	}
	if c.fn == nil {
		return nil, fmt.Errorf("func condition %q has no function", c.name)
	}
	return canon.Object{"func": canon.String(c.name)}, nil
}

type exprCondition struct {
	source  string
	program *exprvm.Program
	err     error
}

// Expr matches when the boolean expression source evaluates true. The field
// value is bound as "value".
//
//	entity.Where("age", entity.Expr("value >= 18"))
//
// A compile error is reported when the query is tokenized; use CompileExpr to
// surface it immediately.
func Expr(source string) Condition {
	c, err := CompileExpr(source)
	if err != nil {
		return exprCondition{source: source, err: err}
	}
	return c
}

// CompileExpr compiles source into an expression Condition.
func CompileExpr(source string) (Condition, error) {
	if source == "" {
		return nil, errors.New("expression must not be empty")
	}
	program, err := exprlang.Compile(source,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	return exprCondition{source: source, program: program}, nil
}

func (c exprCondition) Match(value any) bool {
	if c.program == nil {
		return false
	}
	out, err := exprlang.Run(c.program, map[string]any{"value": value})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (c exprCondition) Descriptor() (canon.Value, error) {
	if c.err != nil {
		return nil, c.err
	}
	return canon.Object{"expr": canon.String(c.source)}, nil
}
