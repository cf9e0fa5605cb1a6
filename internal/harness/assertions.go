package harness

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/entity"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []engine.TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s.%s %v\n", ev.Seq, ev.Source, ev.Channel, ev.IDs)
		}
	}
	return buf.String()
}

// AssertionContext gives state assertions access to the finished run.
type AssertionContext struct {
	Runtime *engine.Runtime
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertEventContains:
			err = assertEventContains(result.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertViewValue, AssertJoinComplete, AssertStoreRecord:
			if actx == nil || actx.Runtime == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a runtime", i, a.Type)
				break
			}
			switch a.Type {
			case AssertViewValue:
				err = assertViewValue(actx.Runtime, a)
			case AssertJoinComplete:
				err = assertJoinComplete(actx.Runtime, a)
			default:
				err = assertStoreRecord(actx.Runtime, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func matches(ev engine.TraceEvent, source, channel string) bool {
	return ev.Source == source && (channel == "" || ev.Channel == channel)
}

func label(source, channel string) string {
	if channel == "" {
		return source
	}
	return source + "." + channel
}

func assertEventCount(trace []engine.TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Source, a.Channel) {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", *a.Count, label(a.Source, a.Channel)),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventContains passes when some matching event carries exactly IDs.
func assertEventContains(trace []engine.TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a.Source, a.Channel) && sameIDs(ev.IDs, a.IDs) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: fmt.Sprintf("%s event with ids %v", label(a.Source, a.Channel), a.IDs),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEventOrder checks that the first occurrence of each "source.channel"
// comes after the first occurrence of the one before it. Other events may
// appear in between.
func assertEventOrder(trace []engine.TraceEvent, a Assertion) error {
	positions := make(map[string]int, len(a.Events))
	for i, ev := range trace {
		key := ev.Source + "." + ev.Channel
		if _, seen := positions[key]; !seen && slices.Contains(a.Events, key) {
			positions[key] = i + 1
		}
	}

	for _, want := range a.Events {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", want),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertViewValue(rt *engine.Runtime, a Assertion) error {
	v, err := rt.View(a.View)
	if err != nil {
		return err
	}
	got := recordIDs(v.Value())
	if !sameIDs(got, a.IDs) {
		return &AssertionError{
			Type:     AssertViewValue,
			Expected: fmt.Sprintf("view %s = %v", a.View, orEmpty(a.IDs)),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertJoinComplete(rt *engine.Runtime, a Assertion) error {
	j, err := rt.Join(a.Join)
	if err != nil {
		return err
	}
	complete := j.Complete()
	ids := make([]string, len(complete))
	for i, c := range complete {
		ids[i] = c.ID
	}

	if a.Count != nil && len(ids) != *a.Count {
		return &AssertionError{
			Type:     AssertJoinComplete,
			Expected: fmt.Sprintf("%d complete entries in %s", *a.Count, a.Join),
			Actual:   fmt.Sprintf("%d: %v", len(ids), ids),
		}
	}
	if a.IDs != nil && !sameIDs(ids, a.IDs) {
		return &AssertionError{
			Type:     AssertJoinComplete,
			Expected: fmt.Sprintf("complete entries in %s = %v", a.Join, a.IDs),
			Actual:   fmt.Sprintf("%v", ids),
		}
	}
	return nil
}

func assertStoreRecord(rt *engine.Runtime, a Assertion) error {
	s, err := rt.Store(a.Store)
	if err != nil {
		return err
	}
	rec, ok := s.Get(a.ID)
	if a.Absent {
		if ok {
			return &AssertionError{
				Type:     AssertStoreRecord,
				Expected: fmt.Sprintf("no record %s in %s", a.ID, a.Store),
				Actual:   fmt.Sprintf("%v", rec.Fields),
			}
		}
		return nil
	}
	if !ok {
		return &AssertionError{
			Type:     AssertStoreRecord,
			Expected: fmt.Sprintf("record %s in %s", a.ID, a.Store),
			Actual:   "record not found",
		}
	}

	for _, key := range slices.Sorted(maps.Keys(a.Expect)) {
		want := normalizeValue(a.Expect[key])
		got, exists := rec.Field(key)
		if !exists {
			return &AssertionError{
				Type:     AssertStoreRecord,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("record %s has fields %v", a.ID, rec.Fields),
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertStoreRecord,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// valuesEqual compares field values, treating every integer type alike.
func valuesEqual(actual, expected any) bool {
	if a, ok := asInt(actual); ok {
		if e, ok := asInt(expected); ok {
			return a == e
		}
	}
	return reflect.DeepEqual(actual, expected)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func sameIDs(got, want []string) bool {
	if len(got) == 0 && len(want) == 0 {
		return true
	}
	return slices.Equal(got, want)
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func recordIDs(rs []entity.Record) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}
