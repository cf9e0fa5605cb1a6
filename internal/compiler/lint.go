package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/livestore/internal/ir"
)

// Warning is a catalog smell that is legal but probably unintended.
type Warning struct {
	Path    []string `json:"path"`    // Declarations involved, e.g. ["view.a", "view.b"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// Lint reports warnings for a valid catalog:
//   - views with identical queries on one store (they share one live result)
//   - views without clauses (they mirror the whole store)
//   - stores nothing reads from
//
// A clean catalog returns an empty list.
func Lint(cat *ir.Catalog) []Warning {
	warnings := []Warning{}
	used := make(map[string]bool)

	byToken := make(map[string][]string)
	var order []string
	for _, v := range cat.Views {
		used[v.Store] = true
		if len(v.Where) == 0 {
			warnings = append(warnings, Warning{
				Path:    []string{"view." + v.Name},
				Message: fmt.Sprintf("view %s has no where clause and mirrors store %s", v.Name, v.Store),
				Level:   "info",
			})
		}
		q, err := Query(v)
		if err != nil {
			continue
		}
		tok, err := q.Token()
		if err != nil {
			continue
		}
		key := v.Store + "\x00" + tok
		if _, ok := byToken[key]; !ok {
			order = append(order, key)
		}
		byToken[key] = append(byToken[key], "view."+v.Name)
	}
	for _, key := range order {
		if names := byToken[key]; len(names) > 1 {
			warnings = append(warnings, Warning{
				Path:    names,
				Message: fmt.Sprintf("views %v select the same entities", names),
				Level:   "warning",
			})
		}
	}

	for _, j := range cat.Joins {
		for _, store := range j.Slots {
			used[store] = true
		}
	}
	for _, s := range cat.Stores {
		if !used[s.Name] {
			warnings = append(warnings, Warning{
				Path:    []string{"store." + s.Name},
				Message: fmt.Sprintf("store %s is not read by any view or join", s.Name),
				Level:   "info",
			})
		}
	}

	slices.SortStableFunc(warnings, func(a, b Warning) int {
		if a.Level == b.Level {
			return 0
		}
		if a.Level == "warning" {
			return -1
		}
		return 1
	})
	return warnings
}
