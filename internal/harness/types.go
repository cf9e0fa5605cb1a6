package harness

import (
	"github.com/roach88/livestore/internal/engine"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace holds every notification the run produced, in seq order.
	Trace []engine.TraceEvent `json:"trace"`

	// Errors describes each failed step expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// CatalogHash identifies the catalog the run was built from.
	CatalogHash string `json:"catalog_hash"`

	// State is the final snapshot of every store, keyed by store name.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult returns a passing, empty Result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []engine.TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
