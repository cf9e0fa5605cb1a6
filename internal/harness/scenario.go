package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario drives a catalog through a sequence of writes and checks the
// resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies the scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Catalog is the path to a CUE catalog file or directory. Relative paths
	// are resolved against the scenario file's directory by LoadScenario.
	Catalog string `yaml:"catalog,omitempty"`

	// CatalogSource is an inline CUE catalog. Exactly one of Catalog and
	// CatalogSource is set.
	CatalogSource string `yaml:"catalog_source,omitempty"`

	// Steps are applied in order on a fresh runtime.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`

	// RunID names the run when the trace is recorded. Defaults to the
	// scenario name.
	RunID string `yaml:"run_id,omitempty"`
}

// Step is one write. Exactly one of its operations is set.
type Step struct {
	Update *UpdateStep `yaml:"update,omitempty"`
	Delete *DeleteStep `yaml:"delete,omitempty"`
	Join   *JoinStep   `yaml:"join,omitempty"`
	Unjoin *UnjoinStep `yaml:"unjoin,omitempty"`

	// ExpectError is the runtime error code the step must fail with, e.g.
	// INVALID_RECORD. A step without it must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// UpdateStep upserts records into a store. Each record carries its "id".
type UpdateStep struct {
	Store   string           `yaml:"store"`
	Records []map[string]any `yaml:"records"`
}

// DeleteStep removes ids from a store.
type DeleteStep struct {
	Store string   `yaml:"store"`
	IDs   []string `yaml:"ids"`
}

// JoinStep registers join entries.
type JoinStep struct {
	Join    string      `yaml:"join"`
	Entries []JoinEntry `yaml:"entries"`
}

// JoinEntry is a key plus an optional payload.
type JoinEntry struct {
	Key     map[string]string `yaml:"key"`
	Payload map[string]any    `yaml:"payload,omitempty"`
}

// UnjoinStep removes join entries by key.
type UnjoinStep struct {
	Join string              `yaml:"join"`
	Keys []map[string]string `yaml:"keys"`
}

// Op names the operation a step performs, or "" when none or several are set.
func (s Step) Op() string {
	var ops []string
	if s.Update != nil {
		ops = append(ops, OpUpdate)
	}
	if s.Delete != nil {
		ops = append(ops, OpDelete)
	}
	if s.Join != nil {
		ops = append(ops, OpJoin)
	}
	if s.Unjoin != nil {
		ops = append(ops, OpUnjoin)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Step operations.
const (
	OpUpdate = "update"
	OpDelete = "delete"
	OpJoin   = "join"
	OpUnjoin = "unjoin"
)

// Assertion checks the trace or the final runtime state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Source and Channel select trace events (event_count, event_contains).
	// An empty Channel matches every channel.
	Source  string `yaml:"source,omitempty"`
	Channel string `yaml:"channel,omitempty"`

	// Events lists "source.channel" pairs that must appear in this order
	// (event_order).
	Events []string `yaml:"events,omitempty"`

	// View, Join and Store name the state an assertion reads.
	View  string `yaml:"view,omitempty"`
	Join  string `yaml:"join,omitempty"`
	Store string `yaml:"store,omitempty"`

	// ID selects one record (store_record).
	ID string `yaml:"id,omitempty"`

	// IDs is the exact id list expected (event_contains, view_value,
	// join_complete).
	IDs []string `yaml:"ids,omitempty"`

	// Count is the expected number of events or complete entries.
	Count *int `yaml:"count,omitempty"`

	// Expect holds the fields a record must carry (store_record). Extra
	// fields on the record are ignored.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that the record does not exist (store_record).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion types.
const (
	AssertEventCount    = "event_count"
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertViewValue     = "view_value"
	AssertJoinComplete  = "join_complete"
	AssertStoreRecord   = "store_record"
)

// LoadScenario reads a scenario file. Unknown fields are rejected and a
// relative catalog path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving a relative
// catalog path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.Catalog != "" && !filepath.IsAbs(s.Catalog) && basePath != "" {
		s.Catalog = filepath.Join(basePath, s.Catalog)
	}
	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); err != nil {
			return nil, fmt.Errorf("invalid scenario: catalog not found: %s", s.Catalog)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario document. Catalog paths are
// left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch {
	case s.Catalog == "" && s.CatalogSource == "":
		return fmt.Errorf("catalog or catalog_source is required")
	case s.Catalog != "" && s.CatalogSource != "":
		return fmt.Errorf("catalog and catalog_source are mutually exclusive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch step.Op() {
	case OpUpdate:
		if step.Update.Store == "" {
			return fmt.Errorf("steps[%d].update: store is required", i)
		}
		for j, r := range step.Update.Records {
			if _, ok := r["id"]; !ok {
				return fmt.Errorf("steps[%d].update.records[%d]: id is required", i, j)
			}
		}
	case OpDelete:
		if step.Delete.Store == "" {
			return fmt.Errorf("steps[%d].delete: store is required", i)
		}
	case OpJoin:
		if step.Join.Join == "" {
			return fmt.Errorf("steps[%d].join: join is required", i)
		}
	case OpUnjoin:
		if step.Unjoin.Join == "" {
			return fmt.Errorf("steps[%d].unjoin: join is required", i)
		}
	default:
		return fmt.Errorf("steps[%d]: exactly one of update, delete, join, unjoin is required", i)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	case AssertEventCount:
		if a.Source == "" {
			return fmt.Errorf("assertions[%d]: source is required for %s", i, a.Type)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", i, a.Type)
		}
	case AssertEventContains:
		if a.Source == "" || a.Channel == "" {
			return fmt.Errorf("assertions[%d]: source and channel are required for %s", i, a.Type)
		}
	case AssertEventOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: at least two events are required for %s", i, a.Type)
		}
	case AssertViewValue:
		if a.View == "" {
			return fmt.Errorf("assertions[%d]: view is required for %s", i, a.Type)
		}
	case AssertJoinComplete:
		if a.Join == "" {
			return fmt.Errorf("assertions[%d]: join is required for %s", i, a.Type)
		}
		if a.Count == nil && a.IDs == nil {
			return fmt.Errorf("assertions[%d]: count or ids is required for %s", i, a.Type)
		}
	case AssertStoreRecord:
		if a.Store == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: store and id are required for %s", i, a.Type)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for %s", i, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
