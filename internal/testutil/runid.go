package testutil

// FixedRunID generates the same run id every time.
//
// Trace logs key every recorded event by run id. Production runs use UUIDv7;
// tests pin the id so recorded logs and golden traces are byte-identical
// across executions.
type FixedRunID struct {
	id string
}

// NewFixedRunID returns a generator for id. An empty id becomes "test-run".
func NewFixedRunID(id string) *FixedRunID {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunID{id: id}
}

// Generate returns the fixed id.
func (g *FixedRunID) Generate() string {
	return g.id
}
