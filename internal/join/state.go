package join

import (
	"github.com/roach88/livestore/internal/entity"
)

// State is the lifecycle stage of a join entry.
type State int

const (
	// Unresolved entries have no slot filled.
	Unresolved State = iota
	// Partial entries have some slots filled, or all of them but still lack
	// a required payload.
	Partial
	// Complete entries have every slot filled and any required payload.
	Complete
)

func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	}
	return "unknown"
}

// Composite is a complete join entry. It is only built for entries whose
// state is Complete, so every slot is present in Entities.
type Composite[P any] struct {
	ID       string                   `json:"id"`
	Key      Key                      `json:"key"`
	Entities map[string]entity.Entity `json:"entities"`
	Payload  *P                       `json:"payload,omitempty"`
}

// Slot returns the entity held in the named slot as a T.
func Slot[T entity.Entity, P any](c Composite[P], name string) (T, bool) {
	e, ok := c.Entities[name]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := e.(T)
	return t, ok
}

// Info describes one entry in any state.
type Info[P any] struct {
	ID      string
	Key     Key
	State   State
	Filled  []string
	Payload *P
}

// entry is the join's private record for one key. Its state is always
// derived from slots and payload.
type entry[P any] struct {
	id      string
	key     Key
	slots   map[string]entity.Entity
	payload *P
}

func (e *entry[P]) state(slotCount int, payloadRequired bool) State {
	switch {
	case len(e.slots) == 0:
		return Unresolved
	case len(e.slots) < slotCount:
		return Partial
	case payloadRequired && e.payload == nil:
		return Partial
	}
	return Complete
}

func (e *entry[P]) composite() Composite[P] {
	entities := make(map[string]entity.Entity, len(e.slots))
	for name, ent := range e.slots {
		entities[name] = ent
	}
	return Composite[P]{
		ID:       e.id,
		Key:      e.key.Clone(),
		Entities: entities,
		Payload:  e.payload,
	}
}
