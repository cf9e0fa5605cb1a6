package entity

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/livestore/internal/metrics"
	"github.com/roach88/livestore/internal/observable"
)

// Event channel names.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"

	// Changed is the notification a View emits when its membership changes.
	Changed = "changed"
)

// Store holds the latest entity for each id and announces every change.
type Store[T Entity] struct {
	cfg      config
	entities map[string]T
	snapshot *observable.Value[[]T]

	created *observable.Channel[[]T]
	updated *observable.Channel[[]T]
	deleted *observable.Channel[[]string]

	views map[string]*View[T]
}

// NewStore creates an empty Store.
func NewStore[T Entity](opts ...Option) *Store[T] {
	cfg := newConfig(opts)
	return &Store[T]{
		cfg:      cfg,
		entities: make(map[string]T),
		snapshot: observable.NewValue(make([]T, 0), cfg.dispatchOptions(cfg.name)...),
		created:  observable.NewChannel[[]T](cfg.dispatchOptions(cfg.name + "." + Created)...),
		updated:  observable.NewChannel[[]T](cfg.dispatchOptions(cfg.name + "." + Updated)...),
		deleted:  observable.NewChannel[[]string](cfg.dispatchOptions(cfg.name + "." + Deleted)...),
		views:    make(map[string]*View[T]),
	}
}

// Name returns the store's configured name.
func (s *Store[T]) Name() string {
	return s.cfg.name
}

// Update upserts entities. When an id appears more than once in the batch the
// last occurrence wins.
//
// After the batch is applied the snapshot is republished, then created is
// emitted with the entities whose ids were not present before, then updated
// is emitted with every entity in the batch. Both events carry one entity per
// distinct id, in first-seen order. An empty batch does nothing.
func (s *Store[T]) Update(entities ...T) {
	if len(entities) == 0 {
		return
	}

	var order []string
	seen := make(map[string]bool, len(entities))
	isNew := make(map[string]bool)
	for _, e := range entities {
		id := e.EntityID()
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
			if _, exists := s.entities[id]; !exists {
				isNew[id] = true
			}
		}
		s.entities[id] = e
	}

	batch := make([]T, 0, len(order))
	var created []T
	for _, id := range order {
		e := s.entities[id]
		batch = append(batch, e)
		if isNew[id] {
			created = append(created, e)
		}
	}

	s.publish()
	s.cfg.logger.Debug("store updated",
		"store", s.cfg.name,
		"created", len(created),
		"updated", len(batch),
	)
	if len(created) > 0 {
		s.cfg.metrics.RecordMutation(s.cfg.name, metrics.OpCreate, len(created))
		s.cfg.metrics.RecordEmission(s.cfg.name, Created, len(created))
		s.created.Emit(created)
	}
	s.cfg.metrics.RecordMutation(s.cfg.name, metrics.OpUpdate, len(batch))
	s.cfg.metrics.RecordEmission(s.cfg.name, Updated, len(batch))
	s.updated.Emit(batch)
}

// Delete removes the given ids. Ids that are not present are ignored. When at
// least one id was removed the snapshot is republished and deleted is emitted
// with exactly the removed ids.
func (s *Store[T]) Delete(ids ...string) {
	var removed []string
	for _, id := range ids {
		if _, ok := s.entities[id]; !ok {
			continue
		}
		delete(s.entities, id)
		removed = append(removed, id)
	}
	if len(removed) == 0 {
		return
	}

	s.publish()
	s.cfg.logger.Debug("store deleted", "store", s.cfg.name, "deleted", len(removed))
	s.cfg.metrics.RecordMutation(s.cfg.name, metrics.OpDelete, len(removed))
	s.cfg.metrics.RecordEmission(s.cfg.name, Deleted, len(removed))
	s.deleted.Emit(removed)
}

func (s *Store[T]) publish() {
	s.snapshot.Set(sortedValues(s.entities))
}

// View returns a live view of the entities matching q. Calls with queries
// that share a token return handles onto the same underlying View.
//
// Each call returns a fresh Observable; disposing it releases only the
// bindings made through it.
func (s *Store[T]) View(q Query) (*observable.Observable[[]T], error) {
	v, err := s.view(q)
	if err != nil {
		return nil, err
	}
	return observable.Wrap[[]T](v), nil
}

func (s *Store[T]) view(q Query) (*View[T], error) {
	token, err := q.Token()
	if err != nil {
		return nil, err
	}
	if v, ok := s.views[token]; ok {
		return v, nil
	}
	v := newView(s, q, token)
	s.views[token] = v
	s.cfg.logger.Debug("view created", "store", s.cfg.name, "view", v.name, "size", v.Len())
	return v, nil
}

// Views returns the memoized view for each token, for diagnostics.
func (s *Store[T]) Views() map[string]*View[T] {
	return maps.Clone(s.views)
}

// Entities returns a copy of the id -> entity mapping.
func (s *Store[T]) Entities() map[string]T {
	return maps.Clone(s.entities)
}

// Get returns the entity stored under id.
func (s *Store[T]) Get(id string) (T, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Has reports whether id is present.
func (s *Store[T]) Has(id string) bool {
	_, ok := s.entities[id]
	return ok
}

// Len returns the number of stored entities.
func (s *Store[T]) Len() int {
	return len(s.entities)
}

// Snapshot returns all entities sorted by id.
func (s *Store[T]) Snapshot() []T {
	return sortedValues(s.entities)
}

// Observe returns a handle onto the store's snapshot, republished after every
// effective mutation.
func (s *Store[T]) Observe() *observable.Observable[[]T] {
	return observable.Wrap[[]T](s.snapshot)
}

// OnCreated registers a handler for newly created entities.
func (s *Store[T]) OnCreated(handler func([]T)) observable.Handle {
	return s.created.On(handler)
}

// OnUpdated registers a handler for updated entities, including new ones.
func (s *Store[T]) OnUpdated(handler func([]T)) observable.Handle {
	return s.updated.On(handler)
}

// OnDeleted registers a handler for removed ids.
func (s *Store[T]) OnDeleted(handler func([]string)) observable.Handle {
	return s.deleted.On(handler)
}

// Off removes a registration made with OnCreated, OnUpdated or OnDeleted.
// Unknown handles are ignored.
func (s *Store[T]) Off(h observable.Handle) {
	if s.created.Off(h) || s.updated.Off(h) {
		return
	}
	s.deleted.Off(h)
}

// Close disposes every memoized view. The store itself stays usable.
func (s *Store[T]) Close() {
	for token, v := range s.views {
		v.Dispose()
		delete(s.views, token)
	}
}

func (s *Store[T]) match(q Query, e T) bool {
	return q.Match(func(field string) (any, bool) {
		return s.cfg.resolve(e, field)
	})
}

func sortedValues[T Entity](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b T) int {
		return cmp.Compare(a.EntityID(), b.EntityID())
	})
	return out
}
