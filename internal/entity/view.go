package entity

import (
	"github.com/roach88/livestore/internal/observable"
)

// View is the live subset of a Store whose entities satisfy a Query.
//
// Its value is the matching entities sorted by id. Observers are notified
// once per store event, and only when the set of member ids changed. When a
// member is updated but still matches, the view picks up the new entity
// silently.
type View[T Entity] struct {
	store   *Store[T]
	query   Query
	token   string
	name    string
	members map[string]T
	value   *observable.Value[[]T]

	onUpdated observable.Handle
	onDeleted observable.Handle
	disposed  bool
}

func newView[T Entity](s *Store[T], q Query, token string) *View[T] {
	name := s.cfg.name + token
	v := &View[T]{
		store:   s,
		query:   q,
		token:   token,
		name:    name,
		members: make(map[string]T),
	}
	for id, e := range s.entities {
		if s.match(q, e) {
			v.members[id] = e
		}
	}
	v.value = observable.NewValue(sortedValues(v.members), s.cfg.dispatchOptions(name)...)
	v.onUpdated = s.updated.On(v.handleUpdated)
	v.onDeleted = s.deleted.On(v.handleDeleted)
	s.cfg.metrics.RecordViewSize(name, len(v.members))
	return v
}

// Token returns the canonical token of the view's query.
func (v *View[T]) Token() string {
	return v.token
}

// Name identifies the view in logs and metrics: the store name followed by
// the query token.
func (v *View[T]) Name() string {
	return v.name
}

// Query returns the query the view was built from.
func (v *View[T]) Query() Query {
	return v.query
}

// Value returns the current members sorted by id.
func (v *View[T]) Value() []T {
	return v.value.Value()
}

// Len returns the number of members.
func (v *View[T]) Len() int {
	return len(v.members)
}

// Has reports whether id is a member.
func (v *View[T]) Has(id string) bool {
	_, ok := v.members[id]
	return ok
}

// Bind registers observer. With trigger set it is called immediately with the
// current members.
func (v *View[T]) Bind(observer observable.Observer[[]T], trigger bool) observable.Handle {
	return v.value.Bind(observer, trigger)
}

// Unbind removes a registration. Unknown handles are ignored.
func (v *View[T]) Unbind(h observable.Handle) {
	v.value.Unbind(h)
}

// Dispose detaches the view from its store and drops its observers. Events
// the store emits afterwards are ignored. Safe to call more than once.
func (v *View[T]) Dispose() {
	if v.disposed {
		return
	}
	v.disposed = true
	v.store.updated.Off(v.onUpdated)
	v.store.deleted.Off(v.onDeleted)
	if cur, ok := v.store.views[v.token]; ok && cur == v {
		delete(v.store.views, v.token)
	}
	v.value.Clear()
}

func (v *View[T]) handleUpdated(entities []T) {
	if v.disposed {
		return
	}
	dirty, refreshed := false, false
	for _, e := range entities {
		id := e.EntityID()
		_, present := v.members[id]
		matches := v.store.match(v.query, e)
		switch {
		case matches && !present:
			v.members[id] = e
			dirty = true
		case !matches && present:
			delete(v.members, id)
			dirty = true
		case matches && present:
			v.members[id] = e
			refreshed = true
		}
	}
	switch {
	case dirty:
		v.emit()
	case refreshed:
		v.value.Swap(sortedValues(v.members))
	}
}

func (v *View[T]) handleDeleted(ids []string) {
	if v.disposed {
		return
	}
	dirty := false
	for _, id := range ids {
		if _, ok := v.members[id]; ok {
			delete(v.members, id)
			dirty = true
		}
	}
	if dirty {
		v.emit()
	}
}

func (v *View[T]) emit() {
	next := sortedValues(v.members)
	v.store.cfg.metrics.RecordViewSize(v.name, len(next))
	v.store.cfg.metrics.RecordEmission(v.name, Changed, len(next))
	v.value.Set(next)
}
