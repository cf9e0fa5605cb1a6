package entity

import "github.com/roach88/livestore/internal/observable"

// Source is a type-erased view of a Store. Joins consume Sources so that one
// join can span stores of different entity types.
type Source interface {
	Name() string
	Lookup(id string) (Entity, bool)
	OnCreated(handler func([]Entity)) observable.Handle
	OnUpdated(handler func([]Entity)) observable.Handle
	OnDeleted(handler func([]string)) observable.Handle
	Off(h observable.Handle)
}

// Source returns the store as a Source.
func (s *Store[T]) Source() Source {
	return storeSource[T]{s}
}

type storeSource[T Entity] struct {
	store *Store[T]
}

func (a storeSource[T]) Name() string {
	return a.store.Name()
}

func (a storeSource[T]) Lookup(id string) (Entity, bool) {
	e, ok := a.store.Get(id)
	if !ok {
		return nil, false
	}
	return e, true
}

func (a storeSource[T]) OnCreated(handler func([]Entity)) observable.Handle {
	return a.store.OnCreated(func(es []T) { handler(erase(es)) })
}

func (a storeSource[T]) OnUpdated(handler func([]Entity)) observable.Handle {
	return a.store.OnUpdated(func(es []T) { handler(erase(es)) })
}

func (a storeSource[T]) OnDeleted(handler func([]string)) observable.Handle {
	return a.store.OnDeleted(handler)
}

func (a storeSource[T]) Off(h observable.Handle) {
	a.store.Off(h)
}

func erase[T Entity](es []T) []Entity {
	out := make([]Entity, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}
