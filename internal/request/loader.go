package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// IDParam is the template parameter Remove fills with each id.
const IDParam = "id"

// Caller is satisfied by *Request[R].
type Caller[R any] interface {
	Call(ctx context.Context, p Params) (R, error)
}

// Target is the write surface of an entity store.
type Target[T any] interface {
	Update(entities ...T)
	Delete(ids ...string)
}

// Pull calls a list endpoint and upserts the returned entities into target.
// Nothing is written when the call fails.
func Pull[T any](ctx context.Context, req Caller[[]T], p Params, target Target[T]) ([]T, error) {
	entities, err := req.Call(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(entities) > 0 {
		target.Update(entities...)
	}
	return entities, nil
}

// Push calls an endpoint that returns a single entity, typically a create or
// update, and upserts the server's copy into target.
func Push[T any](ctx context.Context, req Caller[T], p Params, target Target[T]) (T, error) {
	e, err := req.Call(ctx, p)
	if err != nil {
		var zero T
		return zero, err
	}
	target.Update(e)
	return e, nil
}

// Remove calls a delete endpoint once per id, with the id bound to ":id", and
// deletes every id the server confirmed from target in one batch. A 404 counts
// as confirmation. Failures for individual ids are joined into the returned
// error; they stop the remaining calls only once ctx is done.
func Remove[T any](ctx context.Context, req Caller[json.RawMessage], p Params, target Target[T], ids ...string) error {
	var (
		removed []string
		errs    []error
	)
	for _, id := range ids {
		call := p
		call.URL = maps.Clone(p.URL)
		if call.URL == nil {
			call.URL = make(map[string]string, 1)
		}
		call.URL[IDParam] = id

		_, err := req.Call(ctx, call)
		if err == nil || isNotFound(err) {
			removed = append(removed, id)
			continue
		}
		errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(removed) > 0 {
		target.Delete(removed...)
	}
	return errors.Join(errs...)
}

func isNotFound(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.Code == http.StatusNotFound
}
