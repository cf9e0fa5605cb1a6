// Package entity implements the entity store and its filtered views.
//
// A Store holds the latest known entity for each id and announces every
// mutation on three channels: created, updated and deleted. Update emits
// created for ids that were not present, then updated for the whole batch,
// so consumers that only listen to updated still see new entities.
//
// A View is a live subset of a Store selected by a Query. It seeds from the
// store when built, then tracks updated and deleted events and notifies its
// observers only when membership actually changes. Views are memoized per
// store by the canonical token of their Query.
//
// Stores and views are not safe for concurrent use. Callers that mutate from
// more than one goroutine serialize through engine.Engine.
package entity
