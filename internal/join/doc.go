// Package join assembles composite records out of several entity stores.
//
// A Join has one slot per participating store. Callers register entries by
// key, a foreign id per slot, and the join fills each slot from its store as
// soon as the entity exists. An entry is Complete once every slot is filled
// and, for joins that require one, a payload was supplied. Only complete
// entries are surfaced: created fires when an entry becomes complete, updated
// fires whenever a complete entry is recomputed, and deleted fires when an
// entry stops being complete.
//
// A per-slot foreign-key index maps entity ids to the entries that reference
// them, so a store event only visits the entries it affects.
package join
