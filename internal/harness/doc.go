// Package harness runs scenarios against a catalog and checks the outcome.
//
// A scenario builds a fresh runtime from a CUE catalog, applies a list of
// store and join writes, and then asserts on the notification trace and the
// final state.
//
// # Scenario Format
//
//	name: friend_join
//	description: "Symmetric friendships complete once both users exist"
//	catalog: catalog.cue
//	steps:
//	  - update: {store: user, records: [{id: "1", name: user1}]}
//	  - join:
//	      join: friendship
//	      entries: [{key: {user: "1", friend: "2"}}]
//	  - delete: {store: user, ids: ["1"]}
//	  - unjoin: {join: friendship, keys: [{user: "1", friend: "2"}]}
//	  - update: {store: user, records: [{id: "9", name: 3}]}
//	    expect_error: INVALID_RECORD
//	assertions:
//	  - {type: event_count, source: friendship, channel: created, count: 1}
//	  - {type: event_contains, source: adults, channel: changed, ids: ["1"]}
//	  - {type: event_order, events: [user.created, friendship.created]}
//	  - {type: view_value, view: adults, ids: ["1"]}
//	  - {type: join_complete, join: friendship, count: 0}
//	  - {type: store_record, store: user, id: "2", expect: {name: user2}}
//
// Unknown fields are rejected so typos surface at load time.
//
// # Determinism
//
// Every run starts its sequence numbers at 1 and the runtime emits in a fixed
// order, so a scenario's trace is byte-for-byte reproducible. RunWithGolden
// compares it with testdata/golden/<name>.golden; pass -update to go test to
// rewrite the golden files.
package harness
