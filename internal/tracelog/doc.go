// Package tracelog provides SQLite-backed durable storage for runtime traces.
//
// The log is append-only:
//   - Runs: one row per traced session, stamped with the catalog hash
//   - Events: every store, view and join notification of a run
//
// # Ordering
//
// All ordering uses the seq INTEGER from the engine's logical clock, never
// timestamps, so a replayed run reads back in the same order. Queries
// include ORDER BY seq ASC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Event ids are content-addressed via ir.EventID.
package tracelog
