// Package store provides persistent storage for ws-manager using SQLite.
//
// # Architecture
//
// The Store interface covers three collections:
//
//   - connections: one row per logical client session, keyed by a unique
//     ws_id, soft-deleted on disconnect (the row is kept with status
//     "disconnected" and a disconnect timestamp)
//   - messages: immutable message records with optional sender/recipient ids
//   - heartbeat_log: append-only liveness entries, written but never read
//     back by core logic
//
// SQLiteStore is the only implementation, backed by modernc.org/sqlite with
// WAL mode enabled. The schema is created automatically on open; a failure to
// open the database or create the schema is fatal to the caller.
//
// # Timestamps
//
// All timestamps are stored as RFC3339 UTC text and carried through the data
// types as raw strings. RFC3339 sorts lexicographically, so ordering by
// sent_at text is chronological. Keeping the text form lets higher layers
// apply fail-open semantics to malformed heartbeat values instead of
// erroring at scan time.
//
// # Error Handling
//
// Lookups that can legitimately miss report absence through boolean results
// (MarkDisconnected) rather than sentinel errors. All other failures are
// wrapped with context.
package store
