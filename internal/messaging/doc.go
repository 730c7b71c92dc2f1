// Package messaging implements the fan-out operations of the ledger:
// broadcast to a filtered target set, direct send to one connection, and the
// heartbeat sweep that evicts stale connections.
//
// Content is accepted as a generic value. Strings are stored verbatim;
// anything else is JSON-serialized exactly once at this boundary, so a
// pre-serialized payload is never double-encoded.
//
// Each per-target write (message insert plus counter increment) is one unit;
// a broadcast as a whole is best-effort and may persist a prefix of its
// targets when a mid-broadcast failure occurs.
package messaging
