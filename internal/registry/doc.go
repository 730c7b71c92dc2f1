// Package registry maintains the authoritative in-memory view of active
// connections, synchronized with the durable store on every call.
//
// The registry is loaded once at construction from the store's active rows.
// Every mutating operation (Add, Remove, UpdateHeartbeat,
// IncrementMessageCount) writes through synchronously: the store commit
// happens inside the registry's lock and before the in-memory map changes,
// so the two views stay consistent and the mutations are linearizable with
// respect to each other.
//
// Lookups never touch the store and return defensive copies, so callers can
// hold results across concurrent mutations without tearing.
package registry
