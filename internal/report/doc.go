// Package report answers read-only queries over the ledger: per-connection
// or system-wide message history, and aggregate connection statistics that
// combine store counts with the registry's live active set.
package report
