// ABOUTME: Target filters for broadcast fan-out.
// ABOUTME: Filter is a capability interface; FilterFunc adapts plain predicates.

package messaging

import "github.com/blackroad/ws-manager/internal/store"

// Filter narrows a broadcast's target set. A nil Filter matches everything.
type Filter interface {
	Matches(conn *store.Connection) bool
}

// FilterFunc adapts an ordinary predicate into a Filter.
type FilterFunc func(conn *store.Connection) bool

// Matches calls f(conn).
func (f FilterFunc) Matches(conn *store.Connection) bool { return f(conn) }

// AgentIs returns a Filter matching connections whose agent label equals
// name.
func AgentIs(name string) Filter {
	return FilterFunc(func(conn *store.Connection) bool {
		return conn.Agent == name
	})
}
