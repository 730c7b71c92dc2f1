// ABOUTME: In-memory registry of active connections, write-through to the store.
// ABOUTME: Single source of truth for "is this connection currently active".

package registry

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/blackroad/ws-manager/internal/store"
)

// Registry holds every currently active connection in memory and keeps the
// durable store consistent with it on every mutation. All operations complete
// their store write before the in-memory state changes, so a failed write
// never leaves the two views diverged.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*store.Connection
	store  store.Store
	logger *slog.Logger
}

// New creates a Registry and loads every active connection from the store.
// This is the sole bulk read; all later access goes through registry
// operations.
func New(ctx context.Context, st store.Store, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		conns:  make(map[string]*store.Connection),
		store:  st,
		logger: logger.With("component", "registry"),
	}

	active, err := st.ListActiveConnections(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range active {
		r.conns[c.WSID] = c
	}

	r.logger.Debug("registry loaded", "active", len(r.conns))
	return r, nil
}

// Add upserts a connection by ws_id. A repeat add with the same ws_id
// replaces the prior record, last-writer-wins. The store write happens first
// and assigns or refreshes the surrogate row id. Returns a copy of the
// stored connection.
func (r *Registry) Add(ctx context.Context, conn *store.Connection) (*store.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.Status == "" {
		conn.Status = store.StatusActive
	}

	if err := r.store.UpsertConnection(ctx, conn); err != nil {
		return nil, err
	}

	stored := cloneConnection(conn)
	r.conns[conn.WSID] = stored

	r.logger.Info("connection registered",
		"ws_id", conn.WSID,
		"agent", conn.Agent,
		"active", len(r.conns),
	)
	return cloneConnection(stored), nil
}

// Remove marks a connection disconnected and drops it from memory.
// Returns false when the id has no active entry; repeated calls keep
// returning false without side effects. This is irreversible here: a later
// Add with the same ws_id creates a fresh active record, it does not
// resurrect the disconnected one.
func (r *Registry) Remove(ctx context.Context, wsID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[wsID]
	if !ok {
		return false, nil
	}

	if _, err := r.store.MarkDisconnected(ctx, wsID); err != nil {
		return false, err
	}
	delete(r.conns, wsID)

	r.logger.Info("connection removed",
		"ws_id", wsID,
		"agent", conn.Agent,
		"active", len(r.conns),
	)
	return true, nil
}

// Get returns a copy of the active connection with the given id.
func (r *Registry) Get(wsID string) (*store.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[wsID]
	if !ok {
		return nil, false
	}
	return cloneConnection(conn), true
}

// GetAll returns a defensive copy of the active set, ordered by ws_id so the
// snapshot is deterministic for a given registry state.
func (r *Registry) GetAll() []*store.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*store.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, cloneConnection(c))
	}
	slices.SortFunc(conns, func(a, b *store.Connection) int {
		return strings.Compare(a.WSID, b.WSID)
	})
	return conns
}

// Count returns the size of the active set.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UpdateHeartbeat sets the connection's last heartbeat to now, in memory and
// in the store, and appends a heartbeat log entry with the optional latency.
// Returns false when the id has no active entry.
func (r *Registry) UpdateHeartbeat(ctx context.Context, wsID string, latencyMS *int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[wsID]
	if !ok {
		return false, nil
	}

	ts := store.NowRFC3339()
	if err := r.store.UpdateHeartbeat(ctx, wsID, ts, latencyMS); err != nil {
		return false, err
	}
	conn.LastHeartbeat = ts

	r.logger.Debug("heartbeat updated", "ws_id", wsID, "ts", ts)
	return true, nil
}

// IncrementMessageCount bumps the connection's message counter in memory and
// issues a relative +1 update in the store. No-op when the id is not active.
func (r *Registry) IncrementMessageCount(ctx context.Context, wsID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[wsID]
	if !ok {
		return nil
	}

	if err := r.store.IncrementMessageCount(ctx, wsID); err != nil {
		return err
	}
	conn.MessageCount++
	return nil
}

// cloneConnection returns a copy safe to hand to callers; the metadata map
// is cloned so a caller mutation cannot reach the registry's entry.
func cloneConnection(c *store.Connection) *store.Connection {
	cp := *c
	cp.Metadata = maps.Clone(c.Metadata)
	return &cp
}
