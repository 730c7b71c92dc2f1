// ABOUTME: Tests for the connection registry
// ABOUTME: Verifies write-through consistency, soft-delete semantics and defensive copies

package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad/ws-manager/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRegistry(t *testing.T) (*Registry, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	r, err := New(context.Background(), s, nil)
	require.NoError(t, err)
	return r, s
}

func TestAddAndGet(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	conn := store.NewConnection("ws-1", "alice", map[string]any{"region": "eu"})
	stored, err := r.Add(ctx, conn)
	require.NoError(t, err)
	assert.NotZero(t, stored.DBID)

	got, ok := r.Get("ws-1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Agent)
	assert.Equal(t, store.StatusActive, got.Status)
	assert.Equal(t, stored.ConnectedAt, got.ConnectedAt)
	assert.Equal(t, map[string]any{"region": "eu"}, got.Metadata)
}

func TestAdd_ReplacesSameID(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Add(ctx, store.NewConnection("ws-1", "alice", nil))
	require.NoError(t, err)

	// Last writer wins, not an error
	_, err = r.Add(ctx, store.NewConnection("ws-1", "bob", nil))
	require.NoError(t, err)

	got, ok := r.Get("ws-1")
	require.True(t, ok)
	assert.Equal(t, "bob", got.Agent)
	assert.Equal(t, 1, r.Count())
}

func TestRemove(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Add(ctx, store.NewConnection("ws-1", "alice", nil))
	require.NoError(t, err)

	ok, err := r.Remove(ctx, "ws-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found := r.Get("ws-1")
	assert.False(t, found)
	assert.Equal(t, 0, r.Count())

	// Store agrees: no active rows remain
	active, err := s.ListActiveConnections(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRemove_UnknownIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	ok, err := r.Remove(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Add(ctx, store.NewConnection("ws-1", "alice", nil))
	require.NoError(t, err)
	_, err = r.Remove(ctx, "ws-1")
	require.NoError(t, err)

	// Repeated removes keep returning failure without side effects
	for i := 0; i < 3; i++ {
		ok, err = r.Remove(ctx, "ws-1")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestReconnectAfterRemove_CreatesFreshRecord(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Add(ctx, store.NewConnection("ws-1", "alice", nil))
	require.NoError(t, err)
	require.NoError(t, r.IncrementMessageCount(ctx, "ws-1"))
	_, err = r.Remove(ctx, "ws-1")
	require.NoError(t, err)

	second, err := r.Add(ctx, store.NewConnection("ws-1", "alice", nil))
	require.NoError(t, err)

	// New lifecycle instance: fresh row id, counter back to zero
	assert.NotEqual(t, first.DBID, second.DBID)
	got, ok := r.Get("ws-1")
	require.True(t, ok)
	assert.Zero(t, got.MessageCount)
}

func TestNew_LoadsActiveFromStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertConnection(ctx, store.NewConnection("ws-1", "alice", nil)))
	require.NoError(t, s.UpsertConnection(ctx, store.NewConnection("ws-2", "bob", nil)))
	_, err := s.MarkDisconnected(ctx, "ws-2")
	require.NoError(t, err)

	r, err := New(ctx, s, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Count())
	_, ok := r.Get("ws-1")
	assert.True(t, ok)
	_, ok = r.Get("ws-2")
	assert.False(t, ok)
}

func TestGetAll_SortedDefensiveCopy(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"ws-c", "ws-a", "ws-b"} {
		_, err := r.Add(ctx, store.NewConnection(id, "alice", map[string]any{"k": "v"}))
		require.NoError(t, err)
	}

	all := r.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "ws-a", all[0].WSID)
	assert.Equal(t, "ws-b", all[1].WSID)
	assert.Equal(t, "ws-c", all[2].WSID)

	// Mutating the snapshot must not reach the registry
	all[0].Agent = "mallory"
	all[0].Metadata["k"] = "changed"

	got, ok := r.Get("ws-a")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Agent)
	assert.Equal(t, "v", got.Metadata["k"])
}

func TestUpdateHeartbeat(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	conn, err := r.Add(ctx, store.NewConnection("ws-1", "alice", nil))
	require.NoError(t, err)
	before := conn.LastHeartbeat

	latency := int64(12)
	ok, err := r.UpdateHeartbeat(ctx, "ws-1", &latency)
	require.NoError(t, err)
	assert.True(t, ok)

	got, found := r.Get("ws-1")
	require.True(t, found)
	assert.GreaterOrEqual(t, got.LastHeartbeat, before)
}

func TestUpdateHeartbeat_Unknown(t *testing.T) {
	r, _ := newTestRegistry(t)

	ok, err := r.UpdateHeartbeat(context.Background(), "ghost", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrementMessageCount(t *testing.T) {
	r, s := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Add(ctx, store.NewConnection("ws-1", "alice", nil))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.IncrementMessageCount(ctx, "ws-1"))
	}

	got, ok := r.Get("ws-1")
	require.True(t, ok)
	assert.Equal(t, int64(3), got.MessageCount)

	// Store kept in lockstep
	active, err := s.ListActiveConnections(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(3), active[0].MessageCount)

	// Unknown id is a silent no-op
	require.NoError(t, r.IncrementMessageCount(ctx, "ghost"))
}
