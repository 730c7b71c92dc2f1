// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"errors"
	"sync"
)

// errMockWrite is returned by injected write failures.
var errMockWrite = errors.New("mock store: write failed")

// MockStore is an in-memory Store implementation for testing. The error
// fields, when set, are returned by the corresponding operation so tests can
// exercise failure paths.
type MockStore struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	messages    []*Message
	heartbeats  []*HeartbeatRecord
	nextID      int64

	UpsertErr      error
	SaveMessageErr error
	IncrementErr   error

	// SaveMessageErrAfter, when positive, fails SaveMessage once that many
	// messages have been persisted. Used to simulate mid-broadcast failure.
	SaveMessageErrAfter int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		connections: make(map[string]*Connection),
	}
}

// UpsertConnection stores a copy of the connection and assigns a row id.
func (m *MockStore) UpsertConnection(ctx context.Context, conn *Connection) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	conn.DBID = m.nextID

	c := *conn
	m.connections[c.WSID] = &c
	return nil
}

// MarkDisconnected soft-deletes a stored connection.
func (m *MockStore) MarkDisconnected(ctx context.Context, wsID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[wsID]
	if !ok || c.Status != StatusActive {
		return false, nil
	}
	c.Status = StatusDisconnected
	return true, nil
}

// ListActiveConnections returns copies of every active connection.
func (m *MockStore) ListActiveConnections(ctx context.Context) ([]*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []*Connection
	for _, c := range m.connections {
		if c.Status == StatusActive {
			cp := *c
			conns = append(conns, &cp)
		}
	}
	return conns, nil
}

// UpdateHeartbeat updates the stored timestamp and appends a log record.
func (m *MockStore) UpdateHeartbeat(ctx context.Context, wsID, ts string, latencyMS *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.connections[wsID]; ok {
		c.LastHeartbeat = ts
	}
	m.heartbeats = append(m.heartbeats, &HeartbeatRecord{WSID: wsID, Timestamp: ts, LatencyMS: latencyMS})
	return nil
}

// IncrementMessageCount bumps the stored counter.
func (m *MockStore) IncrementMessageCount(ctx context.Context, wsID string) error {
	if m.IncrementErr != nil {
		return m.IncrementErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.connections[wsID]; ok {
		c.MessageCount++
	}
	return nil
}

// SaveMessage appends a copy of the message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	if m.SaveMessageErr != nil {
		return m.SaveMessageErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveMessageErrAfter > 0 && len(m.messages) >= m.SaveMessageErrAfter {
		return errMockWrite
	}

	m.nextID++
	cp := *msg
	cp.DBID = m.nextID
	msg.DBID = m.nextID
	m.messages = append(m.messages, &cp)
	return nil
}

// ListMessages returns copies of stored messages, newest insertion first,
// filtered by sender or recipient when wsID is non-empty.
func (m *MockStore) ListMessages(ctx context.Context, wsID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var out []*Message
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := m.messages[i]
		if wsID != "" && msg.SenderID != wsID && msg.RecipientID != wsID {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

// CountConnections returns the number of stored connection rows.
func (m *MockStore) CountConnections(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.connections)), nil
}

// CountMessages returns the number of stored messages.
func (m *MockStore) CountMessages(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.messages)), nil
}

// MessageCountFor reports the persisted counter for a connection.
func (m *MockStore) MessageCountFor(wsID string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.connections[wsID]; ok {
		return c.MessageCount
	}
	return 0
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
