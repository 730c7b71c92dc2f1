// ABOUTME: Store interface and data types for ws-manager persistence
// ABOUTME: Defines Connection, Message, HeartbeatRecord and the Store interface

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Connection status values
const (
	StatusActive       = "active"
	StatusDisconnected = "disconnected"
)

// Connection represents one tracked logical client session. It is a ledger
// row, not a live socket: ws_id is an opaque unique identifier, and the
// timestamps are kept as RFC3339 UTC text exactly as stored so that a
// malformed value survives load and staleness classification can fail open
// instead of erroring during scan.
type Connection struct {
	WSID          string
	Agent         string
	Metadata      map[string]any
	ConnectedAt   string
	LastHeartbeat string
	Status        string // "active" or "disconnected"
	MessageCount  int64
	DBID          int64 // surrogate row id, assigned on first persist
}

// NewConnection builds an active connection with fresh timestamps.
// When wsID is empty a new id is generated. A nil metadata map is normalized
// to an empty one so it always serializes as an object.
func NewConnection(wsID, agent string, metadata map[string]any) *Connection {
	if wsID == "" {
		wsID = uuid.New().String()
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := NowRFC3339()
	return &Connection{
		WSID:          wsID,
		Agent:         agent,
		Metadata:      metadata,
		ConnectedAt:   now,
		LastHeartbeat: now,
		Status:        StatusActive,
	}
}

// Message type defaults. Type is free text; these are the conventions used
// by the messaging layer when the caller does not classify.
const (
	MessageTypeData      = "data"      // direct sends
	MessageTypeBroadcast = "broadcast" // fan-out sends
)

// Message represents one unit of content recorded against a connection.
// Messages are immutable once persisted.
type Message struct {
	MsgID       string
	Type        string // free-text classification, defaults to "data"
	SenderID    string
	RecipientID string
	Content     string
	SentAt      string
	Delivered   bool
	DBID        int64
}

// HeartbeatRecord is one append-only liveness log entry. LatencyMS is nil
// when the caller did not report a latency.
type HeartbeatRecord struct {
	WSID      string
	Timestamp string
	LatencyMS *int64
}

// Store defines the interface for connection, message and heartbeat
// persistence. All mutating operations commit before returning.
type Store interface {
	// Connections
	UpsertConnection(ctx context.Context, conn *Connection) error
	MarkDisconnected(ctx context.Context, wsID string) (bool, error)
	ListActiveConnections(ctx context.Context) ([]*Connection, error)
	UpdateHeartbeat(ctx context.Context, wsID, ts string, latencyMS *int64) error
	IncrementMessageCount(ctx context.Context, wsID string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, wsID string, limit int) ([]*Message, error)

	// Aggregates for reporting
	CountConnections(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)

	// Close releases any resources held by the store
	Close() error
}

// NowRFC3339 returns the current UTC time in the ledger's timestamp format.
// All persisted timestamps use this layout.
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
