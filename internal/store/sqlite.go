// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides connection/message/heartbeat persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS connections (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			ws_id           TEXT    NOT NULL UNIQUE,
			agent           TEXT    NOT NULL,
			metadata        TEXT    NOT NULL DEFAULT '{}',
			connected_at    TEXT    NOT NULL,
			last_heartbeat  TEXT    NOT NULL,
			status          TEXT    NOT NULL DEFAULT 'active',
			message_count   INTEGER NOT NULL DEFAULT 0,
			disconnected_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_conn_agent  ON connections(agent);
		CREATE INDEX IF NOT EXISTS idx_conn_status ON connections(status);

		CREATE TABLE IF NOT EXISTS messages (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			msg_id       TEXT    NOT NULL UNIQUE,
			msg_type     TEXT    NOT NULL DEFAULT 'data',
			sender_id    TEXT,
			recipient_id TEXT,
			content      TEXT    NOT NULL,
			sent_at      TEXT    NOT NULL,
			delivered    INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_msg_recip ON messages(recipient_id);
		CREATE INDEX IF NOT EXISTS idx_msg_sent  ON messages(sent_at);

		CREATE TABLE IF NOT EXISTS heartbeat_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ws_id      TEXT    NOT NULL,
			ts         TEXT    NOT NULL,
			latency_ms INTEGER
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// UpsertConnection inserts or replaces a connection row keyed by ws_id and
// refreshes conn.DBID with the assigned row id. A repeat upsert with the same
// ws_id is last-writer-wins, not an error.
func (s *SQLiteStore) UpsertConnection(ctx context.Context, conn *Connection) error {
	metadata, err := json.Marshal(conn.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO connections (ws_id, agent, metadata, connected_at, last_heartbeat, status, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		conn.WSID,
		conn.Agent,
		string(metadata),
		conn.ConnectedAt,
		conn.LastHeartbeat,
		conn.Status,
		conn.MessageCount,
	)
	if err != nil {
		return fmt.Errorf("upserting connection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting connection row id: %w", err)
	}
	conn.DBID = id

	s.logger.Debug("upserted connection", "ws_id", conn.WSID, "agent", conn.Agent)
	return nil
}

// MarkDisconnected soft-deletes a connection: the row is retained with
// status "disconnected" and a disconnect timestamp. Returns false when no
// active row matched. The row is never hard-deleted, so a later upsert with
// the same ws_id starts a fresh lifecycle instead of reviving this one.
func (s *SQLiteStore) MarkDisconnected(ctx context.Context, wsID string) (bool, error) {
	query := `
		UPDATE connections
		SET status = ?, disconnected_at = ?
		WHERE ws_id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query, StatusDisconnected, NowRFC3339(), wsID, StatusActive)
	if err != nil {
		return false, fmt.Errorf("marking connection disconnected: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Debug("marked connection disconnected", "ws_id", wsID)
	return true, nil
}

// ListActiveConnections returns every connection row with status "active".
// This is the registry's bulk load at startup.
func (s *SQLiteStore) ListActiveConnections(ctx context.Context) ([]*Connection, error) {
	query := `
		SELECT id, ws_id, agent, metadata, connected_at, last_heartbeat, status, message_count
		FROM connections
		WHERE status = ?
	`

	rows, err := s.db.QueryContext(ctx, query, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("querying active connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection rows: %w", err)
	}

	return conns, nil
}

func scanConnection(rows *sql.Rows) (*Connection, error) {
	var conn Connection
	var metadata string

	if err := rows.Scan(
		&conn.DBID,
		&conn.WSID,
		&conn.Agent,
		&metadata,
		&conn.ConnectedAt,
		&conn.LastHeartbeat,
		&conn.Status,
		&conn.MessageCount,
	); err != nil {
		return nil, fmt.Errorf("scanning connection row: %w", err)
	}

	if err := json.Unmarshal([]byte(metadata), &conn.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", conn.WSID, err)
	}

	return &conn, nil
}

// UpdateHeartbeat sets the connection's last_heartbeat to ts and appends a
// heartbeat_log row, both inside one transaction so the timestamp update is
// never lost when the log append fails.
func (s *SQLiteStore) UpdateHeartbeat(ctx context.Context, wsID, ts string, latencyMS *int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning heartbeat transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE connections SET last_heartbeat = ? WHERE ws_id = ?`,
		ts, wsID,
	); err != nil {
		return fmt.Errorf("updating last heartbeat: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO heartbeat_log (ws_id, ts, latency_ms) VALUES (?, ?, ?)`,
		wsID, ts, nullInt64(latencyMS),
	); err != nil {
		return fmt.Errorf("appending heartbeat log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing heartbeat transaction: %w", err)
	}

	s.logger.Debug("updated heartbeat", "ws_id", wsID, "ts", ts)
	return nil
}

// IncrementMessageCount issues a relative +1 update so concurrent writers
// never lose increments to a read-modify-write race.
func (s *SQLiteStore) IncrementMessageCount(ctx context.Context, wsID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE connections SET message_count = message_count + 1 WHERE ws_id = ?`,
		wsID,
	)
	if err != nil {
		return fmt.Errorf("incrementing message count: %w", err)
	}
	return nil
}

// SaveMessage persists a message row. Messages are never mutated or deleted
// after this point.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	msgType := msg.Type
	if msgType == "" {
		msgType = MessageTypeData
	}

	query := `
		INSERT INTO messages (msg_id, msg_type, sender_id, recipient_id, content, sent_at, delivered)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		msg.MsgID,
		msgType,
		nullString(msg.SenderID),
		nullString(msg.RecipientID),
		msg.Content,
		msg.SentAt,
		boolToInt(msg.Delivered),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting message row id: %w", err)
	}
	msg.DBID = id

	s.logger.Debug("saved message", "msg_id", msg.MsgID, "recipient", msg.RecipientID, "type", msgType)
	return nil
}

// ListMessages retrieves messages newest first, capped at limit.
// When wsID is non-empty only messages where the connection is sender or
// recipient are returned; otherwise the most recent messages system-wide.
// If limit is 0 or negative, a default limit of 50 is used.
func (s *SQLiteStore) ListMessages(ctx context.Context, wsID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	var query string
	var args []any

	if wsID != "" {
		query = `
			SELECT id, msg_id, msg_type, sender_id, recipient_id, content, sent_at, delivered
			FROM messages
			WHERE recipient_id = ? OR sender_id = ?
			ORDER BY sent_at DESC, id DESC
			LIMIT ?
		`
		args = []any{wsID, wsID, limit}
	} else {
		query = `
			SELECT id, msg_id, msg_type, sender_id, recipient_id, content, sent_at, delivered
			FROM messages
			ORDER BY sent_at DESC, id DESC
			LIMIT ?
		`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var senderID, recipientID sql.NullString
		var delivered int

		if err := rows.Scan(
			&msg.DBID,
			&msg.MsgID,
			&msg.Type,
			&senderID,
			&recipientID,
			&msg.Content,
			&msg.SentAt,
			&delivered,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.SenderID = senderID.String
		msg.RecipientID = recipientID.String
		msg.Delivered = delivered != 0

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// CountConnections returns the number of connection rows ever created,
// including soft-deleted ones.
func (s *SQLiteStore) CountConnections(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting connections: %w", err)
	}
	return count, nil
}

// CountMessages returns the lifetime number of persisted messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullInt64 returns nil for absent values, otherwise the value itself
func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
