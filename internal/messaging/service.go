// ABOUTME: Broadcast and direct-send operations over the connection registry.
// ABOUTME: Computes target sets, persists message records and bumps per-connection counters.

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/blackroad/ws-manager/internal/store"
)

// Registry defines what the messaging layer needs from the connection
// registry.
type Registry interface {
	Get(wsID string) (*store.Connection, bool)
	GetAll() []*store.Connection
	Remove(ctx context.Context, wsID string) (bool, error)
	IncrementMessageCount(ctx context.Context, wsID string) error
}

// MessageStore defines what the messaging layer needs from storage.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
}

// Service implements broadcast, direct send and the heartbeat sweep.
type Service struct {
	registry Registry
	store    MessageStore
	logger   *slog.Logger
}

// New creates a messaging Service.
func New(registry Registry, st MessageStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		store:    st,
		logger:   logger.With("component", "messaging"),
	}
}

// Broadcast fans content out to every active connection, optionally narrowed
// by filter. For each target a message record is persisted with
// delivered=true and the target's message counter is incremented; that pair
// is one unit per target, but the broadcast as a whole is best-effort, so a
// mid-broadcast failure leaves the already-written targets in place and is
// returned alongside them. The target order is the registry snapshot order
// (sorted by ws_id), deterministic for a given call.
//
// Returns the ws_ids that were targeted.
func (s *Service) Broadcast(ctx context.Context, content any, filter Filter, msgType, senderID string) ([]string, error) {
	contentStr, err := encodeContent(content)
	if err != nil {
		return nil, err
	}
	if msgType == "" {
		msgType = store.MessageTypeBroadcast
	}

	targets := s.registry.GetAll()
	delivered := make([]string, 0, len(targets))

	for _, conn := range targets {
		if filter != nil && !filter.Matches(conn) {
			continue
		}
		if err := s.record(ctx, conn.WSID, contentStr, msgType, senderID); err != nil {
			return delivered, fmt.Errorf("broadcasting to %s: %w", conn.WSID, err)
		}
		delivered = append(delivered, conn.WSID)
	}

	s.logger.Info("broadcast complete",
		"targets", len(delivered),
		"type", msgType,
	)
	return delivered, nil
}

// Send records content against a single active connection. Returns
// ok=false without persisting anything when the id has no active entry.
// There is no implicit retry.
func (s *Service) Send(ctx context.Context, wsID string, content any, msgType, senderID string) (*store.Message, bool, error) {
	if _, active := s.registry.Get(wsID); !active {
		return nil, false, nil
	}

	contentStr, err := encodeContent(content)
	if err != nil {
		return nil, false, err
	}
	if msgType == "" {
		msgType = store.MessageTypeData
	}

	msg := newMessage(wsID, contentStr, msgType, senderID)
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, false, fmt.Errorf("sending to %s: %w", wsID, err)
	}
	if err := s.registry.IncrementMessageCount(ctx, wsID); err != nil {
		return nil, false, fmt.Errorf("sending to %s: %w", wsID, err)
	}

	s.logger.Debug("message sent", "msg_id", msg.MsgID, "ws_id", wsID, "type", msgType)
	return msg, true, nil
}

// record persists one message and bumps the target's counter.
func (s *Service) record(ctx context.Context, wsID, content, msgType, senderID string) error {
	if err := s.store.SaveMessage(ctx, newMessage(wsID, content, msgType, senderID)); err != nil {
		return err
	}
	return s.registry.IncrementMessageCount(ctx, wsID)
}

func newMessage(recipientID, content, msgType, senderID string) *store.Message {
	return &store.Message{
		MsgID:       uuid.New().String(),
		Type:        msgType,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		SentAt:      store.NowRFC3339(),
		// No transport exists to confirm delivery asynchronously, so a
		// persisted message counts as delivered.
		Delivered: true,
	}
}

// encodeContent serializes non-text content to JSON exactly once. A string
// is stored verbatim: pre-serialized payloads must never be double-encoded.
func encodeContent(content any) (string, error) {
	if s, ok := content.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encoding message content: %w", err)
	}
	return string(data), nil
}
