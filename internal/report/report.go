// ABOUTME: Read-only reporting over the ledger: message history and connection stats.
// ABOUTME: Aggregates store counts with the registry's live active set.

package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blackroad/ws-manager/internal/store"
)

// Registry defines what reporting needs from the connection registry.
type Registry interface {
	Count() int
	GetAll() []*store.Connection
}

// QueryStore defines what reporting needs from storage.
type QueryStore interface {
	ListMessages(ctx context.Context, wsID string, limit int) ([]*store.Message, error)
	CountConnections(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)
}

// Stats summarizes the ledger. Field names follow the stats command's JSON
// output.
type Stats struct {
	ActiveConnections  int            `json:"active_connections"`
	TotalEverConnected int64          `json:"total_ever_connected"`
	TotalMessages      int64          `json:"total_messages"`
	Agents             map[string]int `json:"agents"`
}

// Service answers read-only queries. It has no side effects on the ledger.
type Service struct {
	registry Registry
	store    QueryStore
	logger   *slog.Logger
}

// New creates a reporting Service.
func New(registry Registry, st QueryStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: registry,
		store:    st,
		logger:   logger.With("component", "report"),
	}
}

// MessageHistory returns the most recent messages, newest first, capped at
// limit. With a ws_id, only messages where that connection is sender or
// recipient are returned; the id may reference a disconnected or unknown
// connection since message rows outlive the sessions they mention.
func (s *Service) MessageHistory(ctx context.Context, wsID string, limit int) ([]*store.Message, error) {
	msgs, err := s.store.ListMessages(ctx, wsID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return msgs, nil
}

// ConnectionStats reports the active count from the registry, lifetime
// counts from store aggregates, and a per-agent map of currently active
// connections computed from the live set.
func (s *Service) ConnectionStats(ctx context.Context) (*Stats, error) {
	totalConns, err := s.store.CountConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting connections: %w", err)
	}
	totalMsgs, err := s.store.CountMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	agents := make(map[string]int)
	for _, c := range s.registry.GetAll() {
		agents[c.Agent]++
	}

	return &Stats{
		ActiveConnections:  s.registry.Count(),
		TotalEverConnected: totalConns,
		TotalMessages:      totalMsgs,
		Agents:             agents,
	}, nil
}
