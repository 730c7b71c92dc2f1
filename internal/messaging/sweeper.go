// ABOUTME: Point-in-time heartbeat sweep over the active connection set.
// ABOUTME: Evicts connections whose last heartbeat predates the cutoff.

package messaging

import (
	"context"
	"fmt"
	"time"
)

// SweepResult reports the outcome of one heartbeat sweep.
type SweepResult struct {
	Active   []string
	TimedOut []string
}

// HeartbeatCheck scans the active set and evicts every connection whose last
// heartbeat is older than now minus timeout. A last_heartbeat value that does
// not parse is treated as now: malformed ledger data keeps a connection
// alive, it never times it out. This is a single sweep, not a timer; the
// caller invokes it periodically.
func (s *Service) HeartbeatCheck(ctx context.Context, timeout time.Duration) (*SweepResult, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-timeout)

	result := &SweepResult{
		Active:   []string{},
		TimedOut: []string{},
	}

	for _, conn := range s.registry.GetAll() {
		last, err := time.Parse(time.RFC3339, conn.LastHeartbeat)
		if err != nil {
			last = now
		}

		if last.Before(cutoff) {
			if _, err := s.registry.Remove(ctx, conn.WSID); err != nil {
				return result, fmt.Errorf("evicting %s: %w", conn.WSID, err)
			}
			result.TimedOut = append(result.TimedOut, conn.WSID)
		} else {
			result.Active = append(result.Active, conn.WSID)
		}
	}

	if len(result.TimedOut) > 0 {
		s.logger.Info("heartbeat sweep evicted connections",
			"timed_out", len(result.TimedOut),
			"active", len(result.Active),
			"timeout", timeout,
		)
	}
	return result, nil
}
