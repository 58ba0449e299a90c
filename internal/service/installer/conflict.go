package installer

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/hendriksen-mark/server-installer/internal/domain/install"
	"github.com/hendriksen-mark/server-installer/internal/logger"
)

// listenState is the socket state of a bound listening port.
const listenState = "LISTEN"

// connectionsFunc inspects the host's socket table. Swappable in tests.
type connectionsFunc func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)

// ConflictChecker inspects host resource usage before destructive action.
// It is consulted only on fresh installs: an upgrade already owns the ports
// through the service being replaced.
type ConflictChecker struct {
	connections connectionsFunc
}

// NewConflictChecker creates a checker backed by the host's socket table.
func NewConflictChecker() *ConflictChecker {
	return &ConflictChecker{
		connections: psnet.ConnectionsWithContext,
	}
}

// CheckPortsFree fails with PortInUseError naming the first reserved port
// found in listening state. A failure here must abort the run before any
// filesystem mutation.
func (c *ConflictChecker) CheckPortsFree(ctx context.Context, ports []uint32) error {
	connections, err := c.connections(ctx, "tcp")
	if err != nil {
		return fmt.Errorf("inspect listening sockets: %w", err)
	}

	reserved := make(map[uint32]struct{}, len(ports))
	for _, port := range ports {
		reserved[port] = struct{}{}
	}

	for _, connection := range connections {
		if connection.Status != listenState {
			continue
		}

		if _, found := reserved[connection.Laddr.Port]; found {
			return &install.PortInUseError{Port: connection.Laddr.Port}
		}
	}

	logger.InfoKV(ctx, "Reserved ports are free", "ports", ports)

	return nil
}
