package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/mmrnode/mmrnode/internal/blocksync"
)

// PeerAddress is a sync peer given as id@host:port.
type PeerAddress struct {
	ID   blocksync.PeerID
	Addr string
}

func (p PeerAddress) String() string { return fmt.Sprintf("%s@%s", p.ID, p.Addr) }

// ParsePeerAddress parses an id@host:port peer address.
func ParsePeerAddress(s string) (PeerAddress, error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return PeerAddress{}, fmt.Errorf("peer address %q: expected id@host:port", s)
	}
	host, port, err := net.SplitHostPort(parts[1])
	if err != nil {
		return PeerAddress{}, fmt.Errorf("peer address %q: %w", s, err)
	}
	if host == "" || port == "" {
		return PeerAddress{}, fmt.Errorf("peer address %q: missing host or port", s)
	}
	return PeerAddress{ID: blocksync.PeerID(parts[0]), Addr: parts[1]}, nil
}

// ParsePeers parses a comma separated list of peer addresses. Blank entries
// are skipped, duplicate IDs are rejected.
func ParsePeers(list string) ([]PeerAddress, error) {
	var peers []PeerAddress
	seen := make(map[blocksync.PeerID]bool)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		p, err := ParsePeerAddress(item)
		if err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate peer id %q", p.ID)
		}
		seen[p.ID] = true
		peers = append(peers, p)
	}
	return peers, nil
}

// DialPeers connects to every peer. Connections are established lazily, so
// an unreachable peer only fails once it is synced from. The returned
// function closes all connections.
func DialPeers(
	ctx context.Context,
	peers []PeerAddress,
	timeout time.Duration,
	opts ...grpc.DialOption,
) ([]blocksync.SyncPeer, func() error, error) {
	conns := make([]*grpc.ClientConn, 0, len(peers))
	closeAll := func() error {
		var errs []string
		for _, conn := range conns {
			if err := conn.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return errors.New(strings.Join(errs, "; "))
		}
		return nil
	}

	out := make([]blocksync.SyncPeer, 0, len(peers))
	for _, p := range peers {
		conn, err := grpc.DialContext(ctx, p.Addr, DialOptions(opts...)...)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("dial %v: %w", p, err)
		}
		conns = append(conns, conn)
		out = append(out, blocksync.SyncPeer{ID: p.ID, Client: NewClient(conn, timeout)})
	}
	return out, closeAll, nil
}
