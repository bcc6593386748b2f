package blocksync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/libs/log"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

// PeerID identifies a sync peer.
type PeerID string

// BlockStream receives the blocks of a SyncBlocks request in order. Recv
// returns io.EOF after the last block.
type BlockStream interface {
	Recv() (*types.Block, error)
}

// HeaderStream receives the headers of a SyncHeaders request in order. Recv
// returns io.EOF after the last header.
type HeaderStream interface {
	Recv() (*types.BlockHeader, error)
}

// ChainSplit is a peer's answer to a FindChainSplit request.
type ChainSplit struct {
	// FoundHashIndex is the index of the first locator hash on the peer's
	// chain.
	FoundHashIndex uint64
	// Headers follow the found hash on the peer's chain.
	Headers   []*types.BlockHeader
	TipHeight uint64
}

// SyncClient is the sync protocol as seen from the requesting side. Streams
// end when ctx is canceled.
type SyncClient interface {
	SyncBlocks(ctx context.Context, req *syncproto.SyncBlocksRequest) (BlockStream, error)
	SyncHeaders(ctx context.Context, req *syncproto.SyncHeadersRequest) (HeaderStream, error)
	GetHeaderByHeight(ctx context.Context, height uint64) (*types.BlockHeader, error)
	FindChainSplit(ctx context.Context, req *syncproto.FindChainSplitRequest) (*ChainSplit, error)
	GetChainMetadata(ctx context.Context) (*types.ChainMetadata, error)
}

// SyncPeer is a peer and the client to reach it.
type SyncPeer struct {
	ID     PeerID
	Client SyncClient
}

// PeerConnectivity selects the peers to sync from.
type PeerConnectivity interface {
	// SyncPeers returns the peers that may be synced from, best first.
	SyncPeers(ctx context.Context) ([]SyncPeer, error)
	// BanPeer excludes a peer from SyncPeers for the given period.
	BanPeer(id PeerID, reason string, period time.Duration)
}

// StaticPeers is a PeerConnectivity over a fixed set of peers, in the order
// they were given.
type StaticPeers struct {
	mtx   sync.Mutex
	peers []SyncPeer
	bans  map[PeerID]time.Time
	now   func() time.Time
}

var _ PeerConnectivity = (*StaticPeers)(nil)

func NewStaticPeers(peers ...SyncPeer) *StaticPeers {
	return &StaticPeers{
		peers: peers,
		bans:  make(map[PeerID]time.Time),
		now:   time.Now,
	}
}

func (p *StaticPeers) SyncPeers(ctx context.Context) ([]SyncPeer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()

	now := p.now()
	out := make([]SyncPeer, 0, len(p.peers))
	for _, peer := range p.peers {
		if until, ok := p.bans[peer.ID]; ok {
			if now.Before(until) {
				continue
			}
			delete(p.bans, peer.ID)
		}
		out = append(out, peer)
	}
	return out, nil
}

func (p *StaticPeers) BanPeer(id PeerID, reason string, period time.Duration) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.bans[id] = p.now().Add(period)
}

// Banned returns the currently banned peers, sorted.
func (p *StaticPeers) Banned() []PeerID {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	now := p.now()
	out := make([]PeerID, 0, len(p.bans))
	for id, until := range p.bans {
		if now.Before(until) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// banPolicy decides what a failed session means for the peer it ran with.
type banPolicy struct {
	cfg     *config.SyncConfig
	peers   PeerConnectivity
	metrics *Metrics
}

// next reports whether the session should move on to the next peer after
// err. Peers that sent invalid data are banned if the configuration says
// so; only protocol violations move on to the next peer, other invalid data
// ends the session.
func (p banPolicy) next(logger log.Logger, id PeerID, err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, store.ErrStorage):
		return false
	case isPeerMisbehavior(err):
		if p.cfg.BanOnChainLinkageFailure {
			logger.Error("banning sync peer", "peer", id, "err", err, "period", p.cfg.BanPeriod)
			p.peers.BanPeer(id, err.Error(), p.cfg.BanPeriod)
			p.metrics.PeerFailures.With("banned", "true").Add(1)
		} else {
			logger.Error("sync peer sent invalid data", "peer", id, "err", err)
			p.metrics.PeerFailures.With("banned", "false").Add(1)
		}
		return errors.Is(err, ErrProtocol)
	case errors.Is(err, ErrConnectivity),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPeerChainNotHeavier):
		logger.Info("sync with peer failed, trying next", "peer", id, "err", err)
		p.metrics.PeerFailures.With("banned", "false").Add(1)
		return true
	}
	return false
}
