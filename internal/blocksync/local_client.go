package blocksync

import (
	"context"
	"io"

	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

// localClient is a SyncClient calling a Responder in the same process. Each
// stream is produced by its own goroutine, the way a server produces it.
type localClient struct {
	responder *Responder
}

// NewLocalClient returns a SyncClient served by r.
func NewLocalClient(r *Responder) SyncClient {
	return &localClient{responder: r}
}

// localStream hands the items of a stream from the producing goroutine to
// the receiver. err is set before items is closed.
type localStream struct {
	ctx   context.Context
	items chan interface{}
	err   error
}

func newLocalStream(ctx context.Context) *localStream {
	return &localStream{ctx: ctx, items: make(chan interface{})}
}

func (s *localStream) send(v interface{}) error {
	select {
	case s.items <- v:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *localStream) finish(err error) {
	s.err = err
	close(s.items)
}

func (s *localStream) recv() (interface{}, error) {
	select {
	case v, ok := <-s.items:
		if ok {
			return v, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

type localBlockStream struct{ *localStream }

func (s localBlockStream) Recv() (*types.Block, error) {
	v, err := s.recv()
	if err != nil {
		return nil, err
	}
	return v.(*types.Block), nil
}

type localHeaderStream struct{ *localStream }

func (s localHeaderStream) Recv() (*types.BlockHeader, error) {
	v, err := s.recv()
	if err != nil {
		return nil, err
	}
	return v.(*types.BlockHeader), nil
}

func (c *localClient) SyncBlocks(ctx context.Context, req *syncproto.SyncBlocksRequest) (BlockStream, error) {
	s := newLocalStream(ctx)
	go func() {
		s.finish(c.responder.SyncBlocks(ctx, req, func(b *types.Block) error { return s.send(b) }))
	}()
	return localBlockStream{s}, nil
}

func (c *localClient) SyncHeaders(ctx context.Context, req *syncproto.SyncHeadersRequest) (HeaderStream, error) {
	s := newLocalStream(ctx)
	go func() {
		s.finish(c.responder.SyncHeaders(ctx, req, func(h *types.BlockHeader) error { return s.send(h) }))
	}()
	return localHeaderStream{s}, nil
}

func (c *localClient) GetHeaderByHeight(ctx context.Context, height uint64) (*types.BlockHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.responder.GetHeaderByHeight(height)
}

func (c *localClient) FindChainSplit(ctx context.Context, req *syncproto.FindChainSplitRequest) (*ChainSplit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.responder.FindChainSplit(req)
}

func (c *localClient) GetChainMetadata(ctx context.Context) (*types.ChainMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.responder.GetChainMetadata()
}
