package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	grpc_retry "github.com/grpc-ecosystem/go-grpc-middleware/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/mmrnode/mmrnode/internal/blocksync"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
	"github.com/mmrnode/mmrnode/types"
)

// DialOptions returns the options sync connections are dialed with, followed
// by extraOpts. Unary calls are retried while the peer is unavailable.
func DialOptions(extraOpts ...grpc.DialOption) []grpc.DialOption {
	const (
		retries            = 3
		backoff            = 100 * time.Millisecond
		maxCallRecvMsgSize = 16 << 20
	)

	kacp := keepalive.ClientParameters{
		Time:    30 * time.Second,
		Timeout: 5 * time.Second,
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(codec{}),
			grpc.MaxCallRecvMsgSize(maxCallRecvMsgSize),
		),
		grpc.WithUnaryInterceptor(grpc_retry.UnaryClientInterceptor(
			grpc_retry.WithMax(retries),
			grpc_retry.WithBackoff(grpc_retry.BackoffExponential(backoff)),
			grpc_retry.WithCodes(codes.Unavailable),
		)),
	}
	return append(opts, extraOpts...)
}

// Client is a blocksync.SyncClient talking to a peer over gRPC. Every call
// and every receive on a stream must complete within the timeout.
type Client struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

var _ blocksync.SyncClient = (*Client)(nil)

func NewClient(conn grpc.ClientConnInterface, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fromStatus(c.conn.Invoke(ctx, method, req, resp))
}

func (c *Client) GetHeaderByHeight(ctx context.Context, height uint64) (*types.BlockHeader, error) {
	resp := new(typesproto.BlockHeader)
	if err := c.invoke(ctx, methodGetHeaderByHeight, &syncproto.GetHeaderByHeightRequest{Height: height}, resp); err != nil {
		return nil, err
	}
	h, err := types.BlockHeaderFromProto(resp)
	if err != nil {
		return nil, malformed(err)
	}
	return h, nil
}

func (c *Client) FindChainSplit(ctx context.Context, req *syncproto.FindChainSplitRequest) (*blocksync.ChainSplit, error) {
	resp := new(syncproto.FindChainSplitResponse)
	if err := c.invoke(ctx, methodFindChainSplit, req, resp); err != nil {
		return nil, err
	}
	split := &blocksync.ChainSplit{
		FoundHashIndex: resp.FoundHashIndex,
		Headers:        make([]*types.BlockHeader, len(resp.Headers)),
		TipHeight:      resp.TipHeight,
	}
	for i, ph := range resp.Headers {
		h, err := types.BlockHeaderFromProto(ph)
		if err != nil {
			return nil, malformed(err)
		}
		split.Headers[i] = h
	}
	return split, nil
}

func (c *Client) GetChainMetadata(ctx context.Context) (*types.ChainMetadata, error) {
	resp := new(typesproto.ChainMetadata)
	if err := c.invoke(ctx, methodGetChainMetadata, &syncproto.GetChainMetadataRequest{}, resp); err != nil {
		return nil, err
	}
	meta, err := types.ChainMetadataFromProto(resp)
	if err != nil {
		return nil, malformed(err)
	}
	return meta, nil
}

func (c *Client) SyncBlocks(ctx context.Context, req *syncproto.SyncBlocksRequest) (blocksync.BlockStream, error) {
	s, err := c.openStream(ctx, syncBlocksStreamDesc, methodSyncBlocks, req)
	if err != nil {
		return nil, err
	}
	return blockStream{s}, nil
}

func (c *Client) SyncHeaders(ctx context.Context, req *syncproto.SyncHeadersRequest) (blocksync.HeaderStream, error) {
	s, err := c.openStream(ctx, syncHeadersStreamDesc, methodSyncHeaders, req)
	if err != nil {
		return nil, err
	}
	return headerStream{s}, nil
}

func (c *Client) openStream(ctx context.Context, desc *grpc.StreamDesc, method string, req interface{}) (*recvStream, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &recvStream{cancel: cancel, timeout: c.timeout}
	s.timer = time.AfterFunc(c.timeout, s.expire)

	stream, err := c.conn.NewStream(sctx, desc, method)
	if err == nil {
		err = stream.SendMsg(req)
	}
	if err == nil {
		err = stream.CloseSend()
	}
	if err != nil {
		s.close()
		return nil, s.mapErr(err)
	}
	s.timer.Stop()
	s.stream = stream
	return s, nil
}

// recvStream is a server stream whose receives time out individually. The
// time between two receives is not limited.
type recvStream struct {
	stream  grpc.ClientStream
	cancel  context.CancelFunc
	timer   *time.Timer
	timeout time.Duration
	expired int32
}

func (s *recvStream) expire() {
	atomic.StoreInt32(&s.expired, 1)
	s.cancel()
}

func (s *recvStream) close() {
	s.timer.Stop()
	s.cancel()
}

func (s *recvStream) mapErr(err error) error {
	if atomic.LoadInt32(&s.expired) == 1 {
		return fmt.Errorf("%w: no answer within %v", blocksync.ErrConnectivity, s.timeout)
	}
	return fromStatus(err)
}

func (s *recvStream) recv(m interface{}) error {
	s.timer.Reset(s.timeout)
	err := s.stream.RecvMsg(m)
	if err == nil {
		s.timer.Stop()
		return nil
	}
	s.close()
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return s.mapErr(err)
}

type blockStream struct{ *recvStream }

func (s blockStream) Recv() (*types.Block, error) {
	pb := new(typesproto.Block)
	if err := s.recv(pb); err != nil {
		return nil, err
	}
	b, err := types.BlockFromProto(pb)
	if err != nil {
		s.close()
		return nil, malformed(err)
	}
	return b, nil
}

type headerStream struct{ *recvStream }

func (s headerStream) Recv() (*types.BlockHeader, error) {
	ph := new(typesproto.BlockHeader)
	if err := s.recv(ph); err != nil {
		return nil, err
	}
	h, err := types.BlockHeaderFromProto(ph)
	if err != nil {
		s.close()
		return nil, malformed(err)
	}
	return h, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: malformed message: %v", blocksync.ErrProtocol, err)
}
