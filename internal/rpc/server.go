package rpc

import (
	"context"
	"fmt"
	"net"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/blocksync"
	"github.com/mmrnode/mmrnode/libs/log"
	"github.com/mmrnode/mmrnode/libs/service"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
	"github.com/mmrnode/mmrnode/types"
)

// Server serves the BaseNodeSync service from a Responder.
type Server struct {
	service.BaseService
	logger log.Logger

	cfg      *config.RPCConfig
	grpc     *grpc.Server
	listener net.Listener
}

// ServerOption sets an optional parameter on the Server.
type ServerOption func(*Server)

// WithListener makes the server accept connections from ln instead of
// listening on the configured address.
func WithListener(ln net.Listener) ServerOption {
	return func(s *Server) { s.listener = ln }
}

// NewServer returns a Server answering requests with r. Handler panics are
// turned into Internal errors.
func NewServer(logger log.Logger, cfg *config.RPCConfig, r *blocksync.Responder, opts ...ServerOption) *Server {
	recovery := grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
		logger.Error("panic in sync handler", "panic", p)
		return status.Errorf(codes.Internal, "panic: %v", p)
	})

	grpcOpts := []grpc.ServerOption{
		grpc.ForceServerCodec(codec{}),
		grpc_middleware.WithUnaryServerChain(
			grpc_prometheus.UnaryServerInterceptor,
			grpc_recovery.UnaryServerInterceptor(recovery),
		),
		grpc_middleware.WithStreamServerChain(
			grpc_prometheus.StreamServerInterceptor,
			grpc_recovery.StreamServerInterceptor(recovery),
		),
	}
	if cfg.MaxRecvMsgSize > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.MaxSendMsgSize > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxSendMsgSize(cfg.MaxSendMsgSize))
	}
	if cfg.MaxConcurrentStreams > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams))
	}

	s := &Server{
		logger: logger,
		cfg:    cfg,
		grpc:   grpc.NewServer(grpcOpts...),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.grpc.RegisterService(&serviceDesc, &syncService{responder: r})
	grpc_prometheus.Register(s.grpc)

	s.BaseService = *service.NewBaseService(logger, "SyncRPC", s)
	return s
}

// OnStart implements service.Service.
func (s *Server) OnStart(ctx context.Context) error {
	if s.listener == nil {
		network, addr, err := config.ParseListenAddress(s.cfg.ListenAddress)
		if err != nil {
			return err
		}
		ln, err := net.Listen(network, addr)
		if err != nil {
			return fmt.Errorf("listen on %v: %w", s.cfg.ListenAddress, err)
		}
		s.listener = ln
	}
	s.logger.Info("serving sync requests", "addr", s.listener.Addr())

	go func() {
		if err := s.grpc.Serve(s.listener); err != nil {
			s.logger.Error("sync server stopped", "err", err)
		}
	}()
	return nil
}

// OnStop implements service.Service. Open streams are canceled.
func (s *Server) OnStop() {
	s.grpc.Stop()
}

// Addr returns the address the server accepts connections on, or nil if it
// was not started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

type syncService struct {
	responder *blocksync.Responder
}

var _ baseNodeSyncServer = (*syncService)(nil)

func (s *syncService) SyncBlocks(req *syncproto.SyncBlocksRequest, stream grpc.ServerStream) error {
	err := s.responder.SyncBlocks(stream.Context(), req, func(b *types.Block) error {
		return stream.SendMsg(b.ToProto())
	})
	return toStatus(err)
}

func (s *syncService) SyncHeaders(req *syncproto.SyncHeadersRequest, stream grpc.ServerStream) error {
	err := s.responder.SyncHeaders(stream.Context(), req, func(h *types.BlockHeader) error {
		return stream.SendMsg(h.ToProto())
	})
	return toStatus(err)
}

func (s *syncService) GetHeaderByHeight(
	_ context.Context,
	req *syncproto.GetHeaderByHeightRequest,
) (*typesproto.BlockHeader, error) {
	h, err := s.responder.GetHeaderByHeight(req.Height)
	if err != nil {
		return nil, toStatus(err)
	}
	return h.ToProto(), nil
}

func (s *syncService) FindChainSplit(
	_ context.Context,
	req *syncproto.FindChainSplitRequest,
) (*syncproto.FindChainSplitResponse, error) {
	split, err := s.responder.FindChainSplit(req)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &syncproto.FindChainSplitResponse{
		FoundHashIndex: split.FoundHashIndex,
		Headers:        make([]*typesproto.BlockHeader, len(split.Headers)),
		TipHeight:      split.TipHeight,
	}
	for i, h := range split.Headers {
		resp.Headers[i] = h.ToProto()
	}
	return resp, nil
}

func (s *syncService) GetChainMetadata(
	context.Context,
	*syncproto.GetChainMetadataRequest,
) (*typesproto.ChainMetadata, error) {
	meta, err := s.responder.GetChainMetadata()
	if err != nil {
		return nil, toStatus(err)
	}
	return meta.ToProto(), nil
}
