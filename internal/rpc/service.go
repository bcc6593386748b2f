package rpc

import (
	"context"

	"google.golang.org/grpc"

	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
)

const (
	serviceName = "mmrnode.sync.BaseNodeSync"

	methodSyncBlocks        = "/" + serviceName + "/SyncBlocks"
	methodSyncHeaders       = "/" + serviceName + "/SyncHeaders"
	methodGetHeaderByHeight = "/" + serviceName + "/GetHeaderByHeight"
	methodFindChainSplit    = "/" + serviceName + "/FindChainSplit"
	methodGetChainMetadata  = "/" + serviceName + "/GetChainMetadata"
)

// baseNodeSyncServer is the server API of the BaseNodeSync service.
type baseNodeSyncServer interface {
	SyncBlocks(*syncproto.SyncBlocksRequest, grpc.ServerStream) error
	SyncHeaders(*syncproto.SyncHeadersRequest, grpc.ServerStream) error
	GetHeaderByHeight(context.Context, *syncproto.GetHeaderByHeightRequest) (*typesproto.BlockHeader, error)
	FindChainSplit(context.Context, *syncproto.FindChainSplitRequest) (*syncproto.FindChainSplitResponse, error)
	GetChainMetadata(context.Context, *syncproto.GetChainMetadataRequest) (*typesproto.ChainMetadata, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*baseNodeSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetHeaderByHeight",
			Handler: unaryHandler(methodGetHeaderByHeight,
				func() interface{} { return new(syncproto.GetHeaderByHeightRequest) },
				func(srv baseNodeSyncServer, ctx context.Context, req interface{}) (interface{}, error) {
					return srv.GetHeaderByHeight(ctx, req.(*syncproto.GetHeaderByHeightRequest))
				}),
		},
		{
			MethodName: "FindChainSplit",
			Handler: unaryHandler(methodFindChainSplit,
				func() interface{} { return new(syncproto.FindChainSplitRequest) },
				func(srv baseNodeSyncServer, ctx context.Context, req interface{}) (interface{}, error) {
					return srv.FindChainSplit(ctx, req.(*syncproto.FindChainSplitRequest))
				}),
		},
		{
			MethodName: "GetChainMetadata",
			Handler: unaryHandler(methodGetChainMetadata,
				func() interface{} { return new(syncproto.GetChainMetadataRequest) },
				func(srv baseNodeSyncServer, ctx context.Context, req interface{}) (interface{}, error) {
					return srv.GetChainMetadata(ctx, req.(*syncproto.GetChainMetadataRequest))
				}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "SyncBlocks",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				req := new(syncproto.SyncBlocksRequest)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(baseNodeSyncServer).SyncBlocks(req, stream)
			},
			ServerStreams: true,
		},
		{
			StreamName: "SyncHeaders",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				req := new(syncproto.SyncHeadersRequest)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(baseNodeSyncServer).SyncHeaders(req, stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "mmrnode/sync/sync.proto",
}

var (
	syncBlocksStreamDesc  = &serviceDesc.Streams[0]
	syncHeadersStreamDesc = &serviceDesc.Streams[1]
)

func unaryHandler(
	method string,
	newReq func() interface{},
	call func(srv baseNodeSyncServer, ctx context.Context, req interface{}) (interface{}, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(baseNodeSyncServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(baseNodeSyncServer), ctx, req)
		}
		return interceptor(ctx, req, info, handler)
	}
}
