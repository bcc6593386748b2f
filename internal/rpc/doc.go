/*
Package rpc carries the sync protocol over gRPC.

Server exposes a blocksync.Responder as the mmrnode.sync.BaseNodeSync
service. Client implements blocksync.SyncClient on top of a connection to
such a server, so the synchronizers run unchanged against remote peers:

	peers, err := rpc.ParsePeers(cfg.Sync.Peers)
	...
	syncPeers, closeConns, err := rpc.DialPeers(ctx, peers, cfg.Sync.RPCTimeout)
	...
	connectivity := blocksync.NewStaticPeers(syncPeers...)

Messages are encoded with gogo protobuf. Responder errors travel as gRPC
status codes: NotFound and InvalidArgument keep their meaning, everything
else surfaces as blocksync.ErrConnectivity on the client.
*/
package rpc
