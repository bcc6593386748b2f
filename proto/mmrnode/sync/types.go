// Package sync holds the request and response messages of the base node sync
// protocol; see sync.proto.
package sync

import (
	"github.com/gogo/protobuf/proto"

	types "github.com/mmrnode/mmrnode/proto/mmrnode/types"
)

type SyncBlocksRequest struct {
	StartHash []byte `protobuf:"bytes,1,opt,name=start_hash,json=startHash,proto3" json:"start_hash,omitempty"`
	EndHash   []byte `protobuf:"bytes,2,opt,name=end_hash,json=endHash,proto3" json:"end_hash,omitempty"`
	Count     uint64 `protobuf:"varint,3,opt,name=count,proto3" json:"count,omitempty"`
}

func (m *SyncBlocksRequest) Reset()         { *m = SyncBlocksRequest{} }
func (m *SyncBlocksRequest) String() string { return proto.CompactTextString(m) }
func (*SyncBlocksRequest) ProtoMessage()    {}

type SyncHeadersRequest struct {
	StartHash []byte `protobuf:"bytes,1,opt,name=start_hash,json=startHash,proto3" json:"start_hash,omitempty"`
	Count     uint64 `protobuf:"varint,2,opt,name=count,proto3" json:"count,omitempty"`
}

func (m *SyncHeadersRequest) Reset()         { *m = SyncHeadersRequest{} }
func (m *SyncHeadersRequest) String() string { return proto.CompactTextString(m) }
func (*SyncHeadersRequest) ProtoMessage()    {}

type GetHeaderByHeightRequest struct {
	Height uint64 `protobuf:"varint,1,opt,name=height,proto3" json:"height,omitempty"`
}

func (m *GetHeaderByHeightRequest) Reset()         { *m = GetHeaderByHeightRequest{} }
func (m *GetHeaderByHeightRequest) String() string { return proto.CompactTextString(m) }
func (*GetHeaderByHeightRequest) ProtoMessage()    {}

type FindChainSplitRequest struct {
	BlockHashes [][]byte `protobuf:"bytes,1,rep,name=block_hashes,json=blockHashes,proto3" json:"block_hashes,omitempty"`
	HeaderCount uint64   `protobuf:"varint,2,opt,name=header_count,json=headerCount,proto3" json:"header_count,omitempty"`
}

func (m *FindChainSplitRequest) Reset()         { *m = FindChainSplitRequest{} }
func (m *FindChainSplitRequest) String() string { return proto.CompactTextString(m) }
func (*FindChainSplitRequest) ProtoMessage()    {}

type FindChainSplitResponse struct {
	FoundHashIndex uint64               `protobuf:"varint,1,opt,name=found_hash_index,json=foundHashIndex,proto3" json:"found_hash_index,omitempty"`
	Headers        []*types.BlockHeader `protobuf:"bytes,2,rep,name=headers,proto3" json:"headers,omitempty"`
	TipHeight      uint64               `protobuf:"varint,3,opt,name=tip_height,json=tipHeight,proto3" json:"tip_height,omitempty"`
}

func (m *FindChainSplitResponse) Reset()         { *m = FindChainSplitResponse{} }
func (m *FindChainSplitResponse) String() string { return proto.CompactTextString(m) }
func (*FindChainSplitResponse) ProtoMessage()    {}

type GetChainMetadataRequest struct{}

func (m *GetChainMetadataRequest) Reset()         { *m = GetChainMetadataRequest{} }
func (m *GetChainMetadataRequest) String() string { return proto.CompactTextString(m) }
func (*GetChainMetadataRequest) ProtoMessage()    {}

func init() {
	proto.RegisterType((*SyncBlocksRequest)(nil), "mmrnode.sync.SyncBlocksRequest")
	proto.RegisterType((*SyncHeadersRequest)(nil), "mmrnode.sync.SyncHeadersRequest")
	proto.RegisterType((*GetHeaderByHeightRequest)(nil), "mmrnode.sync.GetHeaderByHeightRequest")
	proto.RegisterType((*FindChainSplitRequest)(nil), "mmrnode.sync.FindChainSplitRequest")
	proto.RegisterType((*FindChainSplitResponse)(nil), "mmrnode.sync.FindChainSplitResponse")
	proto.RegisterType((*GetChainMetadataRequest)(nil), "mmrnode.sync.GetChainMetadataRequest")
}
