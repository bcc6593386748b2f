// Package store holds the records the block store persists besides the wire
// messages; see types.proto.
package store

import (
	"github.com/gogo/protobuf/proto"

	types "github.com/mmrnode/mmrnode/proto/mmrnode/types"
)

type AccumulatedHeaderData struct {
	Hash                         []byte `protobuf:"bytes,1,opt,name=hash,proto3" json:"hash,omitempty"`
	TotalKernelOffset            []byte `protobuf:"bytes,2,opt,name=total_kernel_offset,json=totalKernelOffset,proto3" json:"total_kernel_offset,omitempty"`
	AchievedDifficulty           uint64 `protobuf:"varint,3,opt,name=achieved_difficulty,json=achievedDifficulty,proto3" json:"achieved_difficulty,omitempty"`
	TargetDifficulty             uint64 `protobuf:"varint,4,opt,name=target_difficulty,json=targetDifficulty,proto3" json:"target_difficulty,omitempty"`
	AccumulatedSha3xDifficulty   []byte `protobuf:"bytes,5,opt,name=accumulated_sha3x_difficulty,json=accumulatedSha3xDifficulty,proto3" json:"accumulated_sha3x_difficulty,omitempty"`
	AccumulatedBlake2bDifficulty []byte `protobuf:"bytes,6,opt,name=accumulated_blake2b_difficulty,json=accumulatedBlake2bDifficulty,proto3" json:"accumulated_blake2b_difficulty,omitempty"`
	TotalAccumulatedDifficulty   []byte `protobuf:"bytes,7,opt,name=total_accumulated_difficulty,json=totalAccumulatedDifficulty,proto3" json:"total_accumulated_difficulty,omitempty"`
}

func (m *AccumulatedHeaderData) Reset()         { *m = AccumulatedHeaderData{} }
func (m *AccumulatedHeaderData) String() string { return proto.CompactTextString(m) }
func (*AccumulatedHeaderData) ProtoMessage()    {}

type ChainHeader struct {
	Header      *types.BlockHeader     `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
	Accumulated *AccumulatedHeaderData `protobuf:"bytes,2,opt,name=accumulated,proto3" json:"accumulated,omitempty"`
}

func (m *ChainHeader) Reset()         { *m = ChainHeader{} }
func (m *ChainHeader) String() string { return proto.CompactTextString(m) }
func (*ChainHeader) ProtoMessage()    {}

type PrunedHashSet struct {
	Size  uint64   `protobuf:"varint,1,opt,name=size,proto3" json:"size,omitempty"`
	Peaks [][]byte `protobuf:"bytes,2,rep,name=peaks,proto3" json:"peaks,omitempty"`
}

func (m *PrunedHashSet) Reset()         { *m = PrunedHashSet{} }
func (m *PrunedHashSet) String() string { return proto.CompactTextString(m) }
func (*PrunedHashSet) ProtoMessage()    {}

type BlockAccumulatedData struct {
	Kernels     *PrunedHashSet `protobuf:"bytes,1,opt,name=kernels,proto3" json:"kernels,omitempty"`
	Outputs     *PrunedHashSet `protobuf:"bytes,2,opt,name=outputs,proto3" json:"outputs,omitempty"`
	RangeProofs *PrunedHashSet `protobuf:"bytes,3,opt,name=range_proofs,json=rangeProofs,proto3" json:"range_proofs,omitempty"`
	Deleted     []byte         `protobuf:"bytes,4,opt,name=deleted,proto3" json:"deleted,omitempty"`
	KernelSum   []byte         `protobuf:"bytes,5,opt,name=kernel_sum,json=kernelSum,proto3" json:"kernel_sum,omitempty"`
	UtxoSum     []byte         `protobuf:"bytes,6,opt,name=utxo_sum,json=utxoSum,proto3" json:"utxo_sum,omitempty"`
}

func (m *BlockAccumulatedData) Reset()         { *m = BlockAccumulatedData{} }
func (m *BlockAccumulatedData) String() string { return proto.CompactTextString(m) }
func (*BlockAccumulatedData) ProtoMessage()    {}

type MerkleCheckpoint struct {
	NodesAdded                 [][]byte `protobuf:"bytes,1,rep,name=nodes_added,json=nodesAdded,proto3" json:"nodes_added,omitempty"`
	NodesDeleted               []byte   `protobuf:"bytes,2,opt,name=nodes_deleted,json=nodesDeleted,proto3" json:"nodes_deleted,omitempty"`
	AccumulatedNodesAddedCount uint64   `protobuf:"varint,3,opt,name=accumulated_nodes_added_count,json=accumulatedNodesAddedCount,proto3" json:"accumulated_nodes_added_count,omitempty"`
}

func (m *MerkleCheckpoint) Reset()         { *m = MerkleCheckpoint{} }
func (m *MerkleCheckpoint) String() string { return proto.CompactTextString(m) }
func (*MerkleCheckpoint) ProtoMessage()    {}

type OutputRecord struct {
	Output    *types.TransactionOutput `protobuf:"bytes,1,opt,name=output,proto3" json:"output,omitempty"`
	BlockHash []byte                   `protobuf:"bytes,2,opt,name=block_hash,json=blockHash,proto3" json:"block_hash,omitempty"`
	Height    uint64                   `protobuf:"varint,3,opt,name=height,proto3" json:"height,omitempty"`
	LeafIndex uint64                   `protobuf:"varint,4,opt,name=leaf_index,json=leafIndex,proto3" json:"leaf_index,omitempty"`
}

func (m *OutputRecord) Reset()         { *m = OutputRecord{} }
func (m *OutputRecord) String() string { return proto.CompactTextString(m) }
func (*OutputRecord) ProtoMessage()    {}

type KernelRecord struct {
	Kernel    *types.TransactionKernel `protobuf:"bytes,1,opt,name=kernel,proto3" json:"kernel,omitempty"`
	BlockHash []byte                   `protobuf:"bytes,2,opt,name=block_hash,json=blockHash,proto3" json:"block_hash,omitempty"`
	Height    uint64                   `protobuf:"varint,3,opt,name=height,proto3" json:"height,omitempty"`
	LeafIndex uint64                   `protobuf:"varint,4,opt,name=leaf_index,json=leafIndex,proto3" json:"leaf_index,omitempty"`
}

func (m *KernelRecord) Reset()         { *m = KernelRecord{} }
func (m *KernelRecord) String() string { return proto.CompactTextString(m) }
func (*KernelRecord) ProtoMessage()    {}

// BlockBodyIndex lists the keys of everything a block added, so range
// queries and rewinds need no scan.
type BlockBodyIndex struct {
	Outputs [][]byte `protobuf:"bytes,1,rep,name=outputs,proto3" json:"outputs,omitempty"`
	Inputs  [][]byte `protobuf:"bytes,2,rep,name=inputs,proto3" json:"inputs,omitempty"`
	Kernels [][]byte `protobuf:"bytes,3,rep,name=kernels,proto3" json:"kernels,omitempty"`
}

func (m *BlockBodyIndex) Reset()         { *m = BlockBodyIndex{} }
func (m *BlockBodyIndex) String() string { return proto.CompactTextString(m) }
func (*BlockBodyIndex) ProtoMessage()    {}

func init() {
	proto.RegisterType((*AccumulatedHeaderData)(nil), "mmrnode.store.AccumulatedHeaderData")
	proto.RegisterType((*ChainHeader)(nil), "mmrnode.store.ChainHeader")
	proto.RegisterType((*PrunedHashSet)(nil), "mmrnode.store.PrunedHashSet")
	proto.RegisterType((*BlockAccumulatedData)(nil), "mmrnode.store.BlockAccumulatedData")
	proto.RegisterType((*MerkleCheckpoint)(nil), "mmrnode.store.MerkleCheckpoint")
	proto.RegisterType((*OutputRecord)(nil), "mmrnode.store.OutputRecord")
	proto.RegisterType((*KernelRecord)(nil), "mmrnode.store.KernelRecord")
	proto.RegisterType((*BlockBodyIndex)(nil), "mmrnode.store.BlockBodyIndex")
}
