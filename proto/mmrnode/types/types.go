// Package types holds the protobuf messages of the chain data model. They are
// used on the wire and as the storage encoding; see types.proto.
package types

import (
	"github.com/gogo/protobuf/proto"
)

type ProofOfWork struct {
	Algo uint32 `protobuf:"varint,1,opt,name=algo,proto3" json:"algo,omitempty"`
	Data []byte `protobuf:"bytes,2,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *ProofOfWork) Reset()         { *m = ProofOfWork{} }
func (m *ProofOfWork) String() string { return proto.CompactTextString(m) }
func (*ProofOfWork) ProtoMessage()    {}

type BlockHeader struct {
	Version           uint32       `protobuf:"varint,1,opt,name=version,proto3" json:"version,omitempty"`
	Height            uint64       `protobuf:"varint,2,opt,name=height,proto3" json:"height,omitempty"`
	PrevHash          []byte       `protobuf:"bytes,3,opt,name=prev_hash,json=prevHash,proto3" json:"prev_hash,omitempty"`
	Timestamp         uint64       `protobuf:"varint,4,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	OutputMr          []byte       `protobuf:"bytes,5,opt,name=output_mr,json=outputMr,proto3" json:"output_mr,omitempty"`
	RangeProofMr      []byte       `protobuf:"bytes,6,opt,name=range_proof_mr,json=rangeProofMr,proto3" json:"range_proof_mr,omitempty"`
	KernelMr          []byte       `protobuf:"bytes,7,opt,name=kernel_mr,json=kernelMr,proto3" json:"kernel_mr,omitempty"`
	OutputMmrSize     uint64       `protobuf:"varint,8,opt,name=output_mmr_size,json=outputMmrSize,proto3" json:"output_mmr_size,omitempty"`
	KernelMmrSize     uint64       `protobuf:"varint,9,opt,name=kernel_mmr_size,json=kernelMmrSize,proto3" json:"kernel_mmr_size,omitempty"`
	TotalKernelOffset []byte       `protobuf:"bytes,10,opt,name=total_kernel_offset,json=totalKernelOffset,proto3" json:"total_kernel_offset,omitempty"`
	Nonce             uint64       `protobuf:"varint,11,opt,name=nonce,proto3" json:"nonce,omitempty"`
	Pow               *ProofOfWork `protobuf:"bytes,12,opt,name=pow,proto3" json:"pow,omitempty"`
}

func (m *BlockHeader) Reset()         { *m = BlockHeader{} }
func (m *BlockHeader) String() string { return proto.CompactTextString(m) }
func (*BlockHeader) ProtoMessage()    {}

func (m *BlockHeader) GetPow() *ProofOfWork {
	if m != nil {
		return m.Pow
	}
	return nil
}

type TransactionInput struct {
	Commitment []byte `protobuf:"bytes,1,opt,name=commitment,proto3" json:"commitment,omitempty"`
}

func (m *TransactionInput) Reset()         { *m = TransactionInput{} }
func (m *TransactionInput) String() string { return proto.CompactTextString(m) }
func (*TransactionInput) ProtoMessage()    {}

type TransactionOutput struct {
	Features   uint32 `protobuf:"varint,1,opt,name=features,proto3" json:"features,omitempty"`
	Commitment []byte `protobuf:"bytes,2,opt,name=commitment,proto3" json:"commitment,omitempty"`
	RangeProof []byte `protobuf:"bytes,3,opt,name=range_proof,json=rangeProof,proto3" json:"range_proof,omitempty"`
}

func (m *TransactionOutput) Reset()         { *m = TransactionOutput{} }
func (m *TransactionOutput) String() string { return proto.CompactTextString(m) }
func (*TransactionOutput) ProtoMessage()    {}

type TransactionKernel struct {
	Features   uint32 `protobuf:"varint,1,opt,name=features,proto3" json:"features,omitempty"`
	Fee        uint64 `protobuf:"varint,2,opt,name=fee,proto3" json:"fee,omitempty"`
	LockHeight uint64 `protobuf:"varint,3,opt,name=lock_height,json=lockHeight,proto3" json:"lock_height,omitempty"`
	Excess     []byte `protobuf:"bytes,4,opt,name=excess,proto3" json:"excess,omitempty"`
	ExcessSig  []byte `protobuf:"bytes,5,opt,name=excess_sig,json=excessSig,proto3" json:"excess_sig,omitempty"`
}

func (m *TransactionKernel) Reset()         { *m = TransactionKernel{} }
func (m *TransactionKernel) String() string { return proto.CompactTextString(m) }
func (*TransactionKernel) ProtoMessage()    {}

type AggregateBody struct {
	Inputs  []*TransactionInput  `protobuf:"bytes,1,rep,name=inputs,proto3" json:"inputs,omitempty"`
	Outputs []*TransactionOutput `protobuf:"bytes,2,rep,name=outputs,proto3" json:"outputs,omitempty"`
	Kernels []*TransactionKernel `protobuf:"bytes,3,rep,name=kernels,proto3" json:"kernels,omitempty"`
}

func (m *AggregateBody) Reset()         { *m = AggregateBody{} }
func (m *AggregateBody) String() string { return proto.CompactTextString(m) }
func (*AggregateBody) ProtoMessage()    {}

type Block struct {
	Header *BlockHeader   `protobuf:"bytes,1,opt,name=header,proto3" json:"header,omitempty"`
	Body   *AggregateBody `protobuf:"bytes,2,opt,name=body,proto3" json:"body,omitempty"`
}

func (m *Block) Reset()         { *m = Block{} }
func (m *Block) String() string { return proto.CompactTextString(m) }
func (*Block) ProtoMessage()    {}

func (m *Block) GetHeader() *BlockHeader {
	if m != nil {
		return m.Header
	}
	return nil
}

func (m *Block) GetBody() *AggregateBody {
	if m != nil {
		return m.Body
	}
	return nil
}

type ChainMetadata struct {
	Height          uint64 `protobuf:"varint,1,opt,name=height,proto3" json:"height,omitempty"`
	BestBlock       []byte `protobuf:"bytes,2,opt,name=best_block,json=bestBlock,proto3" json:"best_block,omitempty"`
	AccumulatedWork []byte `protobuf:"bytes,3,opt,name=accumulated_work,json=accumulatedWork,proto3" json:"accumulated_work,omitempty"`
	PruningHorizon  uint64 `protobuf:"varint,4,opt,name=pruning_horizon,json=pruningHorizon,proto3" json:"pruning_horizon,omitempty"`
	PrunedHeight    uint64 `protobuf:"varint,5,opt,name=pruned_height,json=prunedHeight,proto3" json:"pruned_height,omitempty"`
}

func (m *ChainMetadata) Reset()         { *m = ChainMetadata{} }
func (m *ChainMetadata) String() string { return proto.CompactTextString(m) }
func (*ChainMetadata) ProtoMessage()    {}

func init() {
	proto.RegisterType((*ProofOfWork)(nil), "mmrnode.types.ProofOfWork")
	proto.RegisterType((*BlockHeader)(nil), "mmrnode.types.BlockHeader")
	proto.RegisterType((*TransactionInput)(nil), "mmrnode.types.TransactionInput")
	proto.RegisterType((*TransactionOutput)(nil), "mmrnode.types.TransactionOutput")
	proto.RegisterType((*TransactionKernel)(nil), "mmrnode.types.TransactionKernel")
	proto.RegisterType((*AggregateBody)(nil), "mmrnode.types.AggregateBody")
	proto.RegisterType((*Block)(nil), "mmrnode.types.Block")
	proto.RegisterType((*ChainMetadata)(nil), "mmrnode.types.ChainMetadata")
}
