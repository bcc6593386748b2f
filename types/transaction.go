package types

import (
	"bytes"
	"errors"
	"fmt"

	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
)

// TransactionInput spends the unspent output with the same commitment.
type TransactionInput struct {
	Commitment tmbytes.HexBytes `json:"commitment"`
}

type TransactionOutput struct {
	Features   uint32           `json:"features"`
	Commitment tmbytes.HexBytes `json:"commitment"`
	RangeProof tmbytes.HexBytes `json:"range_proof"`
}

// Hash is the leaf hash of the output in the output MMR.
func (o *TransactionOutput) Hash() tmbytes.HexBytes {
	var w hashWriter
	w.bytes([]byte("mmrnode.output"))
	w.u32(o.Features)
	w.bytes(o.Commitment)
	return w.sum()
}

// RangeProofHash is the leaf hash of the output in the range proof MMR.
func (o *TransactionOutput) RangeProofHash() tmbytes.HexBytes {
	var w hashWriter
	w.bytes([]byte("mmrnode.rangeproof"))
	w.bytes(o.RangeProof)
	return w.sum()
}

type TransactionKernel struct {
	Features   uint32           `json:"features"`
	Fee        uint64           `json:"fee"`
	LockHeight uint64           `json:"lock_height"`
	Excess     tmbytes.HexBytes `json:"excess"`
	ExcessSig  tmbytes.HexBytes `json:"excess_sig"`
}

// Hash is the leaf hash of the kernel in the kernel MMR.
func (k *TransactionKernel) Hash() tmbytes.HexBytes {
	var w hashWriter
	w.bytes([]byte("mmrnode.kernel"))
	w.u32(k.Features)
	w.u64(k.Fee)
	w.u64(k.LockHeight)
	w.bytes(k.Excess)
	w.bytes(k.ExcessSig)
	return w.sum()
}

// AggregateBody is the cut-through set of inputs, outputs and kernels of a
// block. Every list is sorted by commitment or excess.
type AggregateBody struct {
	Inputs  []*TransactionInput  `json:"inputs"`
	Outputs []*TransactionOutput `json:"outputs"`
	Kernels []*TransactionKernel `json:"kernels"`
}

// ValidateBasic checks the structure of the body: sizes, sort order,
// duplicates and cut-through.
func (b *AggregateBody) ValidateBasic() error {
	if b == nil {
		return errors.New("nil body")
	}

	outputs := make(map[string]struct{}, len(b.Outputs))
	for i, o := range b.Outputs {
		if len(o.Commitment) != CommitmentSize {
			return fmt.Errorf("output %d: commitment must be %d bytes", i, CommitmentSize)
		}
		if i > 0 && bytes.Compare(b.Outputs[i-1].Commitment, o.Commitment) >= 0 {
			return fmt.Errorf("outputs are not sorted or contain duplicates at %d", i)
		}
		outputs[string(o.Commitment)] = struct{}{}
	}

	for i, in := range b.Inputs {
		if len(in.Commitment) != CommitmentSize {
			return fmt.Errorf("input %d: commitment must be %d bytes", i, CommitmentSize)
		}
		if i > 0 && bytes.Compare(b.Inputs[i-1].Commitment, in.Commitment) >= 0 {
			return fmt.Errorf("inputs are not sorted or contain duplicates at %d", i)
		}
		if _, ok := outputs[string(in.Commitment)]; ok {
			return fmt.Errorf("input %d spends an output of the same block", i)
		}
	}

	if len(b.Kernels) == 0 {
		return errors.New("body has no kernels")
	}
	for i, k := range b.Kernels {
		if len(k.Excess) != CommitmentSize {
			return fmt.Errorf("kernel %d: excess must be %d bytes", i, CommitmentSize)
		}
		if i > 0 && bytes.Compare(b.Kernels[i-1].Excess, k.Excess) >= 0 {
			return fmt.Errorf("kernels are not sorted or contain duplicates at %d", i)
		}
	}
	return nil
}

func (b *AggregateBody) ToProto() *typesproto.AggregateBody {
	if b == nil {
		return nil
	}
	pb := &typesproto.AggregateBody{
		Inputs:  make([]*typesproto.TransactionInput, len(b.Inputs)),
		Outputs: make([]*typesproto.TransactionOutput, len(b.Outputs)),
		Kernels: make([]*typesproto.TransactionKernel, len(b.Kernels)),
	}
	for i, in := range b.Inputs {
		pb.Inputs[i] = in.ToProto()
	}
	for i, o := range b.Outputs {
		pb.Outputs[i] = o.ToProto()
	}
	for i, k := range b.Kernels {
		pb.Kernels[i] = k.ToProto()
	}
	return pb
}

func AggregateBodyFromProto(pb *typesproto.AggregateBody) (*AggregateBody, error) {
	if pb == nil {
		return nil, errors.New("nil AggregateBody")
	}
	b := &AggregateBody{
		Inputs:  make([]*TransactionInput, len(pb.Inputs)),
		Outputs: make([]*TransactionOutput, len(pb.Outputs)),
		Kernels: make([]*TransactionKernel, len(pb.Kernels)),
	}
	for i, in := range pb.Inputs {
		b.Inputs[i] = TransactionInputFromProto(in)
	}
	for i, o := range pb.Outputs {
		b.Outputs[i] = TransactionOutputFromProto(o)
	}
	for i, k := range pb.Kernels {
		b.Kernels[i] = TransactionKernelFromProto(k)
	}
	return b, nil
}

func (in *TransactionInput) ToProto() *typesproto.TransactionInput {
	return &typesproto.TransactionInput{Commitment: in.Commitment}
}

func TransactionInputFromProto(pi *typesproto.TransactionInput) *TransactionInput {
	if pi == nil {
		return &TransactionInput{}
	}
	return &TransactionInput{Commitment: pi.Commitment}
}

func (o *TransactionOutput) ToProto() *typesproto.TransactionOutput {
	return &typesproto.TransactionOutput{
		Features:   o.Features,
		Commitment: o.Commitment,
		RangeProof: o.RangeProof,
	}
}

func TransactionOutputFromProto(po *typesproto.TransactionOutput) *TransactionOutput {
	if po == nil {
		return &TransactionOutput{}
	}
	return &TransactionOutput{
		Features:   po.Features,
		Commitment: po.Commitment,
		RangeProof: po.RangeProof,
	}
}

func (k *TransactionKernel) ToProto() *typesproto.TransactionKernel {
	return &typesproto.TransactionKernel{
		Features:   k.Features,
		Fee:        k.Fee,
		LockHeight: k.LockHeight,
		Excess:     k.Excess,
		ExcessSig:  k.ExcessSig,
	}
}

func TransactionKernelFromProto(pk *typesproto.TransactionKernel) *TransactionKernel {
	if pk == nil {
		return &TransactionKernel{}
	}
	return &TransactionKernel{
		Features:   pk.Features,
		Fee:        pk.Fee,
		LockHeight: pk.LockHeight,
		Excess:     pk.Excess,
		ExcessSig:  pk.ExcessSig,
	}
}
