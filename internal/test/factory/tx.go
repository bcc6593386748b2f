package factory

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/mmrnode/mmrnode/types"
)

func seedHash(parts ...interface{}) [32]byte {
	return blake2b.Sum256([]byte(fmt.Sprint(parts...)))
}

// MakeCommitment returns a valid curve point derived from the seed parts.
func MakeCommitment(parts ...interface{}) []byte {
	h := seedHash(parts...)
	return secp256k1.PrivKeyFromBytes(h[:]).PubKey().SerializeCompressed()
}

func MakeOutput(parts ...interface{}) *types.TransactionOutput {
	proof := seedHash(append(parts, "rangeproof")...)
	return &types.TransactionOutput{
		Commitment: MakeCommitment(append(parts, "output")...),
		RangeProof: proof[:],
	}
}

func MakeKernel(fee uint64, parts ...interface{}) *types.TransactionKernel {
	sig := seedHash(append(parts, "sig")...)
	return &types.TransactionKernel{
		Fee:       fee,
		Excess:    MakeCommitment(append(parts, "kernel")...),
		ExcessSig: append(sig[:], sig[:]...),
	}
}

// SortBody puts every list of the body in canonical order.
func SortBody(body *types.AggregateBody) {
	sort.Slice(body.Inputs, func(i, j int) bool {
		return bytes.Compare(body.Inputs[i].Commitment, body.Inputs[j].Commitment) < 0
	})
	sort.Slice(body.Outputs, func(i, j int) bool {
		return bytes.Compare(body.Outputs[i].Commitment, body.Outputs[j].Commitment) < 0
	})
	sort.Slice(body.Kernels, func(i, j int) bool {
		return bytes.Compare(body.Kernels[i].Excess, body.Kernels[j].Excess) < 0
	})
}
