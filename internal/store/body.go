package store

import (
	"bytes"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/gogo/protobuf/proto"

	"github.com/mmrnode/mmrnode/internal/mmr"
	storeproto "github.com/mmrnode/mmrnode/proto/mmrnode/store"
	"github.com/mmrnode/mmrnode/types"
)

// MMRRoots are the accumulator commitments a block header carries.
type MMRRoots struct {
	OutputMR      []byte
	RangeProofMR  []byte
	KernelMR      []byte
	OutputMMRSize uint64
	KernelMMRSize uint64
}

// Matches reports whether the header commits to exactly these roots.
func (r *MMRRoots) Matches(h *types.BlockHeader) error {
	switch {
	case !bytes.Equal(r.OutputMR, h.OutputMR):
		return fmt.Errorf("output mr %X, header has %v: %w", r.OutputMR, h.OutputMR, ErrInvalidMMRRoots)
	case !bytes.Equal(r.RangeProofMR, h.RangeProofMR):
		return fmt.Errorf("range proof mr %X, header has %v: %w", r.RangeProofMR, h.RangeProofMR, ErrInvalidMMRRoots)
	case !bytes.Equal(r.KernelMR, h.KernelMR):
		return fmt.Errorf("kernel mr %X, header has %v: %w", r.KernelMR, h.KernelMR, ErrInvalidMMRRoots)
	case r.OutputMMRSize != h.OutputMMRSize:
		return fmt.Errorf("output mmr size %d, header has %d: %w", r.OutputMMRSize, h.OutputMMRSize, ErrInvalidMMRRoots)
	case r.KernelMMRSize != h.KernelMMRSize:
		return fmt.Errorf("kernel mmr size %d, header has %d: %w", r.KernelMMRSize, h.KernelMMRSize, ErrInvalidMMRRoots)
	}
	return nil
}

// spentOutput is an input resolved to the output leaf it deletes.
type spentOutput struct {
	commitment []byte
	leafIndex  uint64
}

// appliedBody is the result of applying a block body to the accumulator
// state of its parent.
type appliedBody struct {
	kernels     *mmr.MutableMMR
	outputs     *mmr.MutableMMR
	rangeProofs *mmr.MutableMMR

	checkpoints  map[Tree]*mmr.MerkleCheckpoint
	spent        []spentOutput
	outputLeaves []uint64
	kernelLeaves []uint64

	kernelSum *types.CommitmentSum
	utxoSum   *types.CommitmentSum
}

func (a *appliedBody) roots() (*MMRRoots, error) {
	outputMR, err := a.outputs.Root()
	if err != nil {
		return nil, err
	}
	rangeProofMR, err := a.rangeProofs.MMRRoot()
	if err != nil {
		return nil, err
	}
	kernelMR, err := a.kernels.MMRRoot()
	if err != nil {
		return nil, err
	}
	outputSize, err := a.outputs.Len()
	if err != nil {
		return nil, err
	}
	kernelSize, err := a.kernels.Len()
	if err != nil {
		return nil, err
	}
	return &MMRRoots{
		OutputMR:      outputMR,
		RangeProofMR:  rangeProofMR,
		KernelMR:      kernelMR,
		OutputMMRSize: outputSize,
		KernelMMRSize: kernelSize,
	}, nil
}

// accumulatedData summarizes the applied state for storage.
func (a *appliedBody) accumulatedData() (*types.BlockAccumulatedData, error) {
	kernels, err := a.kernels.MMR().Snapshot()
	if err != nil {
		return nil, err
	}
	outputs, err := a.outputs.MMR().Snapshot()
	if err != nil {
		return nil, err
	}
	rangeProofs, err := a.rangeProofs.MMR().Snapshot()
	if err != nil {
		return nil, err
	}
	return &types.BlockAccumulatedData{
		Kernels:     kernels,
		Outputs:     outputs,
		RangeProofs: rangeProofs,
		Deleted:     a.outputs.Deleted(),
		KernelSum:   a.kernelSum,
		UtxoSum:     a.utxoSum,
	}, nil
}

func mutableFromPruned(set *mmr.PrunedHashSet, deleted *bitset.BitSet) (*mmr.MutableMMR, error) {
	if set == nil {
		set = &mmr.PrunedHashSet{}
	}
	m, err := mmr.NewPruned(set)
	if err != nil {
		return nil, err
	}
	if deleted != nil {
		deleted = deleted.Clone()
	}
	return mmr.NewMutableMMRWithDeleted(m, deleted), nil
}

func pushLeaf(m *mmr.MutableMMR, hash []byte) (uint64, error) {
	leafIndex, err := m.LeafCount()
	if err != nil {
		return 0, err
	}
	if _, err := m.Push(hash); err != nil {
		return 0, err
	}
	return leafIndex, nil
}

func cloneSum(s *types.CommitmentSum) *types.CommitmentSum {
	out := new(types.CommitmentSum)
	if s != nil {
		*out = *s
	}
	return out
}

// applyBody applies body on top of parent, which is nil for the genesis
// block. Inputs are resolved through kv and must spend unspent outputs;
// outputs and kernels must be new.
func applyBody(kv kvStore, parent *types.BlockAccumulatedData, body *types.AggregateBody) (*appliedBody, error) {
	if parent == nil {
		parent = &types.BlockAccumulatedData{}
	}
	kernels, err := mutableFromPruned(parent.Kernels, nil)
	if err != nil {
		return nil, fmt.Errorf("kernel mmr: %w", err)
	}
	outputs, err := mutableFromPruned(parent.Outputs, parent.Deleted)
	if err != nil {
		return nil, fmt.Errorf("output mmr: %w", err)
	}
	rangeProofs, err := mutableFromPruned(parent.RangeProofs, nil)
	if err != nil {
		return nil, fmt.Errorf("range proof mmr: %w", err)
	}

	a := &appliedBody{
		kernels:     kernels,
		outputs:     outputs,
		rangeProofs: rangeProofs,
		kernelSum:   cloneSum(parent.KernelSum),
		utxoSum:     cloneSum(parent.UtxoSum),
	}

	deleted := bitset.New(0)
	for _, in := range body.Inputs {
		rec, err := getOutputRecord(kv, in.Commitment)
		if err != nil {
			return nil, fmt.Errorf("input %v: %w", in.Commitment, err)
		}
		ok, err := outputs.Delete(rec.LeafIndex)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("input %v: %w", in.Commitment, ErrOutputSpent)
		}
		deleted.Set(uint(rec.LeafIndex))
		if err := a.utxoSum.Sub(in.Commitment); err != nil {
			return nil, err
		}
		a.spent = append(a.spent, spentOutput{commitment: in.Commitment, leafIndex: rec.LeafIndex})
	}

	outputHashes := make([][]byte, 0, len(body.Outputs))
	rangeProofHashes := make([][]byte, 0, len(body.Outputs))
	for _, out := range body.Outputs {
		exists, err := kv.Has(outputKey(out.Commitment))
		if err != nil {
			return nil, storageErr("has output", err)
		}
		if exists {
			return nil, fmt.Errorf("output %v: %w", out.Commitment, ErrDuplicateCommitment)
		}
		leaf, err := pushLeaf(outputs, out.Hash())
		if err != nil {
			return nil, err
		}
		if _, err := pushLeaf(rangeProofs, out.RangeProofHash()); err != nil {
			return nil, err
		}
		if err := a.utxoSum.Add(out.Commitment); err != nil {
			return nil, err
		}
		outputHashes = append(outputHashes, out.Hash())
		rangeProofHashes = append(rangeProofHashes, out.RangeProofHash())
		a.outputLeaves = append(a.outputLeaves, leaf)
	}

	kernelHashes := make([][]byte, 0, len(body.Kernels))
	for _, k := range body.Kernels {
		exists, err := kv.Has(kernelKey(k.Excess))
		if err != nil {
			return nil, storageErr("has kernel", err)
		}
		if exists {
			return nil, fmt.Errorf("kernel %v: %w", k.Excess, ErrDuplicateCommitment)
		}
		leaf, err := pushLeaf(kernels, k.Hash())
		if err != nil {
			return nil, err
		}
		if err := a.kernelSum.Add(k.Excess); err != nil {
			return nil, err
		}
		kernelHashes = append(kernelHashes, k.Hash())
		a.kernelLeaves = append(a.kernelLeaves, leaf)
	}

	outputCount, err := outputs.LeafCount()
	if err != nil {
		return nil, err
	}
	kernelCount, err := kernels.LeafCount()
	if err != nil {
		return nil, err
	}
	a.checkpoints = map[Tree]*mmr.MerkleCheckpoint{
		TreeKernel:     mmr.NewMerkleCheckpoint(kernelHashes, nil, kernelCount),
		TreeOutput:     mmr.NewMerkleCheckpoint(outputHashes, deleted, outputCount),
		TreeRangeProof: mmr.NewMerkleCheckpoint(rangeProofHashes, nil, outputCount),
	}
	return a, nil
}

func getOutputRecord(kv kvStore, commitment []byte) (*storeproto.OutputRecord, error) {
	bz, err := kv.Get(outputKey(commitment))
	if err != nil {
		return nil, storageErr("get output", err)
	}
	if bz == nil {
		return nil, notFound("output %X", commitment)
	}
	rec := new(storeproto.OutputRecord)
	if err := proto.Unmarshal(bz, rec); err != nil {
		return nil, fmt.Errorf("unmarshal output record: %w", err)
	}
	return rec, nil
}

func getKernelRecord(kv kvStore, excess []byte) (*storeproto.KernelRecord, error) {
	bz, err := kv.Get(kernelKey(excess))
	if err != nil {
		return nil, storageErr("get kernel", err)
	}
	if bz == nil {
		return nil, notFound("kernel %X", excess)
	}
	rec := new(storeproto.KernelRecord)
	if err := proto.Unmarshal(bz, rec); err != nil {
		return nil, fmt.Errorf("unmarshal kernel record: %w", err)
	}
	return rec, nil
}
