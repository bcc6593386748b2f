package types

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
)

// Block is a header and the body it commits to.
type Block struct {
	Header *BlockHeader   `json:"header"`
	Body   *AggregateBody `json:"body"`
}

// Hash returns the hash of the block header.
func (b *Block) Hash() tmbytes.HexBytes {
	if b == nil {
		return nil
	}
	return b.Header.Hash()
}

func (b *Block) Height() uint64 {
	return b.Header.Height
}

// ValidateBasic performs stateless validation of the header and body.
func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}
	if err := b.Header.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}
	if err := b.Body.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{#%d %v in:%d out:%d kern:%d}",
		b.Header.Height, b.Hash().ShortString(), len(b.Body.Inputs), len(b.Body.Outputs), len(b.Body.Kernels))
}

func (b *Block) ToProto() *typesproto.Block {
	if b == nil {
		return nil
	}
	return &typesproto.Block{Header: b.Header.ToProto(), Body: b.Body.ToProto()}
}

// BlockFromProto converts a protobuf block. It returns an error if the block
// is invalid.
func BlockFromProto(pb *typesproto.Block) (*Block, error) {
	if pb == nil {
		return nil, errors.New("nil Block")
	}
	h, err := BlockHeaderFromProto(pb.GetHeader())
	if err != nil {
		return nil, err
	}
	body, err := AggregateBodyFromProto(pb.GetBody())
	if err != nil {
		return nil, err
	}
	b := &Block{Header: h, Body: body}
	return b, b.ValidateBasic()
}

// ChainMetadata summarizes the local chain.
type ChainMetadata struct {
	// Height and BestBlock describe the tip of the block chain, which may lag
	// behind the header chain.
	Height          uint64           `json:"height"`
	BestBlock       tmbytes.HexBytes `json:"best_block"`
	AccumulatedWork *uint256.Int     `json:"accumulated_work"`
	PruningHorizon  uint64           `json:"pruning_horizon"`
	PrunedHeight    uint64           `json:"pruned_height"`
}

// HorizonHeight returns the height below which block data may be pruned.
func (m *ChainMetadata) HorizonHeight() uint64 {
	if m.PruningHorizon == 0 || m.Height < m.PruningHorizon {
		return 0
	}
	return m.Height - m.PruningHorizon
}

func (m *ChainMetadata) ToProto() *typesproto.ChainMetadata {
	if m == nil {
		return nil
	}
	return &typesproto.ChainMetadata{
		Height:          m.Height,
		BestBlock:       m.BestBlock,
		AccumulatedWork: u256Bytes(m.AccumulatedWork),
		PruningHorizon:  m.PruningHorizon,
		PrunedHeight:    m.PrunedHeight,
	}
}

func ChainMetadataFromProto(pm *typesproto.ChainMetadata) (*ChainMetadata, error) {
	if pm == nil {
		return nil, errors.New("nil ChainMetadata")
	}
	return &ChainMetadata{
		Height:          pm.Height,
		BestBlock:       pm.BestBlock,
		AccumulatedWork: new(uint256.Int).SetBytes(pm.AccumulatedWork),
		PruningHorizon:  pm.PruningHorizon,
		PrunedHeight:    pm.PrunedHeight,
	}, nil
}
