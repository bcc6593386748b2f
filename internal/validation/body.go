package validation

import (
	"errors"
	"fmt"

	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/types"
)

// BodyValidator validates a block body against the chain state it extends.
// Implementations must be safe for concurrent use.
type BodyValidator interface {
	ValidateBody(block *types.Block) error
}

// BodyStore is the part of the block store body validation reads.
type BodyStore interface {
	FetchOutput(commitment []byte) (*store.OutputInfo, error)
	CalculateMMRRoots(block *types.Block) (*store.MMRRoots, error)
}

// BodyOnlyValidator checks what can be checked of a block body without
// running scripts or verifying signatures: its structure, that every input
// spends an unspent output, and that the header commits to the accumulator
// roots the body produces.
type BodyOnlyValidator struct {
	store BodyStore
}

var _ BodyValidator = (*BodyOnlyValidator)(nil)

func NewBodyOnlyValidator(store BodyStore) *BodyOnlyValidator {
	return &BodyOnlyValidator{store: store}
}

func (v *BodyOnlyValidator) ValidateBody(block *types.Block) error {
	if block == nil || block.Header == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBody)
	}
	if err := block.ValidateBasic(); err != nil {
		return newError(block.Header, ErrInvalidBody, "%v", err)
	}

	for _, in := range block.Body.Inputs {
		info, err := v.store.FetchOutput(in.Commitment)
		switch {
		case errors.Is(err, store.ErrValueNotFound):
			return newError(block.Header, ErrUnknownInput, "input %X", in.Commitment)
		case err != nil:
			return fmt.Errorf("fetch output %X: %w", in.Commitment, err)
		case info.Spent:
			return newError(block.Header, ErrDoubleSpend, "input %X is already spent", in.Commitment)
		}
	}

	roots, err := v.store.CalculateMMRRoots(block)
	switch {
	case errors.Is(err, store.ErrDuplicateCommitment), errors.Is(err, store.ErrOutputSpent):
		return newError(block.Header, ErrInvalidBody, "%v", err)
	case err != nil:
		return fmt.Errorf("calculate mmr roots: %w", err)
	}
	if err := roots.Matches(block.Header); err != nil {
		return newError(block.Header, ErrInvalidMMRRoot, "%v", err)
	}
	return nil
}
