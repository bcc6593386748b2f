package mmr

import "errors"

var (
	ErrHashNotFound          = errors.New("hash not found in backend")
	ErrInvalidLeafIndex      = errors.New("leaf index out of range")
	ErrInvalidMMRSize        = errors.New("invalid mmr size")
	ErrInvalidProof          = errors.New("merkle proof is invalid")
	ErrCannotMergeZeroProofs = errors.New("cannot merge zero proofs")
	ErrProofSizeMismatch     = errors.New("proofs were generated against different mmr sizes")
	ErrDuplicateLeaf         = errors.New("proofs contain the same leaf more than once")
	ErrLeafCountMismatch     = errors.New("number of leaf hashes does not match the proof")
	ErrInvalidRewind         = errors.New("cannot rewind past the base of the change tracker")
	ErrInvalidMerge          = errors.New("invalid number of checkpoints to merge")
)
