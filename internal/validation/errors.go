package validation

import (
	"errors"
	"fmt"

	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	"github.com/mmrnode/mmrnode/types"
)

// Kinds of validation failure. Every error returned by a validator wraps one
// of them.
var (
	ErrInvalidHeader    = errors.New("invalid header")
	ErrInvalidHeight    = errors.New("invalid height")
	ErrChainLinkBroken  = errors.New("chain link broken")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrPowTooLow        = errors.New("proof of work too low")

	ErrInvalidBody    = errors.New("invalid body")
	ErrUnknownInput   = errors.New("input spends an unknown output")
	ErrDoubleSpend    = errors.New("input spends a spent output")
	ErrInvalidMMRRoot = errors.New("invalid mmr root")

	// ErrNotInitialized is returned when headers are validated before
	// InitializeState.
	ErrNotInitialized = errors.New("validator is not initialized")
)

// Error is a validation failure of one header or block.
type Error struct {
	Height uint64
	Hash   tmbytes.HexBytes
	Kind   error
	Reason string
}

func newError(header *types.BlockHeader, kind error, format string, args ...interface{}) *Error {
	return &Error{
		Height: header.Height,
		Hash:   header.Hash(),
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("#%d %v: %v: %s", e.Height, e.Hash.ShortString(), e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Kind }
