package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage matches every failure of the underlying key value engine.
	ErrStorage = errors.New("storage error")
	// ErrValueNotFound is returned by lookups of absent values.
	ErrValueNotFound = errors.New("value not found")
	// ErrInvalidOperation is returned when a transaction operation does not
	// apply to the current chain state.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidMMRRoots is returned when a block body does not produce the
	// accumulator roots its header commits to.
	ErrInvalidMMRRoots = errors.New("block body does not match the header mmr roots")
	// ErrDuplicateCommitment is returned when a block adds an output or
	// kernel that is already stored.
	ErrDuplicateCommitment = errors.New("commitment already exists")
	// ErrOutputSpent is returned when a block input spends a deleted leaf.
	ErrOutputSpent = errors.New("output is already spent")
	// ErrBeyondPrunedHeight is returned when rewinding into merged
	// checkpoints.
	ErrBeyondPrunedHeight = errors.New("cannot rewind below the pruned height")
)

// StorageError wraps a failure of the key value engine.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValueNotFound)
}
