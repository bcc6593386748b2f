package sync

import (
	"errors"
	"fmt"
)

const (
	// MaxChainSplitHashes is the largest block locator a peer may send.
	MaxChainSplitHashes = 500
	// MaxChainSplitHeaders is the most headers a peer may ask for after the
	// split point.
	MaxChainSplitHeaders = 100
)

// Validate validates the message returning an error upon failure.
func (m *SyncBlocksRequest) Validate() error {
	if m == nil {
		return errors.New("message cannot be nil")
	}
	if len(m.StartHash) == 0 {
		return errors.New("empty start hash")
	}
	return nil
}

// Validate validates the message returning an error upon failure.
func (m *SyncHeadersRequest) Validate() error {
	if m == nil {
		return errors.New("message cannot be nil")
	}
	if len(m.StartHash) == 0 {
		return errors.New("empty start hash")
	}
	return nil
}

// Validate checks the request bounds. It does not look at the hashes
// themselves.
func (m *FindChainSplitRequest) Validate() error {
	if m == nil {
		return errors.New("message cannot be nil")
	}
	if len(m.BlockHashes) == 0 {
		return errors.New("no block hashes")
	}
	if len(m.BlockHashes) > MaxChainSplitHashes {
		return fmt.Errorf("%d block hashes exceeds the maximum of %d", len(m.BlockHashes), MaxChainSplitHashes)
	}
	if m.HeaderCount > MaxChainSplitHeaders {
		return fmt.Errorf("header count %d exceeds the maximum of %d", m.HeaderCount, MaxChainSplitHeaders)
	}
	return nil
}
