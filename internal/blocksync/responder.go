package blocksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/libs/log"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

// Responder answers the sync requests of peers from the local store. It
// only serves the chain up to the best block, so every header it hands out
// has a body behind it. Streams are produced in chunks and never hold more
// than one chunk in memory. Responder is safe for concurrent use.
type Responder struct {
	logger    log.Logger
	store     store.BlockStore
	chunkSize int
	metrics   *Metrics
}

func NewResponder(logger log.Logger, store store.BlockStore, chunkSize int, metrics *Metrics) *Responder {
	if chunkSize < 1 {
		chunkSize = 1
	}
	return &Responder{
		logger:    logger,
		store:     store,
		chunkSize: chunkSize,
		metrics:   metrics,
	}
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}

// mainChainHeight returns the height of a header on the main chain.
func (r *Responder) mainChainHeight(hash []byte) (uint64, error) {
	height, err := r.store.FetchHeaderHeight(hash)
	if errors.Is(err, store.ErrValueNotFound) {
		return 0, fmt.Errorf("%w: header %X", ErrNotFound, hash)
	}
	return height, err
}

// servedRange returns the heights (start, end] a stream starting after
// startHash serves. end is capped at the best block.
func (r *Responder) servedRange(startHash, endHash []byte, count uint64) (uint64, uint64, error) {
	start, err := r.mainChainHeight(startHash)
	if err != nil {
		return 0, 0, err
	}
	meta, err := r.store.FetchChainMetadata()
	if err != nil {
		return 0, 0, err
	}
	end := meta.Height
	if len(endHash) > 0 {
		h, err := r.mainChainHeight(endHash)
		if err != nil {
			return 0, 0, err
		}
		if h < start {
			return 0, 0, badRequest(fmt.Errorf("end height %d is below start height %d", h, start))
		}
		if h < end {
			end = h
		}
	}
	if start <= end && count > 0 && count < end-start {
		end = start + count
	}
	return start, end, nil
}

// SyncBlocks sends the blocks following req.StartHash, up to req.EndHash
// or req.Count blocks. The stream ends early, without an error, when the
// store has no more blocks.
func (r *Responder) SyncBlocks(ctx context.Context, req *syncproto.SyncBlocksRequest, send func(*types.Block) error) error {
	if err := req.Validate(); err != nil {
		return badRequest(err)
	}
	start, end, err := r.servedRange(req.StartHash, req.EndHash, req.Count)
	if err != nil {
		return err
	}
	r.logger.Debug("serving blocks", "from", start+1, "to", end)

	return r.streamHeaders(ctx, start, end, func(h *types.BlockHeader) (bool, error) {
		block, err := r.store.FetchBlock(h.Hash())
		if errors.Is(err, store.ErrValueNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if err := send(block); err != nil {
			return false, err
		}
		r.metrics.BlocksServed.Add(1)
		return true, nil
	})
}

// SyncHeaders sends the headers following req.StartHash, at most req.Count
// of them if it is set.
func (r *Responder) SyncHeaders(ctx context.Context, req *syncproto.SyncHeadersRequest, send func(*types.BlockHeader) error) error {
	if err := req.Validate(); err != nil {
		return badRequest(err)
	}
	start, end, err := r.servedRange(req.StartHash, nil, req.Count)
	if err != nil {
		return err
	}
	r.logger.Debug("serving headers", "from", start+1, "to", end)

	return r.streamHeaders(ctx, start, end, func(h *types.BlockHeader) (bool, error) {
		if err := send(h); err != nil {
			return false, err
		}
		r.metrics.HeadersServed.Add(1)
		return true, nil
	})
}

// streamHeaders calls fn on the headers (start, end] one chunk at a time
// until fn returns false or an error.
func (r *Responder) streamHeaders(ctx context.Context, start, end uint64, fn func(*types.BlockHeader) (bool, error)) error {
	for from := start + 1; from <= end; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := uint64(r.chunkSize)
		if rest := end - from + 1; rest < n {
			n = rest
		}
		headers, err := r.store.FetchHeaders(from, int(n))
		if err != nil {
			return err
		}
		if len(headers) == 0 {
			return nil
		}
		for _, h := range headers {
			more, err := fn(h)
			if err != nil || !more {
				return err
			}
		}
		from += uint64(len(headers))
	}
	return nil
}

// FindChainSplit returns the position of the first of req.BlockHashes on
// the main chain and up to req.HeaderCount headers following it.
// Oversized requests are rejected without reading the store.
func (r *Responder) FindChainSplit(req *syncproto.FindChainSplitRequest) (*ChainSplit, error) {
	if err := req.Validate(); err != nil {
		return nil, badRequest(err)
	}
	meta, err := r.store.FetchChainMetadata()
	if err != nil {
		return nil, err
	}

	for i, hash := range req.BlockHashes {
		height, err := r.store.FetchHeaderHeight(hash)
		if errors.Is(err, store.ErrValueNotFound) || (err == nil && height > meta.Height) {
			continue
		}
		if err != nil {
			return nil, err
		}

		split := &ChainSplit{FoundHashIndex: uint64(i), TipHeight: meta.Height}
		count := req.HeaderCount
		if rest := meta.Height - height; rest < count {
			count = rest
		}
		if count > 0 {
			split.Headers, err = r.store.FetchHeaders(height+1, int(count))
			if err != nil {
				return nil, err
			}
		}
		r.metrics.HeadersServed.Add(float64(len(split.Headers)))
		return split, nil
	}
	return nil, fmt.Errorf("%w: none of the %d block hashes is on the main chain", ErrNotFound, len(req.BlockHashes))
}

func (r *Responder) GetHeaderByHeight(height uint64) (*types.BlockHeader, error) {
	meta, err := r.store.FetchChainMetadata()
	if err != nil {
		return nil, err
	}
	if height > meta.Height {
		return nil, fmt.Errorf("%w: header #%d", ErrNotFound, height)
	}
	h, err := r.store.FetchHeaderByHeight(height)
	if errors.Is(err, store.ErrValueNotFound) {
		return nil, fmt.Errorf("%w: header #%d", ErrNotFound, height)
	}
	return h, err
}

func (r *Responder) GetChainMetadata() (*types.ChainMetadata, error) {
	return r.store.FetchChainMetadata()
}
