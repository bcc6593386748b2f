package validation

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mmrnode/mmrnode/internal/consensus"
	"github.com/mmrnode/mmrnode/types"
)

// HeaderStore is the part of the block store the header validator reads.
type HeaderStore interface {
	FetchChainHeaderByHash(hash []byte) (*types.ChainHeader, error)
	FetchChainHeaderByHeight(height uint64) (*types.ChainHeader, error)
}

// State is the state of a ChainHeaderValidator.
type State int

const (
	StateStart State = iota
	StateValidating
	StateAccepted
	// StateRejected is terminal.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateValidating:
		return "Validating"
	case StateAccepted:
		return "Accepted"
	case StateRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// timestampWindow holds the timestamps of the most recent headers both in
// chain order, to know which one leaves the window next, and sorted, to
// take the median.
type timestampWindow struct {
	ordered []uint64
	sorted  []uint64
}

func (w *timestampWindow) median() uint64 {
	return consensus.MedianTimestamp(w.sorted)
}

func (w *timestampWindow) insertSorted(ts uint64) {
	i := sort.Search(len(w.sorted), func(i int) bool { return w.sorted[i] >= ts })
	w.sorted = append(w.sorted, 0)
	copy(w.sorted[i+1:], w.sorted[i:])
	w.sorted[i] = ts
}

func (w *timestampWindow) removeSorted(ts uint64) {
	i := sort.Search(len(w.sorted), func(i int) bool { return w.sorted[i] >= ts })
	w.sorted = append(w.sorted[:i], w.sorted[i+1:]...)
}

// addFront inserts the timestamp of an older header.
func (w *timestampWindow) addFront(ts uint64) {
	w.ordered = append([]uint64{ts}, w.ordered...)
	w.insertSorted(ts)
}

// push adds the newest timestamp and evicts the oldest ones beyond size.
func (w *timestampWindow) push(ts uint64, size int) {
	w.ordered = append(w.ordered, ts)
	w.insertSorted(ts)
	for len(w.ordered) > size {
		w.removeSorted(w.ordered[0])
		w.ordered = w.ordered[1:]
	}
}

/*
ChainHeaderValidator admits headers on top of a stored anchor header, one at
a time and strictly in order. Each header must:

  1. be exactly one higher than the previous one
  2. link to the previous header's hash
  3. not be older than the median of the recent timestamps, nor too far in
     the future
  4. achieve the target difficulty of its proof-of-work algorithm

after which its accumulated data is derived from the previous header's. The
first failure rejects the validator for good. Nothing is persisted.
*/
type ChainHeaderValidator struct {
	store HeaderStore
	rules consensus.Rules
	now   func() time.Time

	state State
	err   error

	constants  consensus.Constants
	previous   *types.ChainHeader
	timestamps timestampWindow
	windows    map[types.PowAlgorithm]*consensus.TargetDifficultyWindow
	valid      []*types.ChainHeader
}

// NewChainHeaderValidator returns a validator in StateStart. InitializeState
// must be called before any header is validated.
func NewChainHeaderValidator(store HeaderStore, rules consensus.Rules) *ChainHeaderValidator {
	return &ChainHeaderValidator{
		store: store,
		rules: rules,
		now:   time.Now,
		state: StateStart,
	}
}

// InitializeState anchors the validator at the stored header with the given
// hash and loads the timestamp and difficulty windows ending at it.
func (v *ChainHeaderValidator) InitializeState(startHash []byte) error {
	anchor, err := v.store.FetchChainHeaderByHash(startHash)
	if err != nil {
		return fmt.Errorf("fetch anchor header %X: %w", startHash, err)
	}

	v.constants = v.rules.ConstantsAt(anchor.Height() + 1)
	v.windows = make(map[types.PowAlgorithm]*consensus.TargetDifficultyWindow, len(types.PowAlgorithms))
	for _, algo := range types.PowAlgorithms {
		v.windows[algo] = consensus.NewTargetDifficultyWindowFor(v.constants, algo)
	}
	v.timestamps = timestampWindow{}

	// walk back from the anchor until the timestamp window is full and
	// either every difficulty window is full or the lookback is exhausted
	minHeight := v.constants.MinDifficultyHeight(anchor.Height() + 1)
	height := anchor.Height()
	ch := anchor
	for {
		if !v.timestampsFull() {
			v.timestamps.addFront(ch.Header.Timestamp)
		}
		if w, ok := v.windows[ch.Header.Pow.Algo]; ok && height >= minHeight {
			w.AddFront(height, ch.Header.Timestamp, ch.Accumulated.TargetDifficulty)
		}
		if height == 0 || (v.timestampsFull() && (v.windowsFull() || height <= minHeight)) {
			break
		}
		height--
		ch, err = v.store.FetchChainHeaderByHeight(height)
		if err != nil {
			return fmt.Errorf("fetch header #%d: %w", height, err)
		}
	}

	v.previous = anchor
	v.valid = nil
	v.err = nil
	v.state = StateStart
	return nil
}

func (v *ChainHeaderValidator) timestampsFull() bool {
	return len(v.timestamps.ordered) >= v.constants.MedianTimestampCount
}

func (v *ChainHeaderValidator) windowsFull() bool {
	for _, w := range v.windows {
		if !w.IsFull() {
			return false
		}
	}
	return true
}

func (v *ChainHeaderValidator) State() State {
	return v.state
}

// Previous returns the last accepted header, or the anchor.
func (v *ChainHeaderValidator) Previous() *types.ChainHeader {
	return v.previous
}

// ValidHeaders returns the headers accepted since InitializeState, in order.
func (v *ChainHeaderValidator) ValidHeaders() []*types.ChainHeader {
	return v.valid
}

// Validate validates headers in order and returns the last one. It stops at
// the first invalid header.
func (v *ChainHeaderValidator) Validate(headers []*types.BlockHeader) (*types.ChainHeader, error) {
	if len(headers) == 0 {
		return nil, errors.New("no headers to validate")
	}
	var last *types.ChainHeader
	for _, h := range headers {
		ch, err := v.ValidateHeader(h)
		if err != nil {
			return nil, err
		}
		last = ch
	}
	return last, nil
}

// ValidateHeader validates the header following the previous one.
func (v *ChainHeaderValidator) ValidateHeader(header *types.BlockHeader) (*types.ChainHeader, error) {
	switch {
	case v.state == StateRejected:
		return nil, v.err
	case v.previous == nil:
		return nil, ErrNotInitialized
	}

	v.state = StateValidating
	ch, err := v.validate(header)
	if err != nil {
		v.state = StateRejected
		v.err = err
		return nil, err
	}
	v.previous = ch
	v.valid = append(v.valid, ch)
	v.state = StateAccepted
	return ch, nil
}

func (v *ChainHeaderValidator) validate(header *types.BlockHeader) (*types.ChainHeader, error) {
	if header == nil {
		return nil, fmt.Errorf("%w: nil header", ErrInvalidHeader)
	}
	prev := v.previous

	if header.Height != prev.Height()+1 {
		return nil, newError(header, ErrInvalidHeight, "expected %d", prev.Height()+1)
	}
	if !bytes.Equal(header.PrevHash, prev.Hash()) {
		return nil, newError(header, ErrChainLinkBroken,
			"previous hash %v does not match %v", header.PrevHash, prev.Hash())
	}
	if err := header.ValidateBasic(); err != nil {
		return nil, newError(header, ErrInvalidHeader, "%v", err)
	}

	v.applyConstants(header.Height)

	if median := v.timestamps.median(); header.Timestamp < median {
		return nil, newError(header, ErrInvalidTimestamp,
			"timestamp %d is below the median %d", header.Timestamp, median)
	}
	limit := v.now().Add(v.constants.FutureTimeLimit)
	if header.Time().After(limit) {
		return nil, newError(header, ErrInvalidTimestamp,
			"timestamp %v is after %v", header.Time(), limit.UTC())
	}

	window := v.windows[header.Pow.Algo]
	window.Expire(v.constants.MinDifficultyHeight(header.Height))
	target := window.CalculateTarget()
	achieved, err := consensus.AchievedDifficulty(header)
	if err != nil {
		return nil, newError(header, ErrInvalidHeader, "%v", err)
	}
	if achieved < target {
		return nil, newError(header, ErrPowTooLow, "achieved %d, target %d", achieved, target)
	}

	acc, err := types.NewAccumulatedHeaderData(prev.Accumulated, header, achieved, target)
	if err != nil {
		return nil, newError(header, ErrInvalidHeader, "%v", err)
	}

	v.timestamps.push(header.Timestamp, v.constants.MedianTimestampCount)
	window.Add(header.Height, header.Timestamp, target)
	return &types.ChainHeader{Header: header, Accumulated: acc}, nil
}

// applyConstants switches to the constants in effect at height, keeping the
// history gathered so far.
func (v *ChainHeaderValidator) applyConstants(height uint64) {
	c := v.rules.ConstantsAt(height)
	if c.EffectiveFromHeight == v.constants.EffectiveFromHeight {
		return
	}
	v.constants = c
	for algo, w := range v.windows {
		v.windows[algo] = w.Rebound(c, algo)
	}
	for len(v.timestamps.ordered) > c.MedianTimestampCount {
		v.timestamps.removeSorted(v.timestamps.ordered[0])
		v.timestamps.ordered = v.timestamps.ordered[1:]
	}
}
