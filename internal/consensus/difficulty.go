package consensus

import (
	"github.com/holiman/uint256"

	"github.com/mmrnode/mmrnode/types"
)

type difficultyEntry struct {
	height    uint64
	timestamp uint64
	target    types.Difficulty
}

// TargetDifficultyWindow computes the next target difficulty of one
// algorithm with a linearly weighted moving average over the most recent
// solve times. Recent solve times weigh more, so the target follows hash
// rate changes quickly.
type TargetDifficultyWindow struct {
	blockWindow int
	targetTime  uint64
	min, max    types.Difficulty

	entries []difficultyEntry
}

// NewTargetDifficultyWindow returns an empty window averaging blockWindow
// solve times.
func NewTargetDifficultyWindow(blockWindow int, targetTimeSecs uint64, min, max types.Difficulty) *TargetDifficultyWindow {
	return &TargetDifficultyWindow{
		blockWindow: blockWindow,
		targetTime:  targetTimeSecs,
		min:         min,
		max:         max,
		entries:     make([]difficultyEntry, 0, blockWindow+1),
	}
}

// NewTargetDifficultyWindowFor builds an empty window for algo under the
// given constants.
func NewTargetDifficultyWindowFor(c Constants, algo types.PowAlgorithm) *TargetDifficultyWindow {
	pc := c.PowAlgos[algo]
	return NewTargetDifficultyWindow(c.DifficultyBlockWindow, uint64(pc.TargetTime.Seconds()), pc.MinDifficulty, pc.MaxDifficulty)
}

// Capacity is the number of entries the window keeps.
func (w *TargetDifficultyWindow) Capacity() int {
	return w.blockWindow + 1
}

func (w *TargetDifficultyWindow) Len() int {
	return len(w.entries)
}

func (w *TargetDifficultyWindow) IsFull() bool {
	return len(w.entries) >= w.Capacity()
}

// Add appends the newest header's timestamp and target, dropping the oldest
// entry once the window is full.
func (w *TargetDifficultyWindow) Add(height, timestamp uint64, target types.Difficulty) {
	if w.IsFull() {
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:len(w.entries)-1]
	}
	w.entries = append(w.entries, difficultyEntry{height: height, timestamp: timestamp, target: target})
}

// AddFront inserts an older entry in front of the window. It is used when
// filling the window by walking back from the tip and does nothing once the
// window is full.
func (w *TargetDifficultyWindow) AddFront(height, timestamp uint64, target types.Difficulty) {
	if w.IsFull() {
		return
	}
	w.entries = append(w.entries, difficultyEntry{})
	copy(w.entries[1:], w.entries)
	w.entries[0] = difficultyEntry{height: height, timestamp: timestamp, target: target}
}

// Expire drops the entries of headers below minHeight.
func (w *TargetDifficultyWindow) Expire(minHeight uint64) {
	i := 0
	for i < len(w.entries) && w.entries[i].height < minHeight {
		i++
	}
	if i > 0 {
		w.entries = append(w.entries[:0], w.entries[i:]...)
	}
}

// CalculateTarget returns the target difficulty for the next header of this
// algorithm, clamped to the configured bounds.
func (w *TargetDifficultyWindow) CalculateTarget() types.Difficulty {
	n := uint64(len(w.entries))
	if n < 2 {
		return w.min
	}
	n--

	maxSolveTime := 6 * w.targetTime
	weightedTimes := new(uint256.Int)
	sumTargets := new(uint256.Int)
	for i := uint64(1); i <= n; i++ {
		prev, cur := w.entries[i-1], w.entries[i]
		solveTime := uint64(1)
		if cur.timestamp > prev.timestamp {
			solveTime = cur.timestamp - prev.timestamp
		}
		if solveTime > maxSolveTime {
			solveTime = maxSolveTime
		}
		weightedTimes.Add(weightedTimes, uint256.NewInt(solveTime*i))
		sumTargets.Add(sumTargets, cur.target.Uint256())
	}

	k := n * (n + 1) / 2
	// do not let a burst of fast blocks raise the target more than tenfold
	if floor := uint256.NewInt(k * w.targetTime / 10); weightedTimes.Lt(floor) {
		weightedTimes = floor
	}
	if weightedTimes.IsZero() {
		weightedTimes = uint256.NewInt(1)
	}

	// next = avg(target) * T * k / weighted
	next := new(uint256.Int).Div(sumTargets, uint256.NewInt(n))
	next.Mul(next, uint256.NewInt(w.targetTime))
	next.Mul(next, uint256.NewInt(k))
	next.Div(next, weightedTimes)

	switch {
	case !next.IsUint64() || types.Difficulty(next.Uint64()) > w.max:
		return w.max
	case types.Difficulty(next.Uint64()) < w.min:
		return w.min
	default:
		return types.Difficulty(next.Uint64())
	}
}

// Rebound returns a window under the constants c holding the most recent
// entries of w. It is used when new constants take effect mid chain.
func (w *TargetDifficultyWindow) Rebound(c Constants, algo types.PowAlgorithm) *TargetDifficultyWindow {
	nw := NewTargetDifficultyWindowFor(c, algo)
	start := 0
	if len(w.entries) > nw.Capacity() {
		start = len(w.entries) - nw.Capacity()
	}
	nw.entries = append(nw.entries, w.entries[start:]...)
	return nw
}
