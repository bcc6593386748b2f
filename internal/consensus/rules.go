package consensus

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mmrnode/mmrnode/types"
)

// PowAlgoConstants are the difficulty bounds and target block time of one
// proof-of-work algorithm.
type PowAlgoConstants struct {
	MinDifficulty types.Difficulty
	MaxDifficulty types.Difficulty
	// TargetTime is the desired interval between two blocks of this
	// algorithm.
	TargetTime time.Duration
}

// Constants are the consensus constants in effect from EffectiveFromHeight
// until the next set takes over.
type Constants struct {
	EffectiveFromHeight uint64
	// MedianTimestampCount is the size of the timestamp window a new header
	// must not fall below the median of.
	MedianTimestampCount int
	// DifficultyBlockWindow is the number of solve times the difficulty
	// adjustment averages over.
	DifficultyBlockWindow int
	// FutureTimeLimit bounds how far ahead of local time a header may be.
	FutureTimeLimit time.Duration
	PowAlgos        map[types.PowAlgorithm]PowAlgoConstants
}

// ValidateBasic checks the constants for internal consistency.
func (c Constants) ValidateBasic() error {
	if c.MedianTimestampCount < 1 {
		return errors.New("median timestamp count must be positive")
	}
	if c.DifficultyBlockWindow < 1 {
		return errors.New("difficulty block window must be positive")
	}
	for _, algo := range types.PowAlgorithms {
		pc, ok := c.PowAlgos[algo]
		if !ok {
			return fmt.Errorf("no constants for %v", algo)
		}
		if pc.MinDifficulty < types.MinDifficulty || pc.MaxDifficulty < pc.MinDifficulty {
			return fmt.Errorf("invalid difficulty bounds for %v: [%d, %d]", algo, pc.MinDifficulty, pc.MaxDifficulty)
		}
		if pc.TargetTime < time.Second {
			return fmt.Errorf("target time for %v must be at least a second", algo)
		}
	}
	return nil
}

// Rules provides the consensus constants for any height.
type Rules interface {
	ConstantsAt(height uint64) Constants
}

// HeightRules is a Rules backed by a list of constants sorted by the height
// they take effect at.
type HeightRules struct {
	constants []Constants
}

var _ Rules = (*HeightRules)(nil)

// NewHeightRules returns rules switching between the given constants. One of
// them must take effect at height zero.
func NewHeightRules(constants ...Constants) (*HeightRules, error) {
	if len(constants) == 0 {
		return nil, errors.New("no consensus constants")
	}
	sorted := make([]Constants, len(constants))
	copy(sorted, constants)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EffectiveFromHeight < sorted[j].EffectiveFromHeight
	})
	if sorted[0].EffectiveFromHeight != 0 {
		return nil, errors.New("no consensus constants for height zero")
	}
	for i, c := range sorted {
		if err := c.ValidateBasic(); err != nil {
			return nil, fmt.Errorf("constants from height %d: %w", c.EffectiveFromHeight, err)
		}
		if i > 0 && sorted[i-1].EffectiveFromHeight == c.EffectiveFromHeight {
			return nil, fmt.Errorf("duplicate constants for height %d", c.EffectiveFromHeight)
		}
	}
	return &HeightRules{constants: sorted}, nil
}

// MustNewHeightRules is NewHeightRules that panics on error.
func MustNewHeightRules(constants ...Constants) *HeightRules {
	r, err := NewHeightRules(constants...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *HeightRules) ConstantsAt(height uint64) Constants {
	i := sort.Search(len(r.constants), func(i int) bool {
		return r.constants[i].EffectiveFromHeight > height
	})
	return r.constants[i-1]
}

// DifficultyLookback is how many headers before a new one its difficulty
// windows draw from. An algorithm mined less often than that gets a partly
// filled window.
func (c Constants) DifficultyLookback() uint64 {
	return uint64(c.DifficultyBlockWindow+1) * uint64(len(types.PowAlgorithms))
}

// MinDifficultyHeight is the lowest header height the difficulty windows of
// the header at height may hold.
func (c Constants) MinDifficultyHeight(height uint64) uint64 {
	if lb := c.DifficultyLookback(); height > lb {
		return height - lb
	}
	return 0
}

// DefaultConstants returns the constants of a production network.
func DefaultConstants() Constants {
	return Constants{
		MedianTimestampCount:  11,
		DifficultyBlockWindow: 90,
		FutureTimeLimit:       2 * time.Hour,
		PowAlgos: map[types.PowAlgorithm]PowAlgoConstants{
			types.PowAlgoSha3x: {
				MinDifficulty: 60_000_000,
				MaxDifficulty: types.MaxDifficulty,
				TargetTime:    240 * time.Second,
			},
			types.PowAlgoBlake2b: {
				MinDifficulty: 60_000_000,
				MaxDifficulty: types.MaxDifficulty,
				TargetTime:    240 * time.Second,
			},
		},
	}
}

// TestConstants returns constants that any header satisfies, so tests can
// build chains without mining.
func TestConstants() Constants {
	return Constants{
		MedianTimestampCount:  11,
		DifficultyBlockWindow: 20,
		FutureTimeLimit:       2 * time.Hour,
		PowAlgos: map[types.PowAlgorithm]PowAlgoConstants{
			types.PowAlgoSha3x: {
				MinDifficulty: types.MinDifficulty,
				MaxDifficulty: types.MinDifficulty,
				TargetTime:    120 * time.Second,
			},
			types.PowAlgoBlake2b: {
				MinDifficulty: types.MinDifficulty,
				MaxDifficulty: types.MinDifficulty,
				TargetTime:    120 * time.Second,
			},
		},
	}
}

// MedianTimestamp returns the median of a sorted timestamp window, rounding
// down between the two middle values of an even window.
func MedianTimestamp(sorted []uint64) uint64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return sorted[n/2]
	default:
		a, b := sorted[n/2-1], sorted[n/2]
		return a + (b-a)/2
	}
}
