package types

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmrnode/mmrnode/internal/mmr"
)

func TestNewAccumulatedHeaderData(t *testing.T) {
	genesis := makeHeader()
	genesis.Height = 0
	genesis.PrevHash = nil
	prev := GenesisAccumulatedData(genesis)

	next := makeHeader()
	next.Height = 1
	next.PrevHash = prev.Hash
	next.Pow.Algo = PowAlgoSha3x

	acc, err := NewAccumulatedHeaderData(prev, next, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, next.Hash(), acc.Hash)
	assert.Equal(t, uint256.NewInt(101), acc.AccumulatedSha3xDifficulty)
	assert.Equal(t, uint256.NewInt(1), acc.AccumulatedBlake2bDifficulty)
	assert.Equal(t, uint256.NewInt(101), acc.TotalAccumulatedDifficulty)
	assert.EqualValues(t, 50, acc.TargetDifficulty)

	third := makeHeader()
	third.Height = 2
	third.PrevHash = acc.Hash
	acc2, err := NewAccumulatedHeaderData(acc, third, 9, 9)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1010), acc2.TotalAccumulatedDifficulty)

	ch := &ChainHeader{Header: third, Accumulated: acc2}
	require.NoError(t, ch.ValidateBasic())

	decoded, err := ChainHeaderFromProto(ch.ToProto())
	require.NoError(t, err)
	assert.Equal(t, acc2.TotalAccumulatedDifficulty, decoded.Accumulated.TotalAccumulatedDifficulty)
	assert.Equal(t, ch.Hash(), decoded.Hash())

	ch.Accumulated = acc
	assert.Error(t, ch.ValidateBasic())
}

func TestBlockAccumulatedDataProto(t *testing.T) {
	deleted := bitset.New(0)
	deleted.Set(3)
	data := &BlockAccumulatedData{
		Kernels:     &mmr.PrunedHashSet{Size: 1, Peaks: [][]byte{hashOf(1)}},
		Outputs:     &mmr.PrunedHashSet{Size: 4, Peaks: [][]byte{hashOf(2), hashOf(3)}},
		RangeProofs: &mmr.PrunedHashSet{},
		Deleted:     deleted,
	}
	decoded, err := BlockAccumulatedDataFromProto(data.ToProto())
	require.NoError(t, err)
	assert.True(t, data.Outputs.Equal(decoded.Outputs))
	assert.True(t, mmr.BitmapsEqual(deleted, decoded.Deleted))
	assert.Nil(t, decoded.KernelSum.Bytes())
}
