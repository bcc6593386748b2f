package store

import (
	"fmt"

	"github.com/google/orderedcode"
)

// key prefixes
const (
	prefixMetadata         = int64(0)
	prefixChainHeader      = int64(1)
	prefixHeaderHash       = int64(2)
	prefixBlockAccumulated = int64(3)
	prefixBlockBodyIndex   = int64(4)
	prefixOutput           = int64(5)
	prefixKernel           = int64(6)
	prefixLeafIndex        = int64(7)
	prefixCheckpoint       = int64(8)
	prefixCheckpointBounds = int64(9)
	prefixOrphan           = int64(10)
)

// MetadataKey names a chain metadata value.
type MetadataKey string

const (
	MetadataChainHeight      MetadataKey = "ChainHeight"
	MetadataBestBlock        MetadataKey = "BestBlock"
	MetadataAccumulatedWork  MetadataKey = "AccumulatedWork"
	MetadataPruningHorizon   MetadataKey = "PruningHorizon"
	MetadataPrunedHeight     MetadataKey = "PrunedHeight"
	MetadataCheckpointOffset MetadataKey = "CheckpointOffset"
	MetadataHeaderTipHeight  MetadataKey = "HeaderTipHeight"
)

func mustAppend(items ...interface{}) []byte {
	key, err := orderedcode.Append(nil, items...)
	if err != nil {
		panic(err)
	}
	return key
}

func metadataKey(k MetadataKey) []byte {
	return mustAppend(prefixMetadata, string(k))
}

func chainHeaderKey(height uint64) []byte {
	return mustAppend(prefixChainHeader, height)
}

func decodeChainHeaderKey(key []byte) (height uint64, err error) {
	var prefix int64
	remaining, err := orderedcode.Parse(string(key), &prefix, &height)
	if err != nil {
		return 0, err
	}
	if len(remaining) != 0 {
		return 0, fmt.Errorf("expected complete key but got remainder: %s", remaining)
	}
	if prefix != prefixChainHeader {
		return 0, fmt.Errorf("incorrect prefix. Expected %v, got %v", prefixChainHeader, prefix)
	}
	return height, nil
}

func headerHashKey(hash []byte) []byte {
	return mustAppend(prefixHeaderHash, string(hash))
}

func blockAccumulatedKey(hash []byte) []byte {
	return mustAppend(prefixBlockAccumulated, string(hash))
}

func blockBodyIndexKey(hash []byte) []byte {
	return mustAppend(prefixBlockBodyIndex, string(hash))
}

func outputKey(commitment []byte) []byte {
	return mustAppend(prefixOutput, string(commitment))
}

func kernelKey(excess []byte) []byte {
	return mustAppend(prefixKernel, string(excess))
}

func leafIndexKey(tree Tree, hash []byte) []byte {
	return mustAppend(prefixLeafIndex, int64(tree), string(hash))
}

func checkpointKey(tree Tree, index uint64) []byte {
	return mustAppend(prefixCheckpoint, int64(tree), index)
}

func checkpointBoundsKey(tree Tree) []byte {
	return mustAppend(prefixCheckpointBounds, int64(tree))
}

func orphanKey(hash []byte) []byte {
	return mustAppend(prefixOrphan, string(hash))
}
