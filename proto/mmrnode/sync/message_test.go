package sync_test

import (
	"testing"

	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/require"

	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	types "github.com/mmrnode/mmrnode/proto/mmrnode/types"
)

func TestFindChainSplitRequest_Validate(t *testing.T) {
	hashes := func(n int) [][]byte {
		out := make([][]byte, n)
		for i := range out {
			out[i] = []byte{byte(i), byte(i >> 8)}
		}
		return out
	}

	testCases := []struct {
		testName  string
		hashes    int
		count     uint64
		expectErr bool
	}{
		{"Valid Request Message", 1, 0, false},
		{"Maximum Hashes And Count", 500, 100, false},
		{"Too Many Hashes", 501, 10, true},
		{"Count Too Large", 10, 101, true},
		{"No Hashes", 0, 10, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.testName, func(t *testing.T) {
			msg := &syncproto.FindChainSplitRequest{BlockHashes: hashes(tc.hashes), HeaderCount: tc.count}
			require.Equal(t, tc.expectErr, msg.Validate() != nil)
		})
	}
}

func TestSyncBlocksRequest_Validate(t *testing.T) {
	require.Error(t, (&syncproto.SyncBlocksRequest{}).Validate())
	require.NoError(t, (&syncproto.SyncBlocksRequest{StartHash: []byte{1}}).Validate())
	require.Error(t, (&syncproto.SyncHeadersRequest{Count: 3}).Validate())
}

func TestFindChainSplitResponseEncoding(t *testing.T) {
	resp := &syncproto.FindChainSplitResponse{
		FoundHashIndex: 3,
		Headers: []*types.BlockHeader{
			{Height: 7, PrevHash: []byte{1, 2}, Pow: &types.ProofOfWork{Algo: 1}},
			{Height: 8, PrevHash: []byte{3, 4}},
		},
		TipHeight: 12,
	}
	bz, err := proto.Marshal(resp)
	require.NoError(t, err)

	var decoded syncproto.FindChainSplitResponse
	require.NoError(t, proto.Unmarshal(bz, &decoded))
	require.True(t, proto.Equal(resp, &decoded))
}
