package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeers(t *testing.T) {
	testCases := []struct {
		list    string
		want    []PeerAddress
		wantErr bool
	}{
		{"", nil, false},
		{"alice@127.0.0.1:18142", []PeerAddress{{"alice", "127.0.0.1:18142"}}, false},
		{
			" alice@127.0.0.1:18142, ,bob@seed.example.com:18142 ",
			[]PeerAddress{{"alice", "127.0.0.1:18142"}, {"bob", "seed.example.com:18142"}},
			false,
		},
		{"alice@[::1]:18142", []PeerAddress{{"alice", "[::1]:18142"}}, false},
		{"127.0.0.1:18142", nil, true},
		{"@127.0.0.1:18142", nil, true},
		{"alice@127.0.0.1", nil, true},
		{"alice@:18142", nil, true},
		{"alice@127.0.0.1:1,alice@127.0.0.2:1", nil, true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.list, func(t *testing.T) {
			got, err := ParsePeers(tc.list)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPeerAddressString(t *testing.T) {
	p, err := ParsePeerAddress("alice@127.0.0.1:18142")
	require.NoError(t, err)
	assert.Equal(t, "alice@127.0.0.1:18142", p.String())
}
