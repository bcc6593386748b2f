package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/test/factory"
	"github.com/mmrnode/mmrnode/types"
)

// withBody returns a copy of block with its body changed by fn.
func withBody(block *types.Block, fn func(body *types.AggregateBody)) *types.Block {
	body := &types.AggregateBody{
		Inputs:  append([]*types.TransactionInput(nil), block.Body.Inputs...),
		Outputs: append([]*types.TransactionOutput(nil), block.Body.Outputs...),
		Kernels: append([]*types.TransactionKernel(nil), block.Body.Kernels...),
	}
	fn(body)
	factory.SortBody(body)
	return &types.Block{Header: block.Header, Body: body}
}

func TestBodyOnlyValidator(t *testing.T) {
	b := factory.NewChainBuilder(t, "body")
	b.AddBlocks(3)
	v := NewBodyOnlyValidator(b.Store())

	next, _ := b.MakeBlock()
	require.NotEmpty(t, next.Body.Inputs)
	require.NoError(t, v.ValidateBody(next))

	testCases := []struct {
		name  string
		block func() *types.Block
		kind  error
	}{
		{
			"no kernels",
			func() *types.Block {
				return withBody(next, func(body *types.AggregateBody) { body.Kernels = nil })
			},
			ErrInvalidBody,
		},
		{
			"unknown input",
			func() *types.Block {
				return withBody(next, func(body *types.AggregateBody) {
					body.Inputs = []*types.TransactionInput{{Commitment: factory.MakeCommitment("unknown")}}
				})
			},
			ErrUnknownInput,
		},
		{
			"double spend",
			func() *types.Block {
				return withBody(next, func(body *types.AggregateBody) {
					spent := factory.GenesisBlock().Body.Outputs[0].Commitment
					body.Inputs = []*types.TransactionInput{{Commitment: spent}}
				})
			},
			ErrDoubleSpend,
		},
		{
			"duplicate output",
			func() *types.Block {
				return withBody(next, func(body *types.AggregateBody) {
					body.Outputs = append(body.Outputs, b.Block(1).Body.Outputs[0])
				})
			},
			ErrInvalidBody,
		},
		{
			"extra output",
			func() *types.Block {
				return withBody(next, func(body *types.AggregateBody) {
					body.Outputs = append(body.Outputs, factory.MakeOutput("extra"))
				})
			},
			ErrInvalidMMRRoot,
		},
		{
			"header with wrong kernel root",
			func() *types.Block {
				h := *next.Header
				h.KernelMR = b.Tip().Header.KernelMR
				return &types.Block{Header: &h, Body: next.Body}
			},
			ErrInvalidMMRRoot,
		},
		{
			"header with wrong output mmr size",
			func() *types.Block {
				h := *next.Header
				h.OutputMMRSize++
				return &types.Block{Header: &h, Body: next.Body}
			},
			ErrInvalidMMRRoot,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateBody(tc.block())
			require.ErrorIs(t, err, tc.kind)

			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, next.Height(), verr.Height)
		})
	}

	// validation leaves the store untouched
	meta, err := b.Store().FetchChainMetadata()
	require.NoError(t, err)
	assert.EqualValues(t, 3, meta.Height)
	require.NoError(t, v.ValidateBody(next))
}

func TestBodyOnlyValidatorRejectsBlockOffTheBestBlock(t *testing.T) {
	b := factory.NewChainBuilder(t, "off")
	b.AddBlocks(2)
	v := NewBodyOnlyValidator(b.Store())

	err := v.ValidateBody(b.Block(1))
	require.ErrorIs(t, err, store.ErrInvalidOperation)
	assert.NotErrorIs(t, err, ErrInvalidMMRRoot)
}
