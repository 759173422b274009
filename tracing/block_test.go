package tracing

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtracing "github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paritytracer/node/tracing/callframe"
)

// emptyBlockBackend serves one transaction-free mainnet block at a chosen
// number and its (also empty) parent, enough to exercise reward-trace
// synthesis on either side of Paris without
// needing a real signed transaction or EVM execution.
type emptyBlockBackend struct {
	block, parent *types.Block
	state         *fakeState
}

func newEmptyBlockBackend(number int64, ommers []*types.Header) *emptyBlockBackend {
	parentHeader := &types.Header{Number: big.NewInt(number - 1)}
	parent := types.NewBlockWithHeader(parentHeader)

	header := &types.Header{
		Number:     big.NewInt(number),
		ParentHash: parent.Hash(),
		Coinbase:   common.HexToAddress("0xF00D"),
	}
	block := types.NewBlockWithHeader(header).WithBody(types.Body{Uncles: ommers})

	return &emptyBlockBackend{block: block, parent: parent, state: newFakeState()}
}

func (b *emptyBlockBackend) ChainConfig() *params.ChainConfig { return params.MainnetChainConfig }
func (b *emptyBlockBackend) CurrentBlock() *types.Header      { return b.block.Header() }

func (b *emptyBlockBackend) HeaderByNumberOrHash(ctx context.Context, n rpc.BlockNumberOrHash) (*types.Header, error) {
	return b.block.Header(), nil
}
func (b *emptyBlockBackend) BlockByNumberOrHash(ctx context.Context, n rpc.BlockNumberOrHash) (*types.Block, error) {
	if hash, ok := n.Hash(); ok && hash == b.parent.Hash() {
		return b.parent, nil
	}
	return b.block, nil
}
func (b *emptyBlockBackend) BlockByNumber(ctx context.Context, n rpc.BlockNumber) (*types.Block, error) {
	return b.block, nil
}
func (b *emptyBlockBackend) RecoveredBlockRange(ctx context.Context, from, to uint64) ([]*types.Block, error) {
	return []*types.Block{b.block}, nil
}
func (b *emptyBlockBackend) StateAtBlock(ctx context.Context, block *types.Block) (StateReader, error) {
	return b.state, nil
}
func (b *emptyBlockBackend) StateAtTransaction(ctx context.Context, block *types.Block, txIndex int) (*types.Transaction, StateReader, error) {
	return nil, b.state, nil
}
func (b *emptyBlockBackend) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, common.Hash, uint64, uint64, bool) {
	return nil, common.Hash{}, 0, 0, false
}
func (b *emptyBlockBackend) IsPrecompile(blockNumber uint64, addr common.Address) bool { return false }
func (b *emptyBlockBackend) RunWithInspector(ctx context.Context, call *CallRequest, state StateReader, overrides BlockOverrides, hooks *gethtracing.Hooks) (*ExecutionResult, error) {
	return &ExecutionResult{}, nil
}

// TestTraceBlockPreParisNoOmmersYieldsOneRewardTrace is spec.md §8's
// boundary case: a pre-Paris block with 0 ommers produces exactly 1
// reward trace of type Block.
func TestTraceBlockPreParisNoOmmersYieldsOneRewardTrace(t *testing.T) {
	backend := newEmptyBlockBackend(mainnetConstantinopleBlock+1, nil)
	svc := NewService(backend, DefaultConfig())

	traces, err := svc.TraceBlock(context.Background(), rpc.BlockNumberOrHashWithHash(backend.block.Hash(), false))
	require.NoError(t, err)
	require.Len(t, traces, 1)

	reward, ok := traces[0].Action.(*callframe.RewardAction)
	require.True(t, ok)
	assert.Equal(t, callframe.RewardTypeBlock, reward.RewardType)
	assert.Nil(t, traces[0].TransactionHash)
}

func TestTraceBlockPreParisWithOmmersYieldsKPlusOneRewardTraces(t *testing.T) {
	ommer := &types.Header{Number: big.NewInt(mainnetConstantinopleBlock), Coinbase: common.HexToAddress("0xBEEF")}
	backend := newEmptyBlockBackend(mainnetConstantinopleBlock+1, []*types.Header{ommer})
	svc := NewService(backend, DefaultConfig())

	traces, err := svc.TraceBlock(context.Background(), rpc.BlockNumberOrHashWithHash(backend.block.Hash(), false))
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, callframe.RewardTypeBlock, traces[0].Action.(*callframe.RewardAction).RewardType)
	assert.Equal(t, callframe.RewardTypeUncle, traces[1].Action.(*callframe.RewardAction).RewardType)
}

func TestTraceBlockPostParisYieldsNoRewardTraces(t *testing.T) {
	backend := newEmptyBlockBackend(mainnetParisBlock, nil)
	svc := NewService(backend, DefaultConfig())

	traces, err := svc.TraceBlock(context.Background(), rpc.BlockNumberOrHashWithHash(backend.block.Hash(), false))
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func TestTraceBlockUnknownBlockReturnsNilNil(t *testing.T) {
	backend := newEmptyBlockBackend(mainnetParisBlock, nil)
	backend.block = nil // force BlockByNumberOrHash-equivalent "not found"
	svc := NewService(&nilBlockBackend{emptyBlockBackend: backend}, DefaultConfig())

	traces, err := svc.TraceBlock(context.Background(), rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber))
	require.NoError(t, err)
	assert.Nil(t, traces)
}

// nilBlockBackend overrides BlockByNumberOrHash to report "not found",
// matching spec.md §4.6's "returns None iff the block is unknown".
type nilBlockBackend struct {
	*emptyBlockBackend
}

func (b *nilBlockBackend) BlockByNumberOrHash(ctx context.Context, n rpc.BlockNumberOrHash) (*types.Block, error) {
	return nil, nil
}
