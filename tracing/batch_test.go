package tracing

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtracing "github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	contractAddr = common.HexToAddress("0xC0FFEE")
	slot7        = common.BigToHash(big.NewInt(7))
)

// incrementReadBackend is a minimal Backend whose RunWithInspector
// understands two call shapes: a "incr" call bumps slot7 by one and
// reports it as a touched account; a "read" call returns slot7's
// current value as its return data. It exists only to exercise the
// Sequential Batch Tracer's overlay-chaining invariant (spec.md §4.5)
// without needing a real EVM.
type incrementReadBackend struct {
	block *types.Block
	state *fakeState
}

func newIncrementReadBackend() *incrementReadBackend {
	header := &types.Header{Number: big.NewInt(100)}
	return &incrementReadBackend{
		block: types.NewBlockWithHeader(header),
		state: newFakeState(),
	}
}

func (b *incrementReadBackend) ChainConfig() *params.ChainConfig { return params.MainnetChainConfig }
func (b *incrementReadBackend) CurrentBlock() *types.Header      { return b.block.Header() }

func (b *incrementReadBackend) HeaderByNumberOrHash(ctx context.Context, n rpc.BlockNumberOrHash) (*types.Header, error) {
	return b.block.Header(), nil
}
func (b *incrementReadBackend) BlockByNumberOrHash(ctx context.Context, n rpc.BlockNumberOrHash) (*types.Block, error) {
	return b.block, nil
}
func (b *incrementReadBackend) BlockByNumber(ctx context.Context, n rpc.BlockNumber) (*types.Block, error) {
	return b.block, nil
}
func (b *incrementReadBackend) RecoveredBlockRange(ctx context.Context, from, to uint64) ([]*types.Block, error) {
	return []*types.Block{b.block}, nil
}
func (b *incrementReadBackend) StateAtBlock(ctx context.Context, block *types.Block) (StateReader, error) {
	return b.state, nil
}
func (b *incrementReadBackend) StateAtTransaction(ctx context.Context, block *types.Block, txIndex int) (*types.Transaction, StateReader, error) {
	return nil, b.state, nil
}
func (b *incrementReadBackend) GetTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, common.Hash, uint64, uint64, bool) {
	return nil, common.Hash{}, 0, 0, false
}
func (b *incrementReadBackend) IsPrecompile(blockNumber uint64, addr common.Address) bool {
	return false
}

func (b *incrementReadBackend) RunWithInspector(ctx context.Context, call *CallRequest, state StateReader, overrides BlockOverrides, hooks *gethtracing.Hooks) (*ExecutionResult, error) {
	current := state.GetState(contractAddr, slot7)
	switch {
	case bytes.Equal(call.Data, []byte("incr")):
		next := new(big.Int).Add(current.Big(), big.NewInt(1))
		return &ExecutionResult{
			Touched: []TouchedAccount{{
				Address: contractAddr,
				Balance: state.GetBalance(contractAddr),
				Nonce:   state.GetNonce(contractAddr),
				Storage: map[common.Hash]common.Hash{slot7: common.BigToHash(next)},
			}},
		}, nil
	case bytes.Equal(call.Data, []byte("read")):
		return &ExecutionResult{ReturnData: current.Bytes()}, nil
	default:
		return &ExecutionResult{}, nil
	}
}

// fakeState is a StateReader/overlay.Reader-shaped in-memory store
// with zero-valued accounts/storage until written.
type fakeState struct {
	storage map[common.Hash]common.Hash
}

func newFakeState() *fakeState {
	return &fakeState{storage: map[common.Hash]common.Hash{}}
}

func (s *fakeState) GetBalance(addr common.Address) *uint256.Int { return uint256.NewInt(0) }
func (s *fakeState) GetNonce(addr common.Address) uint64         { return 0 }
func (s *fakeState) GetCode(addr common.Address) []byte          { return nil }
func (s *fakeState) GetCodeHash(addr common.Address) common.Hash { return common.Hash{} }
func (s *fakeState) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.storage[key]
}
func (s *fakeState) Exist(addr common.Address) bool { return true }

// TestTraceCallManyChainsOverlayWrites is spec.md §8 scenario 2: call A
// increments storage slot 7, call B reads slot 7; B's returned value
// must reflect A's write.
func TestTraceCallManyChainsOverlayWrites(t *testing.T) {
	backend := newIncrementReadBackend()
	svc := NewService(backend, DefaultConfig())

	calls := []CallManyItem{
		{Call: &CallRequest{To: &contractAddr, Data: []byte("incr")}, TraceTypes: NewTraceTypes()},
		{Call: &CallRequest{To: &contractAddr, Data: []byte("read")}, TraceTypes: NewTraceTypes()},
	}

	results, err := svc.TraceCallMany(context.Background(), calls, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	got := new(big.Int).SetBytes(results[1].Output)
	require.Equal(t, big.NewInt(1), got, "second call must observe the first call's write")
}

func TestTraceCallManyPreservesInputOrder(t *testing.T) {
	backend := newIncrementReadBackend()
	svc := NewService(backend, DefaultConfig())

	calls := []CallManyItem{
		{Call: &CallRequest{To: &contractAddr, Data: []byte("incr")}, TraceTypes: NewTraceTypes()},
		{Call: &CallRequest{To: &contractAddr, Data: []byte("incr")}, TraceTypes: NewTraceTypes()},
		{Call: &CallRequest{To: &contractAddr, Data: []byte("read")}, TraceTypes: NewTraceTypes()},
	}

	results, err := svc.TraceCallMany(context.Background(), calls, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	got := new(big.Int).SetBytes(results[2].Output)
	require.Equal(t, big.NewInt(2), got)
}

// TestTraceCallManyStateDiffReflectsOwnWrite guards against the diff
// being built against the overlay as it stood before this call's own
// writes were committed: the touched slot must show a genuine
// pre/post divergence, not From==To.
func TestTraceCallManyStateDiffReflectsOwnWrite(t *testing.T) {
	backend := newIncrementReadBackend()
	svc := NewService(backend, DefaultConfig())

	calls := []CallManyItem{
		{Call: &CallRequest{To: &contractAddr, Data: []byte("incr")}, TraceTypes: NewTraceTypes(TraceTypeStateDiff)},
	}

	results, err := svc.TraceCallMany(context.Background(), calls, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	diff, ok := results[0].StateDiff[contractAddr]
	require.True(t, ok, "an account touched by the call must appear in the diff even when it never entered the call tree")

	slotDiff, ok := diff.Storage[slot7]
	require.True(t, ok)
	assert.Equal(t, common.Hash{}, slotDiff.From)
	assert.Equal(t, common.BigToHash(big.NewInt(1)), slotDiff.To)
	assert.NotEqual(t, slotDiff.From, slotDiff.To, "the call's own write must be visible in its own diff")
}
