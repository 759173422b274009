package tracing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	gethtracing "github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/paritytracer/node/tracing/callframe"
	"github.com/paritytracer/node/tracing/opcodegas"
	"github.com/paritytracer/node/tracing/overlay"
)

// defaultBlockNrOrHash is the block identifier trace_call,
// trace_rawTransaction et al. resolve to when the caller omits one:
// the chain head (spec.md §4.4: "default: latest").
func defaultBlockNrOrHash() rpc.BlockNumberOrHash {
	return rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)
}

func (s *Service) resolveBlock(ctx context.Context, b *rpc.BlockNumberOrHash) (*types.Block, error) {
	nrOrHash := defaultBlockNrOrHash()
	if b != nil {
		nrOrHash = *b
	}
	block, err := s.backend().BlockByNumberOrHash(ctx, nrOrHash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrBlockNotFound
	}
	return block, nil
}

func (s *Service) applyOverrides(state StateReader, overrides StateOverrides) StateReader {
	if len(overrides) == 0 {
		return state
	}
	ov := overlay.New(state.(overlay.Reader))
	for addr, o := range overrides {
		if o.Balance != nil {
			ov.ApplyBalance(addr, o.Balance)
		}
		if o.Nonce != nil {
			ov.ApplyNonce(addr, *o.Nonce)
		}
		if o.Code != nil {
			ov.ApplyCode(addr, o.Code, common.BytesToHash(nil))
		}
		for k, v := range o.State {
			ov.SetState(addr, k, v)
		}
		for k, v := range o.StateDiff {
			ov.SetState(addr, k, v)
		}
	}
	return ov
}

// newTraceHooks builds the call-tree inspector and its Hooks for a
// single traced execution.
func newTraceHooks(blockNumber uint64, backend Backend) (*callframe.Inspector, *gethtracing.Hooks) {
	insp := callframe.NewInspector(callframe.Config{
		ExcludePrecompileCalls: true,
		IsPrecompile: func(addr common.Address) bool {
			return backend.IsPrecompile(blockNumber, addr)
		},
	})
	return insp, insp.Hooks()
}

// execute runs call against state via the Backend's instrumented
// runner and returns the call-tree traces plus the full execution
// result (including the touched-account post-state the batch tracer
// folds into its overlay between calls).
func (s *Service) execute(ctx context.Context, call *CallRequest, state StateReader, overrides BlockOverrides, blockNumber uint64) ([]callframe.TransactionTrace, *ExecutionResult, error) {
	insp, hooks := newTraceHooks(blockNumber, s.backend())
	result, err := s.backend().RunWithInspector(ctx, call, state, overrides, hooks)
	if err != nil {
		return nil, nil, err
	}
	return insp.Build(), result, nil
}

// buildResults assembles a TraceResults from one execution, populating
// a state diff over touchedAccounts plus touched's storage deltas when
// stateDiff was requested.
func buildResults(traces []callframe.TransactionTrace, output []byte, traceTypes TraceTypes, pre, post StateReader, touched []TouchedAccount) TraceResults {
	res := TraceResults{Output: output}
	if traceTypes.Has(TraceTypeTrace) {
		res.Trace = traces
	}
	if traceTypes.Has(TraceTypeVMTrace) {
		res.VMTrace = &VMTrace{}
	}
	if traceTypes.Has(TraceTypeStateDiff) {
		res.StateDiff = buildStateDiff(pre, post, touchedAccounts(traces), touched)
	}
	return res
}

// TraceCall implements trace_call (spec.md §4.4): resolve the block,
// install state/block overrides, execute non-committally, return
// results-with-state.
func (s *Service) TraceCall(ctx context.Context, call *CallRequest, traceTypes TraceTypes, blockNrOrHash *rpc.BlockNumberOrHash, stateOverrides StateOverrides, blockOverrides *BlockOverrides) (*TraceResults, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	block, err := s.resolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	base, err := s.backend().StateAtBlock(ctx, block)
	if err != nil {
		return nil, err
	}
	state := s.applyOverrides(base, stateOverrides)

	var bo BlockOverrides
	if blockOverrides != nil {
		bo = *blockOverrides
	}

	traces, result, err := s.execute(ctx, call, state, bo, block.NumberU64())
	if err != nil {
		return nil, err
	}
	res := buildResults(traces, result.ReturnData, traceTypes, state, postState(state, result.Touched), result.Touched)
	return &res, nil
}

// TraceRawTransaction implements trace_rawTransaction (spec.md §4.4).
func (s *Service) TraceRawTransaction(ctx context.Context, rawTx []byte, traceTypes TraceTypes, blockNrOrHash *rpc.BlockNumberOrHash) (*TraceResults, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return nil, ErrInvalidRawTransaction
	}
	signer := types.LatestSignerForChainID(s.backend().ChainConfig().ChainID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, ErrInvalidRawTransaction
	}

	block, err := s.resolveBlock(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	state, err := s.backend().StateAtBlock(ctx, block)
	if err != nil {
		return nil, err
	}

	call := callRequestFromTransaction(tx, from)
	traces, result, err := s.execute(ctx, call, state, BlockOverrides{}, block.NumberU64())
	if err != nil {
		return nil, err
	}
	res := buildResults(traces, result.ReturnData, traceTypes, state, postState(state, result.Touched), result.Touched)
	return &res, nil
}

// locateAndPrefixReplay finds txHash's containing block and position
// and replays the block up to (but not including) it, returning the
// state immediately before it executes along with the transaction
// itself. Shared by replay_transaction, trace_transaction, trace_get
// and trace_transactionOpcodeGas (spec.md §4.4).
func (s *Service) locateAndPrefixReplay(ctx context.Context, txHash common.Hash) (*types.Transaction, StateReader, *types.Block, uint64, bool, error) {
	tx, blockHash, _, index, found := s.backend().GetTransaction(ctx, txHash)
	if !found {
		return nil, nil, nil, 0, false, nil
	}
	block, err := s.backend().BlockByNumberOrHash(ctx, rpc.BlockNumberOrHashWithHash(blockHash, false))
	if err != nil {
		return nil, nil, nil, 0, false, err
	}
	if block == nil {
		return nil, nil, nil, 0, false, ErrBlockNotFound
	}
	_, state, err := s.backend().StateAtTransaction(ctx, block, int(index))
	if err != nil {
		return nil, nil, nil, 0, false, err
	}
	return tx, state, block, index, true, nil
}

// ReplayTransaction implements replay_transaction (spec.md §4.4).
func (s *Service) ReplayTransaction(ctx context.Context, txHash common.Hash, traceTypes TraceTypes) (*TraceResults, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	tx, state, block, _, found, err := s.locateAndPrefixReplay(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTransactionNotFound
	}
	signer := types.LatestSignerForChainID(s.backend().ChainConfig().ChainID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, err
	}
	call := callRequestFromTransaction(tx, from)
	traces, result, err := s.execute(ctx, call, state, BlockOverrides{}, block.NumberU64())
	if err != nil {
		return nil, err
	}
	res := buildResults(traces, result.ReturnData, traceTypes, state, postState(state, result.Touched), result.Touched)
	return &res, nil
}

// TraceTransaction implements trace_transaction (spec.md §4.4): same
// lookup as ReplayTransaction, localized call-tree traces instead of
// results-with-state. Returns (nil, nil) for an unknown transaction.
func (s *Service) TraceTransaction(ctx context.Context, txHash common.Hash) ([]LocalizedTrace, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	tx, state, block, txIndex, found, err := s.locateAndPrefixReplay(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	signer := types.LatestSignerForChainID(s.backend().ChainConfig().ChainID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, err
	}
	call := callRequestFromTransaction(tx, from)
	traces, _, err := s.execute(ctx, call, state, BlockOverrides{}, block.NumberU64())
	if err != nil {
		return nil, err
	}
	idx := txIndex
	hash := txHash
	return localizeTraces(traces, block.Hash(), block.NumberU64(), &hash, &idx), nil
}

// TraceGet implements trace_get (spec.md §4.4): historical-compatibility
// behavior where any count of indices other than exactly one returns
// (nil, nil), not an error.
func (s *Service) TraceGet(ctx context.Context, txHash common.Hash, indices []uint64) (*LocalizedTrace, error) {
	if len(indices) != 1 {
		return nil, nil
	}
	traces, err := s.TraceTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if traces == nil {
		return nil, nil
	}
	i := indices[0]
	if i >= uint64(len(traces)) {
		return nil, nil
	}
	return &traces[i], nil
}

// TraceTransactionOpcodeGas implements trace_transactionOpcodeGas
// (spec.md §4.4).
func (s *Service) TraceTransactionOpcodeGas(ctx context.Context, txHash common.Hash) (*TxOpcodeGas, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	tx, state, block, _, found, err := s.locateAndPrefixReplay(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	signer := types.LatestSignerForChainID(s.backend().ChainConfig().ChainID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, err
	}
	call := callRequestFromTransaction(tx, from)

	gasInsp := opcodegas.NewInspector()
	_, err = s.backend().RunWithInspector(ctx, call, state, BlockOverrides{}, gasInsp.Hooks())
	if err != nil {
		return nil, err
	}
	return &TxOpcodeGas{TransactionHash: txHash, OpcodeGas: gasInsp.Finish()}, nil
}

// callRequestFromTransaction derives a CallRequest from a signed
// transaction and its recovered sender, the EVM environment replay
// and raw-transaction tracing execute against (spec.md §4.4: "derive
// its EVM transaction environment").
func callRequestFromTransaction(tx *types.Transaction, from common.Address) *CallRequest {
	gas := tx.Gas()
	nonce := tx.Nonce()
	value, _ := uint256FromBig(tx.Value())
	gasPrice, _ := uint256FromBig(tx.GasPrice())

	req := &CallRequest{
		From:       &from,
		To:         tx.To(),
		Gas:        &gas,
		GasPrice:   gasPrice,
		Value:      value,
		Data:       tx.Data(),
		Nonce:      &nonce,
		AccessList: tx.AccessList(),
	}
	if tx.Type() >= types.DynamicFeeTxType {
		maxFee, _ := uint256FromBig(tx.GasFeeCap())
		tip, _ := uint256FromBig(tx.GasTipCap())
		req.MaxFeePerGas = maxFee
		req.MaxPriorityFeePerGas = tip
	}
	return req
}
