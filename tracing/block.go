package tracing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/paritytracer/node/tracing/callframe"
	"github.com/paritytracer/node/tracing/opcodegas"
	"github.com/paritytracer/node/tracing/overlay"
)

// traceBlockWith replays every transaction in block against an overlay
// seeded from the state at its parent, in order, committing each
// transaction's effects into the overlay before the next one runs so
// transaction i+1 observes transaction i's writes exactly as the real
// block execution would have produced them. It is the
// "trace-block-with" external capability spec.md §4.6 describes,
// implemented here directly against Backend.StateAtBlock plus
// per-transaction re-derivation, since this service does not receive
// a ready-made block-replay primitive from its Backend.
//
// perTx receives a StateReader snapshotting the overlay as it stood
// immediately before tx ran (so a result's state diff is measured
// against that tx's true pre-state) and must return the set of
// accounts tx touched, which traceBlockWith folds forward.
func (s *Service) traceBlockWith(ctx context.Context, block *types.Block, perTx func(ctx context.Context, tx *types.Transaction, index int, pre StateReader) ([]TouchedAccount, error)) error {
	parent, err := s.backend().BlockByNumberOrHash(ctx, rpc.BlockNumberOrHashWithHash(block.ParentHash(), false))
	if err != nil {
		return err
	}
	if parent == nil {
		return ErrBlockNotFound
	}
	base, err := s.backend().StateAtBlock(ctx, parent)
	if err != nil {
		return err
	}
	ov := overlay.New(base.(overlay.Reader))

	for i, tx := range block.Transactions() {
		pre := ov.Snapshot()
		touched, err := perTx(ctx, tx, i, pre)
		if err != nil {
			return err
		}
		commitTouched(ov, touched)
	}
	return nil
}

func (s *Service) senderOf(tx *types.Transaction) (common.Address, error) {
	signer := types.LatestSignerForChainID(s.backend().ChainConfig().ChainID)
	return types.Sender(signer, tx)
}

// TraceBlock implements trace_block (spec.md §4.6): every transaction
// in the block, followed by the block's reward traces if it is
// pre-Paris. Returns (nil, nil) for an unknown block.
func (s *Service) TraceBlock(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]LocalizedTrace, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	block, err := s.backend().BlockByNumberOrHash(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	var out []LocalizedTrace
	err = s.traceBlockWith(ctx, block, func(ctx context.Context, tx *types.Transaction, index int, pre StateReader) ([]TouchedAccount, error) {
		from, err := s.senderOf(tx)
		if err != nil {
			return nil, err
		}
		call := callRequestFromTransaction(tx, from)
		traces, result, err := s.execute(ctx, call, pre, BlockOverrides{}, block.NumberU64())
		if err != nil {
			return nil, err
		}
		hash := tx.Hash()
		idx := uint64(index)
		out = append(out, localizeTraces(traces, block.Hash(), block.NumberU64(), &hash, &idx)...)
		return result.Touched, nil
	})
	if err != nil {
		return nil, err
	}

	out = append(out, s.blockRewardTraces(block)...)
	return out, nil
}

// blockRewardTraces synthesizes and localizes block's reward traces,
// or returns nil if the block is already Paris-active.
func (s *Service) blockRewardTraces(block *types.Block) []LocalizedTrace {
	ommers := block.Uncles()
	rewards := s.rewardCalculator().Rewards(block.Header(), ommers)
	if len(rewards) == 0 {
		return nil
	}
	traces := make([]callframe.TransactionTrace, len(rewards))
	for i, r := range rewards {
		traces[i] = callframe.TransactionTrace{Action: r, TraceAddress: []uint64{}}
	}
	return localizeTraces(traces, block.Hash(), block.NumberU64(), nil, nil)
}

// ReplayBlockTransactions implements replay_block_transactions
// (spec.md §4.6): full results-with-state per transaction, keyed by
// transaction hash.
func (s *Service) ReplayBlockTransactions(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash, traceTypes TraceTypes) ([]TraceResultsWithTxHash, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	block, err := s.backend().BlockByNumberOrHash(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	var out []TraceResultsWithTxHash
	err = s.traceBlockWith(ctx, block, func(ctx context.Context, tx *types.Transaction, index int, pre StateReader) ([]TouchedAccount, error) {
		from, err := s.senderOf(tx)
		if err != nil {
			return nil, err
		}
		call := callRequestFromTransaction(tx, from)
		traces, result, err := s.execute(ctx, call, pre, BlockOverrides{}, block.NumberU64())
		if err != nil {
			return nil, err
		}
		res := buildResults(traces, result.ReturnData, traceTypes, pre, postState(pre, result.Touched), result.Touched)
		out = append(out, TraceResultsWithTxHash{TransactionHash: tx.Hash(), TraceResults: res})
		return result.Touched, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TraceBlockOpcodeGas implements trace_blockOpcodeGas (spec.md §4.6).
// Returns (nil, nil) if the block cannot be located.
func (s *Service) TraceBlockOpcodeGas(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*BlockOpcodeGas, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	block, err := s.backend().BlockByNumberOrHash(ctx, blockNrOrHash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	result := &BlockOpcodeGas{BlockHash: block.Hash(), BlockNumber: block.NumberU64()}
	err = s.traceBlockWith(ctx, block, func(ctx context.Context, tx *types.Transaction, index int, pre StateReader) ([]TouchedAccount, error) {
		from, err := s.senderOf(tx)
		if err != nil {
			return nil, err
		}
		call := callRequestFromTransaction(tx, from)
		gasInsp := opcodegas.NewInspector()
		execResult, err := s.backend().RunWithInspector(ctx, call, pre, BlockOverrides{}, gasInsp.Hooks())
		if err != nil {
			return nil, err
		}
		result.Transactions = append(result.Transactions, TxOpcodeGas{
			TransactionHash: tx.Hash(),
			OpcodeGas:       gasInsp.Finish(),
		})
		return execResult.Touched, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
