package tracing

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// traceBlockMatching traces every transaction in block and returns
// only the LocalizedTraces whose action matches filter. Reward traces
// are not synthesized here; the Range Filter adds those separately
// once results are back in ascending block order, since reward
// early-exit (spec.md §4.7 step 6) depends on that order.
func (s *Service) traceBlockMatching(ctx context.Context, block *types.Block, filter *TraceFilter) ([]LocalizedTrace, error) {
	var out []LocalizedTrace
	err := s.traceBlockWith(ctx, block, func(ctx context.Context, tx *types.Transaction, index int, pre StateReader) ([]TouchedAccount, error) {
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
		for _, lt := range localizeTraces(traces, block.Hash(), block.NumberU64(), &hash, &idx) {
			if filter.matches(lt.Action) {
				out = append(out, lt)
			}
		}
		return result.Touched, nil
	})
	return out, err
}

// TraceFilter implements trace_filter (spec.md §4.7): validate the
// range, fan out one trace job per block bounded by
// Config.RangeFilterWorkers, concatenate in ascending block order,
// append matching reward traces with the monotone early-exit, then
// paginate.
func (s *Service) TraceFilter(ctx context.Context, filter TraceFilter) ([]LocalizedTrace, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	head := s.backend().CurrentBlock()
	if head != nil && filter.FromBlock > head.Number.Uint64() {
		return nil, ErrBlockNotFound
	}
	if filter.FromBlock > filter.ToBlock {
		return nil, ErrInvalidBlockRange
	}
	if filter.ToBlock-filter.FromBlock > s.config().MaxTraceFilterBlocks {
		log.Warn("trace_filter range rejected", "from", filter.FromBlock, "to", filter.ToBlock, "max", s.config().MaxTraceFilterBlocks)
		return nil, ErrRangeTooLarge
	}

	log.Debug("trace_filter fanning out", "from", filter.FromBlock, "to", filter.ToBlock, "workers", s.config().RangeFilterWorkers)
	blocks, err := s.backend().RecoveredBlockRange(ctx, filter.FromBlock, filter.ToBlock)
	if err != nil {
		return nil, err
	}

	perBlock := make([][]LocalizedTrace, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config().RangeFilterWorkers)
	for i, block := range blocks {
		i, block := i, block
		g.Go(func() error {
			traces, err := s.traceBlockMatching(gctx, block, &filter)
			if err != nil {
				return err
			}
			perBlock[i] = traces
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []LocalizedTrace
	parisReached := false
	for i, block := range blocks {
		out = append(out, perBlock[i]...)

		if parisReached {
			continue
		}
		if s.rewardCalculator().IsParisActive(block.NumberU64()) {
			parisReached = true
			continue
		}
		for _, lt := range s.blockRewardTraces(block) {
			if filter.matches(lt.Action) {
				out = append(out, lt)
			}
		}
	}

	return paginate(out, filter.After, filter.Count), nil
}

// paginate drops the first `after` entries, then truncates to `count`
// if set (spec.md §4.7 step 7). after >= len(in) yields an empty
// slice, not an error.
func paginate(in []LocalizedTrace, after uint64, count *uint64) []LocalizedTrace {
	if after >= uint64(len(in)) {
		return []LocalizedTrace{}
	}
	out := in[after:]
	if count != nil && uint64(len(out)) > *count {
		out = out[:*count]
	}
	return out
}
