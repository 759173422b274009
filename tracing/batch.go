package tracing

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/paritytracer/node/tracing/overlay"
)

// CallManyItem is one entry of a trace_callMany batch: a call plus the
// trace types requested for it.
type CallManyItem struct {
	Call       *CallRequest
	TraceTypes TraceTypes
}

// defaultCallManyBlock is trace_call_many's base block when the
// caller omits one. spec.md §4.5 and the Open Questions (§9) both note
// this defaults to pending, which may require a virtual pending block
// from the backend; this service does not construct one itself.
func defaultCallManyBlock() rpc.BlockNumberOrHash {
	return rpc.BlockNumberOrHashWithNumber(rpc.PendingBlockNumber)
}

// TraceCallMany implements the Sequential Batch Tracer (spec.md §4.5):
// n calls chained on one write-through overlay so call i+1 observes
// call i's writes, each result's state diff measured against the
// overlay's state as of just before that call ran.
func (s *Service) TraceCallMany(ctx context.Context, calls []CallManyItem, blockNrOrHash *rpc.BlockNumberOrHash) ([]TraceResults, error) {
	permit, err := s.permits().Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer permit.Release()

	nrOrHash := defaultCallManyBlock()
	if blockNrOrHash != nil {
		nrOrHash = *blockNrOrHash
	}
	block, err := s.backend().BlockByNumberOrHash(ctx, nrOrHash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrBlockNotFound
	}

	base, err := s.backend().StateAtBlock(ctx, block)
	if err != nil {
		return nil, err
	}
	ov := overlay.New(base.(overlay.Reader))

	results := make([]TraceResults, len(calls))
	for i, item := range calls {
		// snapshot ov's account views before this call so the result's
		// state diff can be measured against "the overlay as it stood
		// entering this call" even after commitTouched mutates ov below.
		pre := snapshotOverlay(ov)

		traces, result, err := s.execute(ctx, item.Call, ov, BlockOverrides{}, block.NumberU64())
		if err != nil {
			return nil, err
		}
		// Commit before building this call's own diff: otherwise ov still
		// reads as "pre" for this call's own writes and the returned
		// diff can only ever reflect earlier calls' already-committed
		// state, never this call's.
		commitTouched(ov, result.Touched)
		results[i] = buildResults(traces, result.ReturnData, item.TraceTypes, pre, ov, result.Touched)
	}
	return results, nil
}

// snapshotOverlay returns a read-only view pinned to ov's current
// local writes, immune to commitTouched calls made after it is taken.
// It is itself backed by a fresh Overlay over the same inner reader so
// pre-call reads fall through exactly like ov's did at snapshot time.
func snapshotOverlay(ov *overlay.Overlay) StateReader {
	return ov.Snapshot()
}

// commitTouched folds one call's resulting account states into ov so
// the next call in the batch observes them (spec.md §4.5 step 3).
func commitTouched(ov *overlay.Overlay, touched []TouchedAccount) {
	for _, t := range touched {
		ov.SetAccount(t.Address, overlay.Account{
			Balance:  t.Balance,
			Nonce:    t.Nonce,
			Code:     t.Code,
			CodeHash: t.CodeHash,
			Exists:   true,
		})
		for slot, value := range t.Storage {
			ov.SetState(t.Address, slot, value)
		}
	}
}
