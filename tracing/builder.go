package tracing

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/paritytracer/node/tracing/callframe"
	"github.com/paritytracer/node/tracing/overlay"
)

// localizeTraces positions each frame within a block and, for
// non-reward frames, a transaction. Reward traces (built separately by
// the Reward Calculator) carry nil TransactionHash/TransactionIndex,
// per spec.md §3.
func localizeTraces(traces []callframe.TransactionTrace, blockHash common.Hash, blockNumber uint64, txHash *common.Hash, txIndex *uint64) []LocalizedTrace {
	out := make([]LocalizedTrace, len(traces))
	for i, t := range traces {
		out[i] = LocalizedTrace{
			TransactionTrace: t,
			BlockHash:        blockHash,
			BlockNumber:      blockNumber,
			TransactionHash:  txHash,
			TransactionIndex: txIndex,
		}
	}
	return out
}

// touchedAccounts collects every address participating in any frame's
// action — the "every account referenced by the post-state" set
// spec.md §4.3 says a state diff must cover.
func touchedAccounts(traces []callframe.TransactionTrace) []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	add := func(a common.Address) {
		if a == (common.Address{}) {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	for _, t := range traces {
		add(t.Action.From())
		add(t.Action.To())
	}
	return out
}

// accountDiff builds one account's balance/nonce/code delta between
// pre and post, with an empty Storage map the caller fills in.
func accountDiff(pre, post StateReader, addr common.Address) AccountDiff {
	return AccountDiff{
		Balance: StorageSlotDiff[*uint256.Int]{From: pre.GetBalance(addr), To: post.GetBalance(addr)},
		Nonce:   StorageSlotDiff[uint64]{From: pre.GetNonce(addr), To: post.GetNonce(addr)},
		Code: StorageSlotDiff[hexutil.Bytes]{
			From: hexutil.Bytes(pre.GetCode(addr)),
			To:   hexutil.Bytes(post.GetCode(addr)),
		},
		Storage: map[common.Hash]StorageSlotDiff[common.Hash]{},
	}
}

// buildStateDiff populates a StateDiff with the balance/nonce/code
// delta for every account touchedAccounts returns, plus the per-slot
// storage delta for every account and slot touched carries (spec.md §3:
// a state diff's "storage delta" requirement). Accounts that only
// appear in touched (not in the call tree's own from/to participants,
// e.g. a precompile whose balance changed) get an entry too.
// pre/post must be genuinely different views — a pre-execution state
// and the same state with touched's writes applied — or every delta
// degenerates to equal From/To fields.
func buildStateDiff(pre, post StateReader, accounts []common.Address, touched []TouchedAccount) StateDiff {
	diff := make(StateDiff, len(accounts))
	for _, addr := range accounts {
		diff[addr] = accountDiff(pre, post, addr)
	}
	for _, t := range touched {
		entry, ok := diff[t.Address]
		if !ok {
			entry = accountDiff(pre, post, t.Address)
		}
		for slot := range t.Storage {
			entry.Storage[slot] = StorageSlotDiff[common.Hash]{From: pre.GetState(t.Address, slot), To: post.GetState(t.Address, slot)}
		}
		diff[t.Address] = entry
	}
	return diff
}

// postState returns a StateReader reflecting touched's writes applied
// on top of base, the same write-through overlay pattern traceBlockWith
// (block.go) and TraceCallMany (batch.go) use to chain calls; callers
// that replay a single call/transaction use it to get a genuine
// post-execution view for buildStateDiff instead of reusing the
// pre-execution reader for both sides of the diff.
func postState(base StateReader, touched []TouchedAccount) StateReader {
	if len(touched) == 0 {
		return base
	}
	ov := overlay.New(base.(overlay.Reader))
	commitTouched(ov, touched)
	return ov
}
