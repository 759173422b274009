// Package tracing implements the Parity-compatible transaction tracing
// service: trace_call, trace_callMany, trace_rawTransaction,
// trace_replayTransaction, trace_replayBlockTransactions, trace_block,
// trace_filter, trace_get, trace_transaction,
// trace_transactionOpcodeGas and trace_blockOpcodeGas.
//
// The package consumes everything EVM/state-shaped through the
// Backend interface (backend.go) and produces only Parity trace
// shapes; it never talks to a database or a JSON-RPC transport
// directly.
package tracing

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/paritytracer/node/tracing/callframe"
	"github.com/paritytracer/node/tracing/opcodegas"
)

// TraceType selects one of the three trace shapes a caller may ask
// trace_call/trace_callMany/trace_replayTransaction/
// trace_replayBlockTransactions for.
type TraceType string

const (
	TraceTypeTrace     TraceType = "trace"
	TraceTypeVMTrace   TraceType = "vmTrace"
	TraceTypeStateDiff TraceType = "stateDiff"
)

// TraceTypes is the requested set, checked with Has.
type TraceTypes map[TraceType]struct{}

func NewTraceTypes(types ...TraceType) TraceTypes {
	t := make(TraceTypes, len(types))
	for _, tt := range types {
		t[tt] = struct{}{}
	}
	return t
}

func (t TraceTypes) Has(tt TraceType) bool {
	_, ok := t[tt]
	return ok
}

// CallRequest is the call-shaped argument trace_call, trace_callMany
// and the Sequential Batch Tracer's per-call environment share. Field
// set mirrors core/types.Transaction's EVM-visible fields rather than
// the transaction-pool shape, since a trace call need not be a
// well-formed signed transaction.
type CallRequest struct {
	From                 *common.Address
	To                   *common.Address
	Gas                  *uint64
	GasPrice             *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	Value                *uint256.Int
	Data                 []byte
	Nonce                *uint64
	AccessList           types.AccessList
}

// StateOverride overrides one account's balance/nonce/code/storage for
// the duration of a single call (trace_call's state_overrides).
type StateOverride struct {
	Balance      *uint256.Int
	Nonce        *uint64
	Code         []byte
	State        map[common.Hash]common.Hash
	StateDiff    map[common.Hash]common.Hash
	StateOverlay bool // set when State was supplied; State and StateDiff are both applied slot by slot, and storage slots listed in neither keep their existing values
}

// StateOverrides maps each overridden address to its override.
type StateOverrides map[common.Address]StateOverride

// BlockOverrides overrides block-context fields (number, timestamp,
// coinbase, ...) a call executes against, independent of the
// historical header at the resolved block.
type BlockOverrides struct {
	Number     *uint64
	Time       *uint64
	Coinbase   *common.Address
	Difficulty *uint256.Int
	GasLimit   *uint64
	BaseFee    *uint256.Int
	Random     *common.Hash
}

// TraceFilter is trace_filter's argument: an inclusive block range
// plus from/to address sets and an after/count pagination window.
type TraceFilter struct {
	FromBlock   uint64
	ToBlock     uint64
	FromAddress []common.Address
	ToAddress   []common.Address
	After       uint64
	Count       *uint64
}

// matches reports whether action's participants satisfy the filter's
// from/to address sets. An empty set always matches (spec.md §3: "an
// action matches iff its from/to participate in the specified sets,
// or the set is empty").
func (f *TraceFilter) matches(action callframe.Action) bool {
	if len(f.FromAddress) > 0 && !containsAddr(f.FromAddress, action.From()) {
		return false
	}
	if len(f.ToAddress) > 0 && !containsAddr(f.ToAddress, action.To()) {
		return false
	}
	return true
}

func containsAddr(set []common.Address, addr common.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}

// LocalizedTrace is one TransactionTrace positioned within a block and
// (for non-reward traces) a transaction. Reward traces carry no
// transaction hash or index (spec.md §3).
type LocalizedTrace struct {
	callframe.TransactionTrace
	BlockHash        common.Hash
	BlockNumber      uint64
	TransactionHash  *common.Hash
	TransactionIndex *uint64
}

// AccountDiff is one account's pre→post delta in a state diff.
type AccountDiff struct {
	Balance StorageSlotDiff[*uint256.Int]
	Nonce   StorageSlotDiff[uint64]
	Code    StorageSlotDiff[hexutil.Bytes]
	Storage map[common.Hash]StorageSlotDiff[common.Hash]
}

// StorageSlotDiff holds a field's pre and post value. From/To are
// equal for touched-but-unchanged fields (spec.md §3's invariant on
// touched-but-unchanged entries).
type StorageSlotDiff[T any] struct {
	From T
	To   T
}

// StateDiff maps every account referenced by a call's post-state to
// its AccountDiff.
type StateDiff map[common.Address]AccountDiff

// TraceResults is trace_call/trace_callMany/trace_rawTransaction's
// result shape: the call tree plus optional VM trace and state diff.
type TraceResults struct {
	Trace     []callframe.TransactionTrace
	VMTrace   *VMTrace
	StateDiff StateDiff
	Output    []byte
}

// VMTrace is a placeholder for the opcode-level VM trace shape; no
// RPC method in this service's surface currently requests vmTrace
// content beyond acknowledging the trace type, so it carries no
// fields yet.
type VMTrace struct{}

// TraceResultsWithTxHash pairs a TraceResults with the transaction
// hash it belongs to, the shape trace_replayBlockTransactions returns.
type TraceResultsWithTxHash struct {
	TransactionHash common.Hash
	TraceResults
}

// TxOpcodeGas is trace_transactionOpcodeGas's result: a transaction
// hash plus the per-opcode {count, total_gas} rows.
type TxOpcodeGas struct {
	TransactionHash common.Hash
	OpcodeGas       []opcodegas.OpcodeTotal
}

// BlockOpcodeGas is trace_blockOpcodeGas's result: one TxOpcodeGas per
// transaction in the block, execution order.
type BlockOpcodeGas struct {
	BlockHash    common.Hash
	BlockNumber  uint64
	Transactions []TxOpcodeGas
}
