package tracing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	gethtracing "github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// StateReader is the read-only account/storage surface a traced call
// executes against. It is the narrow slice of a real state database
// this service needs — re-execution, not storage, is this service's
// job (spec.md §1 names "the underlying state database" as an
// external collaborator).
type StateReader interface {
	GetBalance(addr common.Address) *uint256.Int
	GetNonce(addr common.Address) uint64
	GetCode(addr common.Address) []byte
	GetCodeHash(addr common.Address) common.Hash
	GetState(addr common.Address, key common.Hash) common.Hash
	Exist(addr common.Address) bool
}

// TouchedAccount is one account's full post-execution field set, used
// to fold a call's effects into the Sequential Batch Tracer's overlay
// before the next call runs (spec.md §4.5 step 3's "commit the call's
// state changes into the overlay").
type TouchedAccount struct {
	Address  common.Address
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
	Storage  map[common.Hash]common.Hash
}

// ExecutionResult is what RunWithInspector hands back once an
// instrumented call finishes: the raw return data (or revert reason),
// gas used, a failure distinct from a revert (spec.md §7 — "out-of-gas
// and reverts are not errors"), and every account the call touched
// with its resulting field values, the "final_state" half of the
// State+EVM runner's run() contract (spec.md §6.2).
type ExecutionResult struct {
	ReturnData []byte
	GasUsed    uint64
	Reverted   bool
	Err        error
	Touched    []TouchedAccount
}

// Backend is everything this service consumes from the host node:
// chain configuration, block/header/transaction lookup, historical
// state construction and the instrumented call runner itself. Method
// set grounded on arbitrum/apibackend.go's APIBackend (HeaderByNumberOrHash,
// BlockByNumberOrHash, StateAtBlock, StateAtTransaction, GetTransaction
// all present there under equivalent names), narrowed to what tracing
// actually needs — no transaction pool, no sync progress, no P2P.
type Backend interface {
	ChainConfig() *params.ChainConfig
	CurrentBlock() *types.Header

	HeaderByNumberOrHash(ctx context.Context, b rpc.BlockNumberOrHash) (*types.Header, error)
	BlockByNumberOrHash(ctx context.Context, b rpc.BlockNumberOrHash) (*types.Block, error)
	BlockByNumber(ctx context.Context, number rpc.BlockNumber) (*types.Block, error)

	// RecoveredBlockRange returns every block in [from, to], inclusive,
	// in ascending order. Used by the Range Filter to load the block
	// range it will fan out over.
	RecoveredBlockRange(ctx context.Context, from, to uint64) ([]*types.Block, error)

	// StateAtBlock returns the state as of the end of the given block.
	StateAtBlock(ctx context.Context, block *types.Block) (StateReader, error)

	// StateAtTransaction returns the state immediately before txIndex
	// executes within block, i.e. after replaying transactions [0, txIndex).
	StateAtTransaction(ctx context.Context, block *types.Block, txIndex int) (*types.Transaction, StateReader, error)

	// GetTransaction locates a transaction by hash and its containing
	// block, mirroring APIBackend.GetTransaction's shape.
	GetTransaction(ctx context.Context, hash common.Hash) (tx *types.Transaction, blockHash common.Hash, blockNumber, index uint64, found bool)

	// IsPrecompile reports whether addr is a precompile under the
	// rules active at the given block number, used to exclude
	// precompile invocations from call trees (spec.md's Parity trace
	// shape never surfaces a precompile as its own frame).
	IsPrecompile(blockNumber uint64, addr common.Address) bool

	// RunWithInspector executes call against state with the Hooks
	// wired in, returning the final result. It is the "State+EVM
	// runner" external collaborator (spec.md §6.2): this service
	// orchestrates calls to it but never implements the EVM itself.
	RunWithInspector(ctx context.Context, call *CallRequest, state StateReader, overrides BlockOverrides, hooks *gethtracing.Hooks) (*ExecutionResult, error)
}
