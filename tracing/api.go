package tracing

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// API is the JSON-RPC surface registered under the "trace" namespace
// (spec.md §6.1). Method names follow go-ethereum's rpc package
// convention of deriving the JSON-RPC method from the Go method name
// (Call → trace_call, CallMany → trace_callMany, ...); the field
// shapes are grounded on atoulme-core-geth/eth/api_tracer_parity.go's
// ParityTrace/TraceFilterArgs JSON tagging.
type API struct {
	svc *Service
}

// NewAPI wraps svc for RPC registration.
func NewAPI(svc *Service) *API { return &API{svc: svc} }

// CallArgs is trace_call/trace_callMany/trace_rawTransaction's
// call-shaped JSON argument.
type CallArgs struct {
	From                 *common.Address `json:"from,omitempty"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 *hexutil.Bytes  `json:"data,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`
}

func (a CallArgs) toCallRequest() *CallRequest {
	req := &CallRequest{From: a.From, To: a.To}
	if a.Gas != nil {
		g := uint64(*a.Gas)
		req.Gas = &g
	}
	if a.GasPrice != nil {
		req.GasPrice, _ = uint256FromBig(a.GasPrice.ToInt())
	}
	if a.MaxFeePerGas != nil {
		req.MaxFeePerGas, _ = uint256FromBig(a.MaxFeePerGas.ToInt())
	}
	if a.MaxPriorityFeePerGas != nil {
		req.MaxPriorityFeePerGas, _ = uint256FromBig(a.MaxPriorityFeePerGas.ToInt())
	}
	if a.Value != nil {
		req.Value, _ = uint256FromBig(a.Value.ToInt())
	}
	if a.Data != nil {
		req.Data = *a.Data
	}
	if a.Nonce != nil {
		n := uint64(*a.Nonce)
		req.Nonce = &n
	}
	if a.AccessList != nil {
		req.AccessList = *a.AccessList
	}
	return req
}

// StateOverrideArgs is the JSON shape of one address's entry in
// trace_call's state_overrides map.
type StateOverrideArgs struct {
	Balance   *hexutil.Big                `json:"balance,omitempty"`
	Nonce     *hexutil.Uint64             `json:"nonce,omitempty"`
	Code      *hexutil.Bytes              `json:"code,omitempty"`
	State     map[common.Hash]common.Hash `json:"state,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

func (a StateOverrideArgs) toStateOverride() StateOverride {
	o := StateOverride{State: a.State, StateDiff: a.StateDiff, StateOverlay: a.State != nil}
	if a.Balance != nil {
		o.Balance, _ = uint256FromBig(a.Balance.ToInt())
	}
	if a.Nonce != nil {
		n := uint64(*a.Nonce)
		o.Nonce = &n
	}
	if a.Code != nil {
		o.Code = *a.Code
	}
	return o
}

func toStateOverrides(in map[common.Address]StateOverrideArgs) StateOverrides {
	if len(in) == 0 {
		return nil
	}
	out := make(StateOverrides, len(in))
	for addr, o := range in {
		out[addr] = o.toStateOverride()
	}
	return out
}

// TraceCallArg pairs a call with its requested trace types, the unit
// trace_callMany's argument list is built from.
type TraceCallArg struct {
	Call       CallArgs    `json:"-"`
	TraceTypes []TraceType `json:"-"`
}

// UnmarshalJSON decodes the Parity wire tuple ["callArgs", ["trace", "stateDiff"]].
func (t *TraceCallArg) UnmarshalJSON(data []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &t.Call); err != nil {
		return err
	}
	return json.Unmarshal(tuple[1], &t.TraceTypes)
}

// TraceFilterArgs is trace_filter's JSON argument shape.
type TraceFilterArgs struct {
	FromBlock   *hexutil.Uint64  `json:"fromBlock,omitempty"`
	ToBlock     *hexutil.Uint64  `json:"toBlock,omitempty"`
	FromAddress []common.Address `json:"fromAddress,omitempty"`
	ToAddress   []common.Address `json:"toAddress,omitempty"`
	After       *hexutil.Uint64  `json:"after,omitempty"`
	Count       *hexutil.Uint64  `json:"count,omitempty"`
}

func (a TraceFilterArgs) toTraceFilter(latest uint64) TraceFilter {
	f := TraceFilter{FromAddress: a.FromAddress, ToAddress: a.ToAddress, ToBlock: latest}
	if a.FromBlock != nil {
		f.FromBlock = uint64(*a.FromBlock)
	}
	if a.ToBlock != nil {
		f.ToBlock = uint64(*a.ToBlock)
	}
	if a.After != nil {
		f.After = uint64(*a.After)
	}
	if a.Count != nil {
		c := uint64(*a.Count)
		f.Count = &c
	}
	return f
}

// Call implements trace_call.
func (api *API) Call(ctx context.Context, call CallArgs, traceTypes []TraceType, blockNrOrHash *rpc.BlockNumberOrHash, stateOverrides map[common.Address]StateOverrideArgs) (*TraceResults, error) {
	return api.svc.TraceCall(ctx, call.toCallRequest(), NewTraceTypes(traceTypes...), blockNrOrHash, toStateOverrides(stateOverrides), nil)
}

// CallMany implements trace_callMany.
func (api *API) CallMany(ctx context.Context, calls []TraceCallArg, blockNrOrHash *rpc.BlockNumberOrHash) ([]TraceResults, error) {
	items := make([]CallManyItem, len(calls))
	for i, c := range calls {
		items[i] = CallManyItem{Call: c.Call.toCallRequest(), TraceTypes: NewTraceTypes(c.TraceTypes...)}
	}
	return api.svc.TraceCallMany(ctx, items, blockNrOrHash)
}

// RawTransaction implements trace_rawTransaction.
func (api *API) RawTransaction(ctx context.Context, rawTx hexutil.Bytes, traceTypes []TraceType, blockNrOrHash *rpc.BlockNumberOrHash) (*TraceResults, error) {
	return api.svc.TraceRawTransaction(ctx, rawTx, NewTraceTypes(traceTypes...), blockNrOrHash)
}

// ReplayTransaction implements trace_replayTransaction.
func (api *API) ReplayTransaction(ctx context.Context, txHash common.Hash, traceTypes []TraceType) (*TraceResults, error) {
	return api.svc.ReplayTransaction(ctx, txHash, NewTraceTypes(traceTypes...))
}

// ReplayBlockTransactions implements trace_replayBlockTransactions.
func (api *API) ReplayBlockTransactions(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash, traceTypes []TraceType) ([]TraceResultsWithTxHash, error) {
	return api.svc.ReplayBlockTransactions(ctx, blockNrOrHash, NewTraceTypes(traceTypes...))
}

// Block implements trace_block.
func (api *API) Block(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]LocalizedTrace, error) {
	return api.svc.TraceBlock(ctx, blockNrOrHash)
}

// Filter implements trace_filter.
func (api *API) Filter(ctx context.Context, args TraceFilterArgs) ([]LocalizedTrace, error) {
	head := api.svc.backend().CurrentBlock()
	var latest uint64
	if head != nil {
		latest = head.Number.Uint64()
	}
	return api.svc.TraceFilter(ctx, args.toTraceFilter(latest))
}

// Get implements trace_get.
func (api *API) Get(ctx context.Context, txHash common.Hash, indices []hexutil.Uint64) (*LocalizedTrace, error) {
	idx := make([]uint64, len(indices))
	for i, v := range indices {
		idx[i] = uint64(v)
	}
	return api.svc.TraceGet(ctx, txHash, idx)
}

// Transaction implements trace_transaction.
func (api *API) Transaction(ctx context.Context, txHash common.Hash) ([]LocalizedTrace, error) {
	return api.svc.TraceTransaction(ctx, txHash)
}

// TransactionOpcodeGas implements trace_transactionOpcodeGas.
func (api *API) TransactionOpcodeGas(ctx context.Context, txHash common.Hash) (*TxOpcodeGas, error) {
	return api.svc.TraceTransactionOpcodeGas(ctx, txHash)
}

// BlockOpcodeGas implements trace_blockOpcodeGas.
func (api *API) BlockOpcodeGas(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (*BlockOpcodeGas, error) {
	return api.svc.TraceBlockOpcodeGas(ctx, blockNrOrHash)
}
