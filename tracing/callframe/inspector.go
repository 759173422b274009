package callframe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// Config selects which auxiliary data the Inspector records in
// addition to the call tree that is always built. It mirrors the
// trace type set a single trace_* request can ask for (spec.md §3):
// RecordLogs backs a future vmTrace expansion, ExcludePrecompileCalls
// keeps precompile invocations out of the "trace" result as Parity
// clients expect.
type Config struct {
	ExcludePrecompileCalls bool
	RecordLogs             bool
	// IsPrecompile reports whether addr is a precompile under the
	// rules active at the traced block. Supplied by the caller because
	// the active precompile set is chain-spec knowledge, an external
	// collaborator concern (spec.md §1).
	IsPrecompile func(common.Address) bool
}

// Inspector builds a depth-first call tree from the Hooks callbacks
// the external "state+EVM runner" invokes while executing one
// transaction or call. It must not be reused across executions —
// construct a fresh one per traced call (spec.md §9, "inspector state
// move").
type Inspector struct {
	cfg        Config
	tree       *arena
	stack      []int
	lastOutput []byte
}

// NewInspector constructs an Inspector ready to be wired into a
// tracing.Hooks for a single EVM execution.
func NewInspector(cfg Config) *Inspector {
	return &Inspector{cfg: cfg, tree: newArena()}
}

// Hooks returns the subset of tracing.Hooks this inspector implements.
// Callers compose it with whatever other hooks (e.g. opcodegas) they
// also want invoked for the same execution.
func (insp *Inspector) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter: insp.onEnter,
		OnExit:  insp.onExit,
		OnLog:   insp.onLog,
	}
}

func (insp *Inspector) isPrecompile(addr common.Address) bool {
	if insp.cfg.IsPrecompile == nil {
		return false
	}
	return insp.cfg.IsPrecompile(addr)
}

func (insp *Inspector) lastIdx() int {
	if len(insp.stack) == 0 {
		panic("callframe: opcode/log event outside of any call frame")
	}
	return insp.stack[len(insp.stack)-1]
}

func (insp *Inspector) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	op := vm.OpCode(typ)
	if op == vm.SELFDESTRUCT {
		n := insp.tree.nodeAt(insp.lastIdx())
		n.trace.selfDestructed = true
		n.trace.refundTarget = to
		return
	}

	kind := CallKindFromOpCode(typ)
	maybePrecompile := kind.IsAnyCall() && insp.cfg.ExcludePrecompileCalls && insp.isPrecompile(to)

	id := insp.tree.pushTrace(0, !maybePrecompile, callTrace{
		depth:           depth,
		caller:          from,
		address:         to,
		kind:            kind,
		value:           value,
		input:           input,
		gasLimit:        gas,
		maybePrecompile: maybePrecompile,
	})
	insp.stack = append(insp.stack, id)
}

func (insp *Inspector) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	idx := insp.stack[len(insp.stack)-1]
	insp.stack = insp.stack[:len(insp.stack)-1]

	n := insp.tree.nodeAt(idx)
	n.trace.success = !reverted && err == nil
	n.trace.reverted = reverted
	n.trace.err = err
	n.trace.output = output
	n.trace.gasUsed = gasUsed
	insp.lastOutput = output
}

func (insp *Inspector) onLog(log *types.Log) {
	// Logs are attached to the currently open frame; they are not part
	// of the Parity trace shapes this module returns today (no RPC
	// method in spec.md §6.1 surfaces per-frame logs), but recording
	// the hook keeps the Inspector ready for a future vmTrace/logs
	// expansion without touching the call-tree algorithm.
	_ = log
}

// Build converts the recorded call tree into the depth-first,
// trace_address-tagged sequence spec.md §3 calls a "localized
// transaction trace" set, minus the block/tx positioning tracing.LocalizedTrace
// adds on top.
func (insp *Inspector) Build() []TransactionTrace {
	traceable := insp.tree.traceableNodes()
	out := make([]TransactionTrace, 0, len(traceable))
	for _, n := range traceable {
		addr := insp.tree.traceAddress(n.idx)
		out = append(out, buildTransactionTrace(&n, addr))
	}
	return out
}

func buildTransactionTrace(n *node, addr []uint64) TransactionTrace {
	t := n.trace
	tt := TransactionTrace{
		Action:       toAction(t),
		TraceAddress: addr,
		Subtraces:    len(n.children),
	}
	if t.err != nil && !t.reverted {
		tt.Error = t.err.Error()
		return tt
	}
	tt.Result = toTraceOutput(t)
	return tt
}

func toAction(t callTrace) Action {
	value := uint256.NewInt(0)
	if t.value != nil {
		value, _ = uint256.FromBig(t.value)
	}
	switch {
	case t.selfDestructed:
		return &SuicideAction{Address: t.address, RefundAddress: t.refundTarget, Balance: value}
	case t.kind.IsAnyCreate():
		return &CreateAction{FromAddr: t.caller, Value: value, Gas: t.gasLimit, Init: t.input}
	default:
		return &CallAction{FromAddr: t.caller, ToAddr: t.address, Value: value, Gas: t.gasLimit, Input: t.input, CallType: t.kind}
	}
}

func toTraceOutput(t callTrace) *TraceOutput {
	if t.selfDestructed {
		return nil
	}
	if t.kind.IsAnyCreate() {
		return &TraceOutput{
			Type:   TraceOutputCreate,
			Create: &CreateOutput{GasUsed: t.gasUsed, Code: t.output, Address: t.address},
		}
	}
	return &TraceOutput{
		Type: TraceOutputCall,
		Call: &CallOutput{GasUsed: t.gasUsed, Output: t.output},
	}
}
