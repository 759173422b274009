// Package opcodegas implements the opcode gas summary: a per-opcode
// {count, total_gas} aggregation, the only inspector wired in when a
// trace_transaction_opcode_gas / trace_block_opcode_gas request runs
// (spec.md §3, §4.8).
//
// This is deliberately simpler than the teacher's own gas-dimension
// tracers, which classify every opcode's gas into one of several cost
// categories (computation, state access, state growth, history
// growth, refunds). Nothing in this service's RPC surface asks for
// that breakdown, so only the opcode-keyed totals survive.
package opcodegas

import (
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
)

// OpcodeTotal is one row of the summary: how many times an opcode ran
// across the traced execution and the total gas it consumed.
type OpcodeTotal struct {
	Opcode   vm.OpCode
	Count    uint64
	TotalGas uint64
}

// Inspector accumulates OpcodeTotal rows from OnOpcode events. Like
// callframe.Inspector it is single-use: construct one per traced
// execution.
type Inspector struct {
	totals map[vm.OpCode]*OpcodeTotal
	// depth/opcode/cost of the step the previous OnOpcode call reported,
	// held until the next OnOpcode, OnFault or Finish records it. Every
	// opcode is charged the cost its OnOpcode call reported; pendingDepth
	// is stored but not consulted, so gas a runner includes in a
	// CALL/CREATE step's cost for the child frame is not separated out.
	pendingDepth int
	pendingOp    vm.OpCode
	pendingCost  uint64
	havePending  bool
}

// NewInspector constructs an empty opcode gas accumulator.
func NewInspector() *Inspector {
	return &Inspector{totals: make(map[vm.OpCode]*OpcodeTotal)}
}

// Hooks returns the OnOpcode/OnFault hooks needed to drive this
// accumulator; compose with callframe.Inspector.Hooks() via
// core/tracing's hook-merging when both are wired for the same call.
func (insp *Inspector) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnOpcode: insp.onOpcode,
		OnFault:  insp.onFault,
	}
}

func (insp *Inspector) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	insp.flushPending()
	insp.pendingDepth = depth
	insp.pendingOp = vm.OpCode(op)
	insp.pendingCost = cost
	insp.havePending = true
}

func (insp *Inspector) onFault(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
	// A faulted opcode still consumes the gas it was charged; record it
	// exactly like a normal step and drop the pending slot so a
	// subsequent OnOpcode for the parent frame is not double counted.
	insp.flushPending()
	insp.record(vm.OpCode(op), cost)
}

// flushPending commits the previously observed opcode's cost once we
// know no deeper frame will claim it separately.
func (insp *Inspector) flushPending() {
	if !insp.havePending {
		return
	}
	insp.record(insp.pendingOp, insp.pendingCost)
	insp.havePending = false
}

func (insp *Inspector) record(op vm.OpCode, cost uint64) {
	t, ok := insp.totals[op]
	if !ok {
		t = &OpcodeTotal{Opcode: op}
		insp.totals[op] = t
	}
	t.Count++
	t.TotalGas += cost
}

// Finish flushes any opcode still pending and returns the accumulated
// totals. Call exactly once, after the traced execution completes.
func (insp *Inspector) Finish() []OpcodeTotal {
	insp.flushPending()
	out := make([]OpcodeTotal, 0, len(insp.totals))
	for _, t := range insp.totals {
		out = append(out, *t)
	}
	return out
}
