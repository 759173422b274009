// Package callframe builds Parity-shaped call trees out of EVM frame
// transitions. It is the Trace Builder Adapter of the tracing service:
// it knows nothing about RPC, block ranges, or state diffs — it only
// turns one transaction's sequence of OnEnter/OnExit/OnLog
// events into a depth-first tree of TransactionTrace values, each
// carrying its trace_address.
package callframe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// CallKind enumerates the EVM operations that open a new call frame.
type CallKind int

const (
	CallKindCall CallKind = iota
	CallKindStaticCall
	CallKindCallCode
	CallKindDelegateCall
	CallKindCreate
	CallKindCreate2
)

// CallKindFromOpCode maps the opcode byte passed to OnEnter onto a CallKind.
func CallKindFromOpCode(typ byte) CallKind {
	switch vm.OpCode(typ) {
	case vm.CALL:
		return CallKindCall
	case vm.STATICCALL:
		return CallKindStaticCall
	case vm.CALLCODE:
		return CallKindCallCode
	case vm.DELEGATECALL:
		return CallKindDelegateCall
	case vm.CREATE:
		return CallKindCreate
	case vm.CREATE2:
		return CallKindCreate2
	default:
		panic("callframe: unknown call opcode " + vm.OpCode(typ).String())
	}
}

func (k CallKind) IsAnyCreate() bool { return k == CallKindCreate || k == CallKindCreate2 }

func (k CallKind) IsAnyCall() bool {
	return k == CallKindCall || k == CallKindCallCode || k == CallKindStaticCall || k == CallKindDelegateCall
}

func (k CallKind) IsDelegate() bool { return k == CallKindDelegateCall || k == CallKindCallCode }

func (k CallKind) IsStaticCall() bool { return k == CallKindStaticCall }

func (k CallKind) String() string {
	switch k {
	case CallKindCall:
		return "call"
	case CallKindStaticCall:
		return "staticcall"
	case CallKindCallCode:
		return "callcode"
	case CallKindDelegateCall:
		return "delegatecall"
	case CallKindCreate:
		return "create"
	case CallKindCreate2:
		return "create2"
	default:
		return "unknown"
	}
}

// ActionKind is the Parity action tag: call, create, suicide (selfdestruct)
// or reward.
type ActionKind int

const (
	ActionKindCall ActionKind = iota
	ActionKindCreate
	ActionKindSuicide
	ActionKindReward
)

// Action is the interface every Parity action type satisfies, letting
// the builder treat calls, creates, selfdestructs and (later) reward
// traces uniformly when computing from/to participation for trace_filter's
// matcher.
type Action interface {
	ActionType() ActionKind
	From() common.Address
	To() common.Address
}

type CallAction struct {
	FromAddr common.Address
	ToAddr   common.Address
	Value    *uint256.Int
	Gas      uint64
	Input    []byte
	CallType CallKind
}

func (a *CallAction) ActionType() ActionKind { return ActionKindCall }
func (a *CallAction) From() common.Address   { return a.FromAddr }
func (a *CallAction) To() common.Address     { return a.ToAddr }

type CreateAction struct {
	FromAddr common.Address
	Value    *uint256.Int
	Gas      uint64
	Init     []byte
}

func (a *CreateAction) ActionType() ActionKind { return ActionKindCreate }
func (a *CreateAction) From() common.Address   { return a.FromAddr }
func (a *CreateAction) To() common.Address     { return common.Address{} }

type SuicideAction struct {
	Address       common.Address
	RefundAddress common.Address
	Balance       *uint256.Int
}

func (a *SuicideAction) ActionType() ActionKind { return ActionKindSuicide }
func (a *SuicideAction) From() common.Address   { return a.Address }
func (a *SuicideAction) To() common.Address     { return a.RefundAddress }

// RewardType distinguishes a block's own reward from an ommer's.
type RewardType int

const (
	RewardTypeBlock RewardType = iota
	RewardTypeUncle
)

func (t RewardType) String() string {
	if t == RewardTypeUncle {
		return "uncle"
	}
	return "block"
}

type RewardAction struct {
	Author     common.Address
	RewardType RewardType
	Value      *uint256.Int
}

func (a *RewardAction) ActionType() ActionKind { return ActionKindReward }
func (a *RewardAction) From() common.Address   { return a.Author }
func (a *RewardAction) To() common.Address     { return a.Author }

// TraceOutputType selects which of TraceOutput's two result shapes is set.
type TraceOutputType int

const (
	TraceOutputCall TraceOutputType = iota
	TraceOutputCreate
)

type CallOutput struct {
	GasUsed uint64
	Output  []byte
}

type CreateOutput struct {
	GasUsed uint64
	Code    []byte
	Address common.Address
}

// TraceOutput is the "result" field of a TransactionTrace: present for
// successful and reverted call/create frames, absent for selfdestruct
// frames and for frames that failed with an error other than a revert.
type TraceOutput struct {
	Type   TraceOutputType
	Call   *CallOutput
	Create *CreateOutput
}

// TransactionTrace is a single Parity call-tree frame, the payload
// that tracing.LocalizedTrace wraps with block/tx positioning.
type TransactionTrace struct {
	Action       Action
	Error        string // set only when the frame failed with an error other than a revert
	Result       *TraceOutput
	TraceAddress []uint64
	Subtraces    int
}

// callTrace is the builder's working representation of one frame while
// the inspector is still recording; it is converted to TransactionTrace
// once the call tree is complete.
type callTrace struct {
	depth           int
	success         bool
	caller          common.Address
	address         common.Address
	kind            CallKind
	maybePrecompile bool
	value           *big.Int
	input           []byte
	output          []byte
	gasLimit        uint64
	gasUsed         uint64
	reverted        bool
	err             error
	selfDestructed  bool
	refundTarget    common.Address
}
