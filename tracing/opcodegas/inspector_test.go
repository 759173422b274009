package opcodegas

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInspectorAggregatesPerOpcode mirrors spec.md §8 scenario 6: a
// transaction executing 5 PUSH1 and 2 ADD should report
// {PUSH1:{count:5,total_gas:15}, ADD:{count:2,total_gas:6}}.
func TestInspectorAggregatesPerOpcode(t *testing.T) {
	insp := NewInspector()
	hooks := insp.Hooks()

	for i := 0; i < 5; i++ {
		hooks.OnOpcode(uint64(i), byte(vm.PUSH1), 100000, 3, nil, nil, 0, nil)
	}
	for i := 0; i < 2; i++ {
		hooks.OnOpcode(uint64(5+i), byte(vm.ADD), 90000, 3, nil, nil, 0, nil)
	}

	totals := insp.Finish()
	byOp := map[vm.OpCode]OpcodeTotal{}
	for _, tot := range totals {
		byOp[tot.Opcode] = tot
	}

	require.Contains(t, byOp, vm.PUSH1)
	assert.Equal(t, uint64(5), byOp[vm.PUSH1].Count)
	assert.Equal(t, uint64(15), byOp[vm.PUSH1].TotalGas)

	require.Contains(t, byOp, vm.ADD)
	assert.Equal(t, uint64(2), byOp[vm.ADD].Count)
	assert.Equal(t, uint64(6), byOp[vm.ADD].TotalGas)
}

func TestInspectorDoesNotDoubleCountChildFrameOpcodes(t *testing.T) {
	insp := NewInspector()
	hooks := insp.Hooks()

	// A CALL at depth 0 opens a child frame at depth 1; the child's own
	// opcode must not be attributed to the parent CALL's cost.
	hooks.OnOpcode(0, byte(vm.CALL), 100000, 700, nil, nil, 0, nil)
	hooks.OnOpcode(0, byte(vm.PUSH1), 90000, 3, nil, nil, 1, nil)

	totals := insp.Finish()
	byOp := map[vm.OpCode]OpcodeTotal{}
	for _, tot := range totals {
		byOp[tot.Opcode] = tot
	}
	assert.Equal(t, uint64(1), byOp[vm.CALL].Count)
	assert.Equal(t, uint64(700), byOp[vm.CALL].TotalGas)
	assert.Equal(t, uint64(1), byOp[vm.PUSH1].Count)
}

func TestInspectorOnFaultRecordsCost(t *testing.T) {
	insp := NewInspector()
	hooks := insp.Hooks()

	hooks.OnOpcode(0, byte(vm.SSTORE), 100000, 20000, nil, nil, 0, nil)
	hooks.OnFault(1, byte(vm.SLOAD), 80000, 2100, nil, 0, nil)

	totals := insp.Finish()
	byOp := map[vm.OpCode]OpcodeTotal{}
	for _, tot := range totals {
		byOp[tot.Opcode] = tot
	}
	assert.Equal(t, uint64(1), byOp[vm.SSTORE].Count)
	assert.Equal(t, uint64(1), byOp[vm.SLOAD].Count)
	assert.Equal(t, uint64(2100), byOp[vm.SLOAD].TotalGas)
}
