package overlay

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	balances map[common.Address]*uint256.Int
	nonces   map[common.Address]uint64
	storage  map[common.Hash]common.Hash
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		balances: map[common.Address]*uint256.Int{},
		nonces:   map[common.Address]uint64{},
		storage:  map[common.Hash]common.Hash{},
	}
}

func (f *fakeReader) GetBalance(addr common.Address) *uint256.Int {
	if b, ok := f.balances[addr]; ok {
		return b
	}
	return uint256.NewInt(0)
}
func (f *fakeReader) GetNonce(addr common.Address) uint64        { return f.nonces[addr] }
func (f *fakeReader) GetCode(addr common.Address) []byte         { return nil }
func (f *fakeReader) GetCodeHash(addr common.Address) common.Hash { return common.Hash{} }
func (f *fakeReader) GetState(addr common.Address, key common.Hash) common.Hash {
	return f.storage[key]
}
func (f *fakeReader) Exist(addr common.Address) bool { return false }

func TestOverlayFallsThroughToInnerForUnwrittenState(t *testing.T) {
	addr := common.HexToAddress("0xAAA")
	inner := newFakeReader()
	inner.balances[addr] = uint256.NewInt(100)
	inner.nonces[addr] = 7

	ov := New(inner)
	assert.True(t, ov.GetBalance(addr).Eq(uint256.NewInt(100)))
	assert.Equal(t, uint64(7), ov.GetNonce(addr))
}

func TestOverlayWritesNeverReachInner(t *testing.T) {
	addr := common.HexToAddress("0xAAA")
	inner := newFakeReader()
	inner.balances[addr] = uint256.NewInt(100)

	ov := New(inner)
	ov.ApplyBalance(addr, uint256.NewInt(500))

	assert.True(t, ov.GetBalance(addr).Eq(uint256.NewInt(500)))
	assert.True(t, inner.GetBalance(addr).Eq(uint256.NewInt(100)), "the inner reader must be untouched")
}

func TestOverlaySnapshotIsPinnedBeforeLaterWrites(t *testing.T) {
	addr := common.HexToAddress("0xAAA")
	inner := newFakeReader()

	ov := New(inner)
	ov.ApplyBalance(addr, uint256.NewInt(10))
	snap := ov.Snapshot()

	ov.ApplyBalance(addr, uint256.NewInt(999))

	assert.True(t, snap.GetBalance(addr).Eq(uint256.NewInt(10)), "snapshot must not observe writes made after it was taken")
	assert.True(t, ov.GetBalance(addr).Eq(uint256.NewInt(999)))
}

func TestOverlaySetAccountReplacesAllFields(t *testing.T) {
	addr := common.HexToAddress("0xAAA")
	inner := newFakeReader()
	ov := New(inner)

	ov.SetAccount(addr, Account{Balance: uint256.NewInt(42), Nonce: 3, Exists: true})
	assert.True(t, ov.GetBalance(addr).Eq(uint256.NewInt(42)))
	assert.Equal(t, uint64(3), ov.GetNonce(addr))
	require.True(t, ov.Exist(addr))
}

func TestOverlaySetStateOverridesSingleSlot(t *testing.T) {
	addr := common.HexToAddress("0xAAA")
	slot := common.HexToHash("0x07")
	inner := newFakeReader()
	ov := New(inner)

	ov.SetState(addr, slot, common.HexToHash("0x2a"))
	assert.Equal(t, common.HexToHash("0x2a"), ov.GetState(addr, slot))
}
