// Package overlay provides the write-through state cache the
// Sequential Batch Tracer (spec.md §4.5) uses so that call N+1 in a
// trace_call_many batch observes call N's writes without any of them
// reaching the real, read-only historical state.
//
// It is grounded on arbitrum/recordingdb.go's RecordingKV, which wraps
// an inner trie.Database behind a local map and a bypass flag that
// decides, per call, whether a read is served from the map or from
// the inner store. This package inverts that: RecordingKV exists to
// record reads and forbid writes (it backs a stateless-proof
// recorder); Overlay exists to accept writes locally and forbid them
// from ever reaching the inner store, falling through to the inner
// store only for reads of keys nobody has written yet.
package overlay

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is the set of per-account fields a StateReader exposes and
// an Overlay can override. Storage is address-scoped, so it is kept
// out of Account and addressed directly via key.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
	Exists   bool
}

// Reader is the read-only state surface an Overlay wraps. It mirrors
// tracing.StateReader (tracing/backend.go) exactly; the two are kept
// as separate types so this package does not import the tracing
// package and create a cycle — the tracing package imports overlay,
// not the reverse.
type Reader interface {
	GetBalance(addr common.Address) *uint256.Int
	GetNonce(addr common.Address) uint64
	GetCode(addr common.Address) []byte
	GetCodeHash(addr common.Address) common.Hash
	GetState(addr common.Address, key common.Hash) common.Hash
	Exist(addr common.Address) bool
}

type storageKey struct {
	addr common.Address
	slot common.Hash
}

// Overlay is a write-through cache over a Reader: writes accumulate in
// local maps and are visible to every subsequent read through this
// Overlay, but never mutate the wrapped Reader. One Overlay is shared
// across every call in a trace_call_many batch so state flows forward
// between calls (spec.md §4.5); a fresh Overlay is built per
// trace_call_many request so batches never see each other's writes.
type Overlay struct {
	inner    Reader
	accounts map[common.Address]*Account
	storage  map[storageKey]common.Hash
}

// New wraps inner in a fresh Overlay with no local writes yet.
func New(inner Reader) *Overlay {
	return &Overlay{
		inner:    inner,
		accounts: make(map[common.Address]*Account),
		storage:  make(map[storageKey]common.Hash),
	}
}

// Snapshot returns a Reader pinned to o's local writes at the moment
// Snapshot is called: later writes to o are invisible to it. Used by
// the Sequential Batch Tracer to measure a call's state diff against
// the overlay as it stood just before that call ran, even though the
// same Overlay keeps accumulating writes for later calls.
func (o *Overlay) Snapshot() *Overlay {
	accounts := make(map[common.Address]*Account, len(o.accounts))
	for addr, a := range o.accounts {
		cp := *a
		accounts[addr] = &cp
	}
	storage := make(map[storageKey]common.Hash, len(o.storage))
	for k, v := range o.storage {
		storage[k] = v
	}
	return &Overlay{inner: o.inner, accounts: accounts, storage: storage}
}

func (o *Overlay) account(addr common.Address) *Account {
	if a, ok := o.accounts[addr]; ok {
		return a
	}
	return nil
}

func (o *Overlay) GetBalance(addr common.Address) *uint256.Int {
	if a := o.account(addr); a != nil {
		return a.Balance
	}
	return o.inner.GetBalance(addr)
}

func (o *Overlay) GetNonce(addr common.Address) uint64 {
	if a := o.account(addr); a != nil {
		return a.Nonce
	}
	return o.inner.GetNonce(addr)
}

func (o *Overlay) GetCode(addr common.Address) []byte {
	if a := o.account(addr); a != nil {
		return a.Code
	}
	return o.inner.GetCode(addr)
}

func (o *Overlay) GetCodeHash(addr common.Address) common.Hash {
	if a := o.account(addr); a != nil {
		return a.CodeHash
	}
	return o.inner.GetCodeHash(addr)
}

func (o *Overlay) Exist(addr common.Address) bool {
	if a := o.account(addr); a != nil {
		return a.Exists
	}
	return o.inner.Exist(addr)
}

func (o *Overlay) GetState(addr common.Address, key common.Hash) common.Hash {
	sk := storageKey{addr, key}
	if v, ok := o.storage[sk]; ok {
		return v
	}
	return o.inner.GetState(addr, key)
}

// SetAccount installs acct as addr's full local state, shadowing the
// inner Reader for every field until a later SetAccount replaces it
// again. Used to apply one execution's post-state before the next
// call in the batch runs.
func (o *Overlay) SetAccount(addr common.Address, acct Account) {
	a := acct
	o.accounts[addr] = &a
}

// SetState installs a single storage slot override.
func (o *Overlay) SetState(addr common.Address, key, value common.Hash) {
	o.storage[storageKey{addr, key}] = value
}

// touchedAccount lazily copies addr's current (possibly inner-backed)
// view into the local map so a caller can mutate one field of it
// without losing the rest.
func (o *Overlay) touchedAccount(addr common.Address) *Account {
	if a := o.account(addr); a != nil {
		return a
	}
	a := &Account{
		Balance:  o.inner.GetBalance(addr),
		Nonce:    o.inner.GetNonce(addr),
		Code:     o.inner.GetCode(addr),
		CodeHash: o.inner.GetCodeHash(addr),
		Exists:   o.inner.Exist(addr),
	}
	o.accounts[addr] = a
	return a
}

// ApplyBalance overrides addr's balance, preserving its other fields.
func (o *Overlay) ApplyBalance(addr common.Address, balance *uint256.Int) {
	a := o.touchedAccount(addr)
	a.Balance = balance
	a.Exists = true
}

// ApplyNonce overrides addr's nonce, preserving its other fields.
func (o *Overlay) ApplyNonce(addr common.Address, nonce uint64) {
	a := o.touchedAccount(addr)
	a.Nonce = nonce
	a.Exists = true
}

// ApplyCode overrides addr's code, preserving its other fields.
func (o *Overlay) ApplyCode(addr common.Address, code []byte, codeHash common.Hash) {
	a := o.touchedAccount(addr)
	a.Code = code
	a.CodeHash = codeHash
	a.Exists = true
}
