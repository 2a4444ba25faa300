// Package storage defines the Storage collaborator contract of spec §6
// (get_account/put_account/snapshot/restore/clear, mirrored for
// escrows) and ships an in-memory reference implementation. Concrete,
// durable backends live in subpackages (see storage/badgerstore).
//
// The consensus core depends only on the Storage interface; it never
// assumes a particular backend. Transactions on the storage must be
// atomic, per §6 — the in-memory implementation achieves this trivially
// under its own mutex, and storage/badgerstore achieves it via Badger's
// transactional Update/View.
package storage

import (
	"sync"

	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/crypto"
)

// SnapshotToken opaquely identifies a point-in-time copy of storage
// state, returned by Snapshot and consumed by Restore. Callers must
// treat it as opaque; only the backend that produced it can restore it.
type SnapshotToken interface{}

// Storage is the external collaborator contract consensus depends on.
type Storage interface {
	GetAccount(addr crypto.Address) (*chaintypes.Account, bool)
	PutAccount(addr crypto.Address, acc *chaintypes.Account)

	GetEscrow(id crypto.Hash) (*chaintypes.Escrow, bool)
	PutEscrow(id crypto.Hash, e *chaintypes.Escrow)

	// AllAccounts returns every account, used by the builder to compute
	// the sorted state_root Merkle tree (§4.2).
	AllAccounts() []*chaintypes.Account

	Snapshot() SnapshotToken
	Restore(SnapshotToken)
	Clear()
}

// InMemory is a mutex-guarded, map-backed Storage implementation.
// Suitable for tests and for driving the core without a durable
// backend; storage/badgerstore should be used in any long-running
// process.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[crypto.Address]*chaintypes.Account
	escrows  map[crypto.Hash]*chaintypes.Escrow
}

// NewInMemory returns an empty in-memory Storage.
func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[crypto.Address]*chaintypes.Account),
		escrows:  make(map[crypto.Hash]*chaintypes.Escrow),
	}
}

func (s *InMemory) GetAccount(addr crypto.Address) (*chaintypes.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[addr]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (s *InMemory) PutAccount(addr crypto.Address, acc *chaintypes.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acc
	s.accounts[addr] = &cp
}

func (s *InMemory) GetEscrow(id crypto.Hash) (*chaintypes.Escrow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.escrows[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

func (s *InMemory) PutEscrow(id crypto.Hash, e *chaintypes.Escrow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.escrows[id] = &cp
}

func (s *InMemory) AllAccounts() []*chaintypes.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*chaintypes.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

type memorySnapshot struct {
	accounts map[crypto.Address]*chaintypes.Account
	escrows  map[crypto.Hash]*chaintypes.Escrow
}

// Snapshot deep-copies the current state into an opaque token.
func (s *InMemory) Snapshot() SnapshotToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &memorySnapshot{
		accounts: make(map[crypto.Address]*chaintypes.Account, len(s.accounts)),
		escrows:  make(map[crypto.Hash]*chaintypes.Escrow, len(s.escrows)),
	}
	for k, v := range s.accounts {
		cp := *v
		snap.accounts[k] = &cp
	}
	for k, v := range s.escrows {
		cp := *v
		snap.escrows[k] = &cp
	}
	return snap
}

// Restore replaces current state with a previously taken snapshot.
// Panics if token was not produced by this Storage's Snapshot — a
// programming error, not a runtime condition callers should handle.
func (s *InMemory) Restore(token SnapshotToken) {
	snap, ok := token.(*memorySnapshot)
	if !ok {
		panic("storage: Restore called with a token from a different backend")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = snap.accounts
	s.escrows = snap.escrows
}

// Clear empties all state.
func (s *InMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[crypto.Address]*chaintypes.Account)
	s.escrows = make(map[crypto.Hash]*chaintypes.Escrow)
}
