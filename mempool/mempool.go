// Package mempool implements the Mempool collaborator contract of spec
// §6 (snapshot_top/remove/insert), internally locked per §5. Two
// implementations are provided: an in-memory reference (InMemory) and a
// github.com/go-redis/redis/v7-backed implementation (RedisMempool) for
// sharing a pending-tx set across processes.
package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/ssum-chain/core/chaintypes"
	"github.com/ssum-chain/core/crypto"
	"github.com/ssum-chain/core/internal/log"
)

var logger = log.NewModuleLogger(log.Mempool)

// Mempool is the external collaborator contract of spec §6.
type Mempool interface {
	// Insert admits a transaction, reporting whether it was accepted.
	Insert(tx *chaintypes.Transaction) bool
	// Remove evicts a transaction by hash, a no-op if absent.
	Remove(txHash crypto.Hash)
	// SnapshotTop returns up to limit transactions, priority-sorted
	// descending and cut off at gasBudget, per spec §4.2 steps 1-2. The
	// builder is responsible for the canonical re-sort of step 3.
	SnapshotTop(limit int, gasBudget uint64) []*chaintypes.Transaction
	Size() int
}

// priority is spec §4.2's P = gas_price * (1 + age_in_hours), computed
// at selection time so that priority grows the longer a tx waits.
func priority(gasPrice uint64, insertedAt time.Time, now time.Time) float64 {
	ageHours := now.Sub(insertedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return float64(gasPrice) * (1 + ageHours)
}

// selectTop applies spec §4.2 steps 1-2 over an arbitrary candidate
// slice: priority-sort descending (ties by tx_hash ascending), then
// accumulate gas usage and stop as soon as the next transaction would
// exceed gasBudget, per §4.2 step 2's "stop when the next transaction
// would exceed BLOCK_GAS_LIMIT" — lower-priority transactions behind it
// are not considered for this block, even if one would have fit.
func selectTop(entries []*entry, limit int, gasBudget uint64, now time.Time) []*chaintypes.Transaction {
	sorted := make([]*entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		pi := priority(sorted[i].tx.GasPrice, sorted[i].insertedAt, now)
		pj := priority(sorted[j].tx.GasPrice, sorted[j].insertedAt, now)
		if pi != pj {
			return pi > pj
		}
		hi, hj := sorted[i].tx.Hash(), sorted[j].tx.Hash()
		return hi.Less(hj)
	})

	out := make([]*chaintypes.Transaction, 0, limit)
	var gasUsed uint64
	for _, e := range sorted {
		if len(out) >= limit {
			break
		}
		if gasUsed+e.tx.GasLimit > gasBudget {
			break
		}
		gasUsed += e.tx.GasLimit
		out = append(out, e.tx)
	}
	return out
}

type entry struct {
	tx         *chaintypes.Transaction
	insertedAt time.Time
}

// InMemory is a mutex-guarded Mempool reference implementation.
type InMemory struct {
	mu      sync.RWMutex
	entries map[crypto.Hash]*entry
	now     func() time.Time
}

// NewInMemory returns an empty in-memory Mempool.
func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[crypto.Hash]*entry),
		now:     time.Now,
	}
}

func (m *InMemory) Insert(tx *chaintypes.Transaction) bool {
	if tx == nil || !tx.VerifySignature() {
		logger.Warn("rejecting unsigned or invalid transaction")
		return false
	}
	h := tx.Hash()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[h]; exists {
		return false
	}
	m.entries[h] = &entry{tx: tx, insertedAt: m.now()}
	return true
}

func (m *InMemory) Remove(txHash crypto.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, txHash)
}

func (m *InMemory) SnapshotTop(limit int, gasBudget uint64) []*chaintypes.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	return selectTop(entries, limit, gasBudget, m.now())
}

func (m *InMemory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
