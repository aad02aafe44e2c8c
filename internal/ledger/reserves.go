package ledger

import (
	"math/big"
	"sync"

	"github.com/terminal-bench/assetvault/pkg/num"
)

// ReserveStore keeps the vault's last-synced on-hand balance per
// currency. Snapshots carry no correctness by themselves; settle uses
// them as the reference point for diff-based settlement.
type ReserveStore struct {
	mu        sync.RWMutex
	snapshots map[string]*big.Int
}

// NewReserveStore creates an empty reserve store.
func NewReserveStore() *ReserveStore {
	return &ReserveStore{snapshots: make(map[string]*big.Int)}
}

// Record stores balance as the new snapshot for a currency.
func (r *ReserveStore) Record(currencyID string, balance *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[currencyID] = num.Clone(balance)
}

// SnapshotOf returns the last-synced balance for a currency,
// defaulting to zero.
func (r *ReserveStore) SnapshotOf(currencyID string) *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.snapshots[currencyID]; ok {
		return num.Clone(s)
	}
	return new(big.Int)
}
