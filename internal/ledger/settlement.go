// Package ledger holds the vault's three bookkeeping stores: the
// settlement ledger (session plus per-settler signed deltas), the app
// reserve ledger, and the vault reserve snapshot store. Every mutation
// is a single read-modify-write with explicit overflow and underflow
// failure; nothing is ever clamped.
package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/terminal-bench/assetvault/internal/asset"
	"github.com/terminal-bench/assetvault/pkg/num"
)

var (
	ErrAlreadyLocked      = errors.New("a session is already active")
	ErrUnsettledBalance   = errors.New("unsettled balances remain")
	ErrArithmeticOverflow = errors.New("delta overflows the accumulator")
)

type entryKey struct {
	Account  asset.Address
	Currency string
}

// SettlementLedger tracks the single global session and the signed
// per-(account, currency) delta accumulated inside it. The outstanding
// counter is maintained on every zero crossing so that "is everything
// settled" is an O(1) check regardless of how many pairs a session
// touches.
type SettlementLedger struct {
	mu          sync.RWMutex
	holder      asset.Address
	locked      bool
	outstanding int
	deltas      map[entryKey]*big.Int
}

// NewSettlementLedger creates an unlocked ledger with no deltas.
func NewSettlementLedger() *SettlementLedger {
	return &SettlementLedger{deltas: make(map[entryKey]*big.Int)}
}

// AcquireSession sets holder as the session holder. Exactly one
// session exists system-wide; a second acquire fails.
func (s *SettlementLedger) AcquireSession(holder asset.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return ErrAlreadyLocked
	}
	s.holder = holder
	s.locked = true
	return nil
}

// ReleaseSession clears the holder. It fails while any (account,
// currency) pair still carries a non-zero delta.
func (s *SettlementLedger) ReleaseSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outstanding != 0 {
		return ErrUnsettledBalance
	}
	s.holder = asset.ZeroAddress
	s.locked = false
	return nil
}

// ForceRelease clears the holder unconditionally. Only the
// orchestrator's session rollback uses it, after the undo log has
// already returned every delta to its pre-session value.
func (s *SettlementLedger) ForceRelease() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holder = asset.ZeroAddress
	s.locked = false
}

// Holder returns the current session holder, if any.
func (s *SettlementLedger) Holder() (asset.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holder, s.locked
}

// OutstandingCount returns the number of (account, currency) pairs
// whose accumulated delta is non-zero.
func (s *SettlementLedger) OutstandingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outstanding
}

// AccountDelta adds delta to the (account, currency) accumulator. A
// zero delta is a no-op. The sum must stay within the signed 128-bit
// domain; on overflow nothing is mutated.
func (s *SettlementLedger) AccountDelta(account asset.Address, currencyID string, delta *big.Int) error {
	if num.IsZero(delta) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{Account: account, Currency: currencyID}
	prev, ok := s.deltas[key]
	if !ok {
		prev = new(big.Int)
	}
	next := new(big.Int).Add(prev, delta)
	if !num.FitsInt128(next) {
		return ErrArithmeticOverflow
	}

	// Crossing-zero bookkeeping keeps the settled check O(1).
	if prev.Sign() == 0 && next.Sign() != 0 {
		s.outstanding++
	} else if prev.Sign() != 0 && next.Sign() == 0 {
		s.outstanding--
	}

	// Entries are created lazily and never deleted; a delta that
	// returns to zero may be revisited later in the same session.
	s.deltas[key] = next
	return nil
}

// DeltaOf returns the accumulated delta for (account, currency),
// defaulting to zero.
func (s *SettlementLedger) DeltaOf(account asset.Address, currencyID string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.deltas[entryKey{Account: account, Currency: currencyID}]; ok {
		return num.Clone(d)
	}
	return new(big.Int)
}
