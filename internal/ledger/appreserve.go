package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/terminal-bench/assetvault/internal/asset"
	"github.com/terminal-bench/assetvault/pkg/num"
)

var (
	ErrReserveUnderflow = errors.New("app reserve underflow")
	ErrReserveOverflow  = errors.New("app reserve overflow")
)

// AppReserveLedger tracks each app's non-negative claim on vault-held
// funds, keyed (app, currency).
//
// Sign convention — deliberately inverted versus the settlement
// ledger: a positive delta means the app is crediting the trader and
// therefore REMOVING claims, so it is subtracted here; a negative
// delta means the app is adding claims, so -delta is added. Keep this
// as its own operation; folding it into a generic adjuster is how the
// direction of flow gets inverted by accident.
type AppReserveLedger struct {
	mu       sync.RWMutex
	reserves map[entryKey]*big.Int
}

// NewAppReserveLedger creates an empty app reserve ledger.
func NewAppReserveLedger() *AppReserveLedger {
	return &AppReserveLedger{reserves: make(map[entryKey]*big.Int)}
}

// Adjust applies an app-reported delta to the (app, currency) reserve.
// A zero delta is a no-op. Underflow — the app reporting removal of
// more value than it holds in the vault — fails and leaves the reserve
// unchanged; this is the primary misuse guard.
func (a *AppReserveLedger) Adjust(app asset.Address, currencyID string, delta *big.Int) error {
	if num.IsZero(delta) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := entryKey{Account: app, Currency: currencyID}
	prev, ok := a.reserves[key]
	if !ok {
		prev = new(big.Int)
	}

	next := new(big.Int).Sub(prev, delta)
	if next.Sign() < 0 {
		return ErrReserveUnderflow
	}
	if !num.FitsUint256(next) {
		return ErrReserveOverflow
	}

	a.reserves[key] = next
	return nil
}

// ReserveOf returns the (app, currency) reserve, defaulting to zero.
func (a *AppReserveLedger) ReserveOf(app asset.Address, currencyID string) *big.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if r, ok := a.reserves[entryKey{Account: app, Currency: currencyID}]; ok {
		return num.Clone(r)
	}
	return new(big.Int)
}
