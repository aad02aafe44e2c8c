// Package shares keeps the receipt-token balances that represent
// claims on vault-held assets. The vault issues shares on mint and
// redeems them on burn; the ledger itself knows nothing about sessions.
package shares

import (
	"errors"
	"math/big"
	"sync"

	"github.com/terminal-bench/assetvault/internal/asset"
	"github.com/terminal-bench/assetvault/pkg/num"
)

var (
	ErrInsufficientShares = errors.New("insufficient share balance")
	ErrShareOverflow      = errors.New("share balance overflow")
	ErrNegativeAmount     = errors.New("share amount must be non-negative")
)

type holding struct {
	Holder   asset.Address
	Currency string
}

// Ledger is a multi-asset share balance book keyed (holder, currency).
type Ledger struct {
	mu       sync.RWMutex
	balances map[holding]*big.Int
}

// NewLedger creates an empty share ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[holding]*big.Int)}
}

// Issue credits to with amount shares of the given currency.
func (l *Ledger) Issue(to asset.Address, currencyID string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := holding{Holder: to, Currency: currencyID}
	bal, ok := l.balances[key]
	if !ok {
		bal = new(big.Int)
	}
	next := new(big.Int).Add(bal, amount)
	if !num.FitsUint256(next) {
		return ErrShareOverflow
	}
	l.balances[key] = next
	return nil
}

// Redeem burns amount shares of the given currency from from.
func (l *Ledger) Redeem(from asset.Address, currencyID string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := holding{Holder: from, Currency: currencyID}
	bal, ok := l.balances[key]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientShares
	}
	l.balances[key] = new(big.Int).Sub(bal, amount)
	return nil
}

// BalanceOf returns the holder's share balance for a currency.
func (l *Ledger) BalanceOf(holder asset.Address, currencyID string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if bal, ok := l.balances[holding{Holder: holder, Currency: currencyID}]; ok {
		return num.Clone(bal)
	}
	return new(big.Int)
}
