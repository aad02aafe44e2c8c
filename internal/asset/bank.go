package asset

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/terminal-bench/assetvault/pkg/num"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("amount must be non-negative")
)

// Bank is an in-memory multi-currency balance book. It backs the
// bank-hosted Currency implementations used by vaultd and the tests.
type Bank struct {
	mu       sync.RWMutex
	balances map[string]map[Address]*big.Int // currency ID -> holder -> balance
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[string]map[Address]*big.Int)}
}

// Deposit credits holder with amount of the given currency.
func (b *Bank) Deposit(currencyID string, holder Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.credit(currencyID, holder, amount)
	return nil
}

// Transfer moves amount of the given currency from one holder to another.
func (b *Bank) Transfer(currencyID string, from, to Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balanceLocked(currencyID, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, need %s",
			ErrInsufficientBalance, from, bal, currencyID, amount)
	}
	bal.Sub(bal, amount)
	b.credit(currencyID, to, amount)
	return nil
}

// BalanceOf returns holder's balance of the given currency.
func (b *Bank) BalanceOf(currencyID string, holder Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if holders, ok := b.balances[currencyID]; ok {
		if bal, ok := holders[holder]; ok {
			return num.Clone(bal)
		}
	}
	return new(big.Int)
}

// credit and balanceLocked are called with b.mu held.

func (b *Bank) credit(currencyID string, holder Address, amount *big.Int) {
	bal := b.balanceLocked(currencyID, holder)
	bal.Add(bal, amount)
}

func (b *Bank) balanceLocked(currencyID string, holder Address) *big.Int {
	holders, ok := b.balances[currencyID]
	if !ok {
		holders = make(map[Address]*big.Int)
		b.balances[currencyID] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = new(big.Int)
		holders[holder] = bal
	}
	return bal
}

// BankCurrency is a Currency hosted by a Bank, with the vault's own
// holdings kept under a fixed vault address.
type BankCurrency struct {
	bank     *Bank
	id       string
	decimals int32
	native   bool
	vault    Address
}

// NewBankCurrency creates a bank-hosted currency. vault is the address
// whose bank balance counts as the vault's on-hand reserve.
func NewBankCurrency(bank *Bank, id string, decimals int32, native bool, vault Address) *BankCurrency {
	return &BankCurrency{
		bank:     bank,
		id:       id,
		decimals: decimals,
		native:   native,
		vault:    vault,
	}
}

func (c *BankCurrency) ID() string      { return c.id }
func (c *BankCurrency) Decimals() int32 { return c.decimals }
func (c *BankCurrency) IsNative() bool  { return c.native }

// Transfer moves amount out of the vault's holdings.
func (c *BankCurrency) Transfer(ctx context.Context, to Address, amount *big.Int) error {
	return c.bank.Transfer(c.id, c.vault, to, amount)
}

// BalanceOfSelf reports the vault's on-hand balance.
func (c *BankCurrency) BalanceOfSelf(ctx context.Context) (*big.Int, error) {
	return c.bank.BalanceOf(c.id, c.vault), nil
}
