package asset

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// Address identifies an account, app, or service holding value.
type Address string

// ZeroAddress is the empty identity.
const ZeroAddress Address = ""

// Currency abstracts a native asset or a fungible-token asset held by
// the vault. Transfer moves value out of the vault; BalanceOfSelf
// reports the vault's current on-hand balance.
type Currency interface {
	ID() string
	Decimals() int32
	IsNative() bool
	Transfer(ctx context.Context, to Address, amount *big.Int) error
	BalanceOfSelf(ctx context.Context) (*big.Int, error)
}

// PoolKey identifies a two-currency pool managed by an app.
type PoolKey struct {
	Currency0 Currency
	Currency1 Currency
}

// BalanceDelta is a signed two-currency balance change reported by an
// app. Positive amounts credit the trader and reduce the app's
// custodied reserve; negative amounts do the opposite.
type BalanceDelta struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// Registry resolves currency IDs for the HTTP surface.
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]Currency
}

// NewRegistry creates an empty currency registry.
func NewRegistry() *Registry {
	return &Registry{currencies: make(map[string]Currency)}
}

// Register adds a currency. Re-registering an ID fails.
func (r *Registry) Register(c Currency) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.currencies[c.ID()]; exists {
		return fmt.Errorf("currency %s already registered", c.ID())
	}
	r.currencies[c.ID()] = c
	return nil
}

// Lookup resolves a currency by ID.
func (r *Registry) Lookup(id string) (Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.currencies[id]
	return c, exists
}

// IDs returns the registered currency IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.currencies))
	for id := range r.currencies {
		ids = append(ids, id)
	}
	return ids
}
