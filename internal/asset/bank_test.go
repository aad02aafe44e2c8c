package asset

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBank(t *testing.T) {
	t.Run("deposit and balance", func(t *testing.T) {
		b := NewBank()
		require.NoError(t, b.Deposit("USD", "alice", big.NewInt(100)))
		require.NoError(t, b.Deposit("USD", "alice", big.NewInt(25)))
		assert.Equal(t, int64(125), b.BalanceOf("USD", "alice").Int64())
	})

	t.Run("transfer moves value", func(t *testing.T) {
		b := NewBank()
		require.NoError(t, b.Deposit("USD", "alice", big.NewInt(100)))
		require.NoError(t, b.Transfer("USD", "alice", "bob", big.NewInt(40)))

		assert.Equal(t, int64(60), b.BalanceOf("USD", "alice").Int64())
		assert.Equal(t, int64(40), b.BalanceOf("USD", "bob").Int64())
	})

	t.Run("transfer past balance fails", func(t *testing.T) {
		b := NewBank()
		require.NoError(t, b.Deposit("USD", "alice", big.NewInt(10)))

		err := b.Transfer("USD", "alice", "bob", big.NewInt(11))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, int64(10), b.BalanceOf("USD", "alice").Int64())
		assert.Equal(t, 0, b.BalanceOf("USD", "bob").Sign())
	})

	t.Run("negative amounts rejected", func(t *testing.T) {
		b := NewBank()
		assert.ErrorIs(t, b.Deposit("USD", "alice", big.NewInt(-1)), ErrNegativeAmount)
		assert.ErrorIs(t, b.Transfer("USD", "alice", "bob", big.NewInt(-1)), ErrNegativeAmount)
	})

	t.Run("currencies are isolated", func(t *testing.T) {
		b := NewBank()
		require.NoError(t, b.Deposit("USD", "alice", big.NewInt(100)))
		assert.Equal(t, 0, b.BalanceOf("EUR", "alice").Sign())
	})
}

func TestBankCurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("balance of self reads the vault address", func(t *testing.T) {
		b := NewBank()
		cur := NewBankCurrency(b, "USD", 6, false, "vault")
		require.NoError(t, b.Deposit("USD", "vault", big.NewInt(500)))

		bal, err := cur.BalanceOfSelf(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(500), bal.Int64())
	})

	t.Run("transfer debits the vault", func(t *testing.T) {
		b := NewBank()
		cur := NewBankCurrency(b, "USD", 6, false, "vault")
		require.NoError(t, b.Deposit("USD", "vault", big.NewInt(500)))

		require.NoError(t, cur.Transfer(ctx, "alice", big.NewInt(200)))
		assert.Equal(t, int64(300), b.BalanceOf("USD", "vault").Int64())
		assert.Equal(t, int64(200), b.BalanceOf("USD", "alice").Int64())
	})

	t.Run("metadata", func(t *testing.T) {
		cur := NewBankCurrency(NewBank(), "ETH", 18, true, "vault")
		assert.Equal(t, "ETH", cur.ID())
		assert.Equal(t, int32(18), cur.Decimals())
		assert.True(t, cur.IsNative())
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and lookup", func(t *testing.T) {
		r := NewRegistry()
		cur := NewBankCurrency(NewBank(), "USD", 6, false, "vault")
		require.NoError(t, r.Register(cur))

		got, ok := r.Lookup("USD")
		require.True(t, ok)
		assert.Equal(t, "USD", got.ID())
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		r := NewRegistry()
		b := NewBank()
		require.NoError(t, r.Register(NewBankCurrency(b, "USD", 6, false, "vault")))
		assert.Error(t, r.Register(NewBankCurrency(b, "USD", 2, false, "vault")))
	})

	t.Run("unknown lookup misses", func(t *testing.T) {
		r := NewRegistry()
		_, ok := r.Lookup("EUR")
		assert.False(t, ok)
	})

	t.Run("ids lists all registered", func(t *testing.T) {
		r := NewRegistry()
		b := NewBank()
		require.NoError(t, r.Register(NewBankCurrency(b, "USD", 6, false, "vault")))
		require.NoError(t, r.Register(NewBankCurrency(b, "EUR", 2, false, "vault")))
		assert.ElementsMatch(t, []string{"USD", "EUR"}, r.IDs())
	})
}
