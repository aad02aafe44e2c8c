package shares

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/assetvault/internal/asset"
	"github.com/terminal-bench/assetvault/pkg/num"
)

const holder = asset.Address("holder")

func TestIssue(t *testing.T) {
	t.Run("credits the holder", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Issue(holder, "USD", big.NewInt(100)))
		require.NoError(t, l.Issue(holder, "USD", big.NewInt(50)))
		assert.Equal(t, int64(150), l.BalanceOf(holder, "USD").Int64())
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		l := NewLedger()
		assert.ErrorIs(t, l.Issue(holder, "USD", big.NewInt(-1)), ErrNegativeAmount)
	})

	t.Run("overflow past uint256 fails without mutating", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Issue(holder, "USD", num.MaxUint256))

		err := l.Issue(holder, "USD", big.NewInt(1))
		assert.ErrorIs(t, err, ErrShareOverflow)
		assert.Equal(t, 0, l.BalanceOf(holder, "USD").Cmp(num.MaxUint256))
	})
}

func TestRedeem(t *testing.T) {
	t.Run("debits the holder", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Issue(holder, "USD", big.NewInt(100)))
		require.NoError(t, l.Redeem(holder, "USD", big.NewInt(60)))
		assert.Equal(t, int64(40), l.BalanceOf(holder, "USD").Int64())
	})

	t.Run("insufficient balance fails without mutating", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Issue(holder, "USD", big.NewInt(10)))

		err := l.Redeem(holder, "USD", big.NewInt(11))
		assert.ErrorIs(t, err, ErrInsufficientShares)
		assert.Equal(t, int64(10), l.BalanceOf(holder, "USD").Int64())
	})

	t.Run("redeem from unknown holding fails", func(t *testing.T) {
		l := NewLedger()
		assert.ErrorIs(t, l.Redeem(holder, "USD", big.NewInt(1)), ErrInsufficientShares)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		l := NewLedger()
		assert.ErrorIs(t, l.Redeem(holder, "USD", big.NewInt(-1)), ErrNegativeAmount)
	})
}

func TestBalanceOf(t *testing.T) {
	l := NewLedger()
	assert.Equal(t, 0, l.BalanceOf(holder, "USD").Sign())

	require.NoError(t, l.Issue(holder, "USD", big.NewInt(5)))
	b := l.BalanceOf(holder, "USD")
	b.SetInt64(999)
	assert.Equal(t, int64(5), l.BalanceOf(holder, "USD").Int64())
}
