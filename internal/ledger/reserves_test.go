package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReserveStore(t *testing.T) {
	t.Run("record and read back", func(t *testing.T) {
		r := NewReserveStore()
		r.Record("USD", big.NewInt(1000))
		assert.Equal(t, int64(1000), r.SnapshotOf("USD").Int64())
	})

	t.Run("record overwrites", func(t *testing.T) {
		r := NewReserveStore()
		r.Record("USD", big.NewInt(1000))
		r.Record("USD", big.NewInt(750))
		assert.Equal(t, int64(750), r.SnapshotOf("USD").Int64())
	})

	t.Run("unknown currency reads as zero", func(t *testing.T) {
		r := NewReserveStore()
		assert.Equal(t, 0, r.SnapshotOf("EUR").Sign())
	})

	t.Run("snapshots are copies both ways", func(t *testing.T) {
		r := NewReserveStore()
		in := big.NewInt(100)
		r.Record("USD", in)
		in.SetInt64(999)

		out := r.SnapshotOf("USD")
		out.SetInt64(0)
		assert.Equal(t, int64(100), r.SnapshotOf("USD").Int64())
	})
}
