package num

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Ledger accumulators are bounded: settlement deltas live in a signed
// 128-bit domain, reserves and amounts in an unsigned 256-bit domain.
var (
	// MaxInt128 is 2^127 - 1.
	MaxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	// MinInt128 is -2^127.
	MinInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	// MaxUint256 is 2^256 - 1.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// FitsInt128 reports whether x is representable as a signed 128-bit integer.
func FitsInt128(x *big.Int) bool {
	return x.Cmp(MinInt128) >= 0 && x.Cmp(MaxInt128) <= 0
}

// FitsUint256 reports whether x is representable as an unsigned 256-bit integer.
func FitsUint256(x *big.Int) bool {
	return x.Sign() >= 0 && x.Cmp(MaxUint256) <= 0
}

// Clone returns an independent copy of x. A nil x is treated as zero.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// Neg returns -x as a new value.
func Neg(x *big.Int) *big.Int {
	return new(big.Int).Neg(x)
}

// IsZero reports whether x is nil or zero.
func IsZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}

// FormatUnits renders a base-unit amount as a decimal string scaled by
// the currency's decimals, e.g. 1500000 with 6 decimals -> "1.5".
func FormatUnits(x *big.Int, decimals int32) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x, -decimals).String()
}

// ParseUnits parses a decimal string into base units. The scaled value
// must be an integer: "1.5" with 6 decimals is 1500000, but "0.0000001"
// with 6 decimals is rejected.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return scaled.BigInt(), nil
}
