package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the precision of wei amounts and of reference values.
const EtherDecimals = 18

// ErrInvalidAmount is returned when a decimal amount cannot be represented
// as a non-negative integer in the requested precision.
var ErrInvalidAmount = errors.New("types: invalid amount")

// ParseUnits parses a decimal string such as "1.5" into an integer scaled
// by 10^decimals. Negative values and values with more fractional digits
// than decimals are rejected.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	return scaled.BigInt(), nil
}

// ParseEther parses an ether amount into wei.
func ParseEther(s string) (*big.Int, error) {
	return ParseUnits(s, EtherDecimals)
}

// MustParseEther is like ParseEther but panics on error.
func MustParseEther(s string) *big.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders an integer scaled by 10^decimals as a decimal string
// without trailing zeros.
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// FormatEther renders a wei amount in ether.
func FormatEther(v *big.Int) string {
	return FormatUnits(v, EtherDecimals)
}

// FormatUSD renders an 18-decimal reference value with two fractional digits.
func FormatUSD(v *big.Int) string {
	if v == nil {
		return "0.00"
	}
	return decimal.NewFromBigInt(v, -EtherDecimals).StringFixed(2)
}

// Pow10 returns 10^n as a new big.Int.
func Pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
