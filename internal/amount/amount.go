package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// WeiDecimals is the fixed-point scale of native token amounts.
	WeiDecimals = 18
	// SampleScale is the precision of rates derived from a single deposit.
	SampleScale = 18
	// RateScale is the precision of exchange rates stored in the ledger.
	RateScale = 24
)

// ErrDivisionByZero is returned when a ratio has a zero denominator.
var ErrDivisionByZero = errors.New("division by zero")

// One is the human-scale unit amount.
var One = decimal.NewFromInt(1)

// FromWei converts a wei-scaled integer into a human-scale decimal.
func FromWei(value *big.Int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -WeiDecimals)
}

// ToWei converts a human-scale decimal into a wei-scaled integer, truncating
// anything below one wei.
func ToWei(value decimal.Decimal) *big.Int {
	return value.Shift(WeiDecimals).BigInt()
}

// Ratio divides num by den, rounded to places fractional digits.
func Ratio(num, den decimal.Decimal, places int32) (decimal.Decimal, error) {
	if den.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return num.DivRound(den, places), nil
}

// WeiRatio divides two wei-scaled integers. The scale cancels out, so the
// result is the same as the ratio of their human-scale values.
func WeiRatio(num, den *big.Int, places int32) (decimal.Decimal, error) {
	if den == nil || den.Sign() == 0 {
		return decimal.Zero, ErrDivisionByZero
	}
	if num == nil {
		num = new(big.Int)
	}
	return Ratio(decimal.NewFromBigInt(num, 0), decimal.NewFromBigInt(den, 0), places)
}

// Parse reads a decimal string. An empty string is zero.
func Parse(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", value, err)
	}
	return d, nil
}

// ParseWei reads a base-10 wei integer string. An empty string is zero.
func ParseWei(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

// FormatWei renders a wei amount in human units with full precision.
func FormatWei(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return FromWei(value).StringFixed(WeiDecimals)
}
