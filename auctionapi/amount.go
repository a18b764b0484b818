package auctionapi

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/pullauction/core"
)

var (
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrFractionalAmount = errors.New("amount has more precision than the denomination")
	ErrAmountTooLarge   = errors.New("amount does not fit in base units")
)

// maxUint64Digits is the digit count of math.MaxUint64. Any value of at least
// 10^maxUint64Digits base units is out of range.
const maxUint64Digits = 20

// FormatAmount renders base units as a fixed-point decimal string with the given
// number of decimals, e.g. 1234 with 2 decimals is "12.34".
func FormatAmount(a core.Amount, decimals int32) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -decimals)
	return d.StringFixed(decimals)
}

// ParseAmount converts a decimal string into base units. Uses decimal
// arithmetic so "0.1" with 1 decimal is exactly 1 unit.
func ParseAmount(s string, decimals int32) (core.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrNegativeAmount)
	}
	if d.IsZero() {
		return 0, nil
	}

	// Bound the scale before shifting: exponent-form input such as "1e10000000"
	// would otherwise materialize a huge power of ten.
	scale := int64(d.Exponent()) + int64(decimals)
	if scale >= maxUint64Digits {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrAmountTooLarge)
	}
	if scale < 0 && -scale > int64(len(d.Coefficient().String())) {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrFractionalAmount)
	}

	units := d.Shift(decimals)
	if !units.IsInteger() {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrFractionalAmount)
	}

	n := units.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("parse amount %q: %w", s, ErrAmountTooLarge)
	}
	return core.Amount(n.Uint64()), nil
}
