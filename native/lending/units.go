package lending

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var errInvalidDecimal = errors.New("lending: invalid decimal amount")

// ParseUnits converts a human decimal string such as "0.02" into base units of
// an asset with the given precision. Fractions finer than the precision are
// rejected rather than rounded.
func ParseUnits(value string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidDecimal, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s is negative", errInvalidDecimal, value)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", errInvalidDecimal, value, decimals)
	}
	out, err := uint256.FromDecimal(shifted.Truncate(0).String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidDecimal, err)
	}
	return out, nil
}

// ParsePrice parses a USD price into the 8-decimal oracle representation.
func ParsePrice(value string) (*uint256.Int, error) {
	return ParseUnits(value, priceDecimals)
}

// FormatUnits renders base units as a decimal string.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}

// FormatUSD renders an 8-decimal USD value.
func FormatUSD(value *uint256.Int) string {
	return FormatUnits(value, priceDecimals)
}

// FormatWad renders a wad health factor. The no-debt sentinel renders as "inf".
func FormatWad(value *uint256.Int) string {
	if value != nil && value.Eq(MaxHealthFactor) {
		return "inf"
	}
	return FormatUnits(value, 18)
}

// FormatRayPercent renders a ray fraction as a percentage with four decimals.
func FormatRayPercent(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -25).StringFixed(4)
}
