package stream

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"trustescrow/native/common"
)

var rateScaleDecimal = decimal.NewFromBigInt(RateScale, 0)

// ParseRate converts a decimal units-per-second string ("0.05") into the
// fixed-point representation stored on streams. More than 18 fractional
// digits are rejected rather than rounded.
func ParseRate(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, common.Wrapf(ErrInvalidRate, "empty rate")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, common.Wrapf(ErrInvalidRate, "%v", err)
	}
	if d.IsNegative() {
		return nil, common.Wrapf(ErrInvalidRate, "rate %s is negative", trimmed)
	}
	scaled := d.Mul(rateScaleDecimal)
	if !scaled.IsInteger() {
		return nil, common.Wrapf(ErrInvalidRate, "rate %s exceeds 18 decimals", trimmed)
	}
	return scaled.BigInt(), nil
}

// FormatRate renders a fixed-point rate as a decimal string.
func FormatRate(rate *big.Int) string {
	if rate == nil {
		return "0"
	}
	return decimal.NewFromBigInt(rate, -18).String()
}
