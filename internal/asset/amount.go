package asset

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrTooManyDecimals = errors.New("asset: too many decimal places for token")

// ToWei converts a human-readable decimal amount to the token's smallest
// unit: wei = floor(d * 10^decimals). Negative amounts keep their sign;
// truncation is toward zero.
func ToWei(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromWei converts a raw smallest-unit integer back to a decimal amount.
func FromWei(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ToWeiExact converts like ToWei but rejects amounts carrying more
// fractional digits than the token supports instead of truncating.
func ToWeiExact(d decimal.Decimal, decimals uint8) (*big.Int, error) {
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, ErrTooManyDecimals
	}
	return scaled.BigInt(), nil
}
