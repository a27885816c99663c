package model

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

// CurrencyDecimals is the number of decimals of the native currency:
// 1 ether = 10^18 wei. It is unrelated to the token's own decimals.
const CurrencyDecimals uint8 = 18

// OneEther is one whole unit of native currency, in wei.
var OneEther = big.NewInt(params.Ether)

var ErrNegativeAmount = errors.New("amount must not be negative")

// Ether returns n whole units of native currency expressed in wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), OneEther)
}

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// ToBaseUnits converts a whole-token count into base units.
func ToBaseUnits(whole *big.Int, decimals uint8) *big.Int {
	return new(big.Int).Mul(whole, Pow10(decimals))
}

// ToWholeUnits converts base units into whole tokens, truncating any
// fractional remainder.
func ToWholeUnits(base *big.Int, decimals uint8) *big.Int {
	return new(big.Int).Quo(base, Pow10(decimals))
}

// WholeCurrencyUnits returns floor(wei / 1 ether).
func WholeCurrencyUnits(wei *big.Int) *big.Int {
	return new(big.Int).Quo(wei, OneEther)
}

// FormatUnits renders a base-unit amount as a decimal string with the given
// number of decimals, e.g. FormatUnits(1500000000000000000, 18) == "1.5".
// For display only.
func FormatUnits(base *big.Int, decimals uint8) string {
	if base == nil {
		return "0"
	}
	return decimal.NewFromBigInt(base, -int32(decimals)).String()
}

// ParseUnits parses a decimal string such as "2.5" into base units. More
// fractional digits than decimals is an error rather than a silent
// truncation.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatEther renders a wei amount in ether.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, CurrencyDecimals)
}
