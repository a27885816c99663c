package model

import "math/big"

// TokenInfo is the metadata of a fungible token as seen by the ledgers.
type TokenInfo struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int // base units
	Holders     int32
}

// WholeSupply returns the total supply in whole-token units.
func (t *TokenInfo) WholeSupply() *big.Int {
	return ToWholeUnits(t.TotalSupply, t.Decimals)
}
