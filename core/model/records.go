package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventRecord is the persisted form of a decoded ledger event.
type EventRecord struct {
	Name      string         `json:"name"`
	Ledger    common.Address `json:"ledger"`
	Account   common.Address `json:"account"`
	Amount    *big.Int       `json:"amount,omitempty"`
	Value     *big.Int       `json:"value,omitempty"`
	TxHash    common.Hash    `json:"txHash"`
	Block     uint64         `json:"block"`
	LogIndex  uint           `json:"logIndex"`
	Timestamp uint64         `json:"timestamp"`
}

// AccountActivity aggregates the trades of one account across ledgers.
// Token amounts are whole tokens, currency amounts are wei.
type AccountActivity struct {
	Address      common.Address
	TokensBought *big.Int
	TokensSold   *big.Int
	Spent        *big.Int
	Received     *big.Int
	Trxs         int32
}

func NewAccountActivity(addr common.Address) *AccountActivity {
	return &AccountActivity{
		Address:      addr,
		TokensBought: new(big.Int),
		TokensSold:   new(big.Int),
		Spent:        new(big.Int),
		Received:     new(big.Int),
	}
}

// NetTokens returns bought minus sold, in whole tokens.
func (a *AccountActivity) NetTokens() *big.Int {
	return new(big.Int).Sub(a.TokensBought, a.TokensSold)
}

// LedgerStats aggregates the events emitted by one ledger.
type LedgerStats struct {
	Ledger    common.Address
	TokensOut *big.Int // whole tokens sold to buyers
	TokensIn  *big.Int // whole tokens bought back
	Inflow    *big.Int // wei paid in by buyers
	Outflow   *big.Int // wei paid out to sellers
	Deposited *big.Int
	Withdrawn *big.Int
	Trxs      int32
	Ended     bool
}

func NewLedgerStats(ledger common.Address) *LedgerStats {
	return &LedgerStats{
		Ledger:    ledger,
		TokensOut: new(big.Int),
		TokensIn:  new(big.Int),
		Inflow:    new(big.Int),
		Outflow:   new(big.Int),
		Deposited: new(big.Int),
		Withdrawn: new(big.Int),
	}
}
