// Package ledger implements the two pricing ledgers that distribute the
// token: a tiered fixed-price sale and a reserve-priced two-way exchange.
//
// Counters, prices and tier limits are whole-token quantities; only the
// token collaborator deals in base units, so every token movement is
// converted with model.ToBaseUnits at the boundary. Currency amounts are
// wei throughout.
//
// Ledger operations take a model.Call whose Value the environment has
// already credited to the ledger. Every operation performs all of its checks
// and internal state changes before calling the token, and journals each
// change so a failing call can be reverted as a whole by the caller.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"token-sale-exchange/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Token is the fungible-token collaborator. Amounts are base units.
type Token interface {
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
	BalanceOf(account common.Address) *big.Int
	Decimals() uint8
	TotalSupply() *big.Int
}

// Backend is the execution environment: native-currency balances (the
// reserve is the ledger's own balance), the undo journal and the event log.
type Backend interface {
	BalanceOf(account common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	Append(undo func())
	AddLog(log *types.Log)
}

var (
	ErrAlreadyInitialized = errors.New("TokenSale: Sale already initialized")
	ErrNotInitialized     = errors.New("TokenSale: Sale not initialized")
	ErrSaleEnded          = errors.New("TokenSale: Sale has ended")
	ErrSaleNotEnded       = errors.New("TokenSale: Sale has not ended yet")
	ErrAlreadyEnded       = errors.New("TokenSale: Sale already ended")
	ErrIncorrectPayment   = errors.New("TokenSale: Incorrect ETH amount sent")
	ErrSoldOut            = errors.New("TokenSale: Not enough tokens left for sale")
	ErrInvalidPricing     = errors.New("TokenSale: Invalid tier prices")

	ErrExchangeIncorrectPayment      = errors.New("Incorrect ETH sent for purchase")
	ErrOutOfTokens                   = errors.New("Exchange out of tokens")
	ErrInsufficientReserveForBuyback = errors.New("Exchange has insufficient ETH for buyback")
	ErrInsufficientReserve           = errors.New("Insufficient ETH in exchange")
	ErrZeroDeposit                   = errors.New("Deposit amount must be greater than zero")
	ErrInvalidInitialPrice           = errors.New("Initial price must be greater than zero")
	ErrInvalidRateBase               = errors.New("Rate base must be greater than zero")

	ErrZeroAmount = errors.New("Amount must be greater than zero")
)

// UnauthorizedAccountError is returned when a privileged operation is called
// by anyone but the ledger's owner or beneficiary.
type UnauthorizedAccountError struct {
	Account common.Address
}

func (e *UnauthorizedAccountError) Error() string {
	return fmt.Sprintf("OwnableUnauthorizedAccount(%s)", e.Account.Hex())
}

func onlyOwner(owner common.Address, call model.Call) error {
	if call.From != owner {
		return &UnauthorizedAccountError{Account: call.From}
	}
	return nil
}

func emit(backend Backend, contract common.Address, eventName string, args ...interface{}) error {
	log, err := model.NewEventLog(model.LedgerEventABI, contract, eventName, args...)
	if err != nil {
		return fmt.Errorf("emit %s: %w", eventName, err)
	}
	backend.AddLog(log)
	return nil
}

func valueOf(call model.Call) *big.Int {
	if call.Value == nil {
		return new(big.Int)
	}
	return call.Value
}

func copyInt(x *big.Int) *big.Int {
	return new(big.Int).Set(x)
}
