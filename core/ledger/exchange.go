package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"token-sale-exchange/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// DefaultRateBase is the denominator of the appreciation formula. Each whole
// ether held in reserve raises the price by 1/DefaultRateBase on a buy.
const DefaultRateBase = 100000

type ExchangeParams struct {
	InitialPrice *big.Int // wei per whole token
	RateBase     *big.Int

	// UpdatePriceOnSell runs the appreciation step after sells as well,
	// using the reserve left once the seller is paid.
	UpdatePriceOnSell bool
}

func DefaultExchangeParams() ExchangeParams {
	return ExchangeParams{
		InitialPrice: model.Ether(5),
		RateBase:     big.NewInt(DefaultRateBase),
	}
}

// Exchange buys and sells the token against native currency at a single
// quoted price that rises with the reserve after every purchase.
type Exchange struct {
	address  common.Address
	owner    common.Address
	token    Token
	backend  Backend
	params   ExchangeParams
	decimals uint8

	mu           sync.RWMutex
	currentPrice *big.Int
}

func NewExchange(address common.Address, token Token, owner common.Address, backend Backend, params ExchangeParams) (*Exchange, error) {
	if params.InitialPrice == nil || params.InitialPrice.Sign() <= 0 {
		return nil, ErrInvalidInitialPrice
	}
	if params.RateBase == nil || params.RateBase.Sign() <= 0 {
		return nil, ErrInvalidRateBase
	}
	return &Exchange{
		address:      address,
		owner:        owner,
		token:        token,
		backend:      backend,
		params:       params,
		decimals:     token.Decimals(),
		currentPrice: copyInt(params.InitialPrice),
	}, nil
}

// AppreciatedPrice applies the appreciation formula
//
//	floor(oldPrice * (rateBase + floor(reserve / 1 ether)) / rateBase)
//
// with reserve in wei.
func AppreciatedPrice(oldPrice, reserve, rateBase *big.Int) *big.Int {
	units := model.WholeCurrencyUnits(reserve)
	price := new(big.Int).Add(rateBase, units)
	price.Mul(price, oldPrice)
	return price.Quo(price, rateBase)
}

// GetCurrentCalculatedPrice returns the stored price. Reading never moves
// the price; only purchases do.
func (e *Exchange) GetCurrentCalculatedPrice() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyInt(e.currentPrice)
}

// DepositEthByOwner adds the call value to the reserve.
func (e *Exchange) DepositEthByOwner(call model.Call) error {
	if err := onlyOwner(e.owner, call); err != nil {
		return err
	}
	amount := valueOf(call)
	if amount.Sign() <= 0 {
		return ErrZeroDeposit
	}
	if err := emit(e.backend, e.address, model.EventEthDepositedByOwner, call.From, copyInt(amount)); err != nil {
		return err
	}
	logrus.Infof("exchange %s: owner deposited %s ETH", e.address.Hex(), model.FormatEther(amount))
	return nil
}

// WithdrawEthByOwner pays amount wei out of the reserve to the owner.
func (e *Exchange) WithdrawEthByOwner(call model.Call, amount *big.Int) error {
	if err := onlyOwner(e.owner, call); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return model.ErrNegativeAmount
	}
	if e.Reserve().Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}
	if err := e.backend.Transfer(e.address, e.owner, amount); err != nil {
		return fmt.Errorf("withdraw reserve: %w", err)
	}
	if err := emit(e.backend, e.address, model.EventEthWithdrawnByOwner, e.owner, copyInt(amount)); err != nil {
		return err
	}
	logrus.Infof("exchange %s: owner withdrew %s ETH", e.address.Hex(), model.FormatEther(amount))
	return nil
}

// BuyTokens sells amount whole tokens at the current price. The caller must
// have paid exactly amount * price; the price then appreciates using the
// reserve including that payment.
func (e *Exchange) BuyTokens(call model.Call, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	e.mu.Lock()
	cost := new(big.Int).Mul(amount, e.currentPrice)
	if valueOf(call).Cmp(cost) != 0 {
		e.mu.Unlock()
		return ErrExchangeIncorrectPayment
	}
	baseUnits := model.ToBaseUnits(amount, e.decimals)
	if e.token.BalanceOf(e.address).Cmp(baseUnits) < 0 {
		e.mu.Unlock()
		return ErrOutOfTokens
	}
	oldPrice := e.currentPrice
	e.setPriceLocked(AppreciatedPrice(oldPrice, e.backend.BalanceOf(e.address), e.params.RateBase))
	newPrice := e.currentPrice
	e.mu.Unlock()

	if err := e.token.Transfer(e.address, call.From, baseUnits); err != nil {
		return fmt.Errorf("transfer purchased tokens: %w", err)
	}
	if err := emit(e.backend, e.address, model.EventTokensBought, call.From, copyInt(amount), cost); err != nil {
		return err
	}

	logrus.Infof("exchange %s: %s bought %s tokens for %s ETH, price %s -> %s ETH", e.address.Hex(), call.From.Hex(),
		amount, model.FormatEther(cost), model.FormatEther(oldPrice), model.FormatEther(newPrice))
	return nil
}

// SellTokens buys amount whole tokens back from the caller at the current
// price. The caller must have approved the exchange to pull them.
func (e *Exchange) SellTokens(call model.Call, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	e.mu.Lock()
	proceeds := new(big.Int).Mul(amount, e.currentPrice)
	reserve := e.backend.BalanceOf(e.address)
	if reserve.Cmp(proceeds) < 0 {
		e.mu.Unlock()
		return ErrInsufficientReserveForBuyback
	}
	if e.params.UpdatePriceOnSell {
		reserveAfter := new(big.Int).Sub(reserve, proceeds)
		e.setPriceLocked(AppreciatedPrice(e.currentPrice, reserveAfter, e.params.RateBase))
	}
	e.mu.Unlock()

	if err := e.token.TransferFrom(e.address, call.From, e.address, model.ToBaseUnits(amount, e.decimals)); err != nil {
		return fmt.Errorf("pull sold tokens: %w", err)
	}
	if err := e.backend.Transfer(e.address, call.From, proceeds); err != nil {
		return fmt.Errorf("pay seller: %w", err)
	}
	if err := emit(e.backend, e.address, model.EventTokensSold, call.From, copyInt(amount), proceeds); err != nil {
		return err
	}

	logrus.Infof("exchange %s: %s sold %s tokens for %s ETH", e.address.Hex(), call.From.Hex(), amount, model.FormatEther(proceeds))
	return nil
}

// setPriceLocked must be called with e.mu held.
func (e *Exchange) setPriceLocked(price *big.Int) {
	prev := e.currentPrice
	e.currentPrice = price
	e.backend.Append(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.currentPrice = prev
	})
}

func (e *Exchange) Address() common.Address { return e.address }
func (e *Exchange) Owner() common.Address   { return e.owner }
func (e *Exchange) Decimals() uint8         { return e.decimals }
func (e *Exchange) RateBase() *big.Int      { return copyInt(e.params.RateBase) }

// CurrentTokenPrice is the stored price in wei per whole token.
func (e *Exchange) CurrentTokenPrice() *big.Int {
	return e.GetCurrentCalculatedPrice()
}

// Reserve returns the native-currency balance backing buybacks.
func (e *Exchange) Reserve() *big.Int {
	return e.backend.BalanceOf(e.address)
}

// Stock returns how many whole tokens the exchange can still sell.
func (e *Exchange) Stock() *big.Int {
	return model.ToWholeUnits(e.token.BalanceOf(e.address), e.decimals)
}
