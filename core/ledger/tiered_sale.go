package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"token-sale-exchange/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// DefaultSaleDuration is the length of the sale window in seconds.
const DefaultSaleDuration uint64 = 30 * 24 * 60 * 60

type SaleParams struct {
	Tier1Price *big.Int // wei per whole token up to the tier limit
	Tier2Price *big.Int // wei per whole token past the tier limit
	Duration   uint64   // seconds

	// AllowEarlyEnd lets the beneficiary end the sale before its end time.
	AllowEarlyEnd bool
	// AutoInitialize initializes the sale in the deploying call.
	AutoInitialize bool
}

func DefaultSaleParams() SaleParams {
	return SaleParams{
		Tier1Price:     model.Ether(5),
		Tier2Price:     model.Ether(10),
		Duration:       DefaultSaleDuration,
		AllowEarlyEnd:  true,
		AutoInitialize: true,
	}
}

type SaleStatus int

const (
	SaleUninitialized SaleStatus = iota
	SaleActive
	SaleEnded
)

func (s SaleStatus) String() string {
	switch s {
	case SaleUninitialized:
		return "uninitialized"
	case SaleActive:
		return "active"
	case SaleEnded:
		return "ended"
	}
	return "unknown"
}

// TieredSale sells half of the token supply in two price tiers: the first
// quarter of the supply at Tier1Price, the rest at Tier2Price, inside a
// fixed time window.
type TieredSale struct {
	address     common.Address
	beneficiary common.Address
	token       Token
	backend     Backend
	params      SaleParams
	decimals    uint8

	mu           sync.RWMutex
	initialized  bool
	ended        bool
	totalForSale *big.Int
	tierLimit    *big.Int
	sold         *big.Int
	startTime    uint64
	endTime      uint64
}

// NewTieredSale deploys a sale at address. The sale must hold the tokens it
// sells; it does not mint.
func NewTieredSale(address common.Address, token Token, beneficiary common.Address, backend Backend, params SaleParams) (*TieredSale, error) {
	if params.Tier1Price == nil || params.Tier2Price == nil ||
		params.Tier1Price.Sign() <= 0 || params.Tier1Price.Cmp(params.Tier2Price) >= 0 {
		return nil, ErrInvalidPricing
	}
	return &TieredSale{
		address:      address,
		beneficiary:  beneficiary,
		token:        token,
		backend:      backend,
		params:       params,
		decimals:     token.Decimals(),
		totalForSale: new(big.Int),
		tierLimit:    new(big.Int),
		sold:         new(big.Int),
	}, nil
}

// Initialize fixes the sale supply and tiers from the token's total supply
// and opens the sale window at the call's timestamp.
func (s *TieredSale) Initialize(call model.Call) error {
	if err := onlyOwner(s.beneficiary, call); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return ErrAlreadyInitialized
	}

	wholeSupply := model.ToWholeUnits(s.token.TotalSupply(), s.decimals)
	prevTotal, prevLimit := s.totalForSale, s.tierLimit
	prevStart, prevEnd := s.startTime, s.endTime

	s.totalForSale = new(big.Int).Quo(wholeSupply, big.NewInt(2))
	s.tierLimit = new(big.Int).Quo(wholeSupply, big.NewInt(4))
	s.startTime = call.Timestamp
	s.endTime = call.Timestamp + s.params.Duration
	s.initialized = true

	s.backend.Append(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.totalForSale, s.tierLimit = prevTotal, prevLimit
		s.startTime, s.endTime = prevStart, prevEnd
		s.initialized = false
	})

	logrus.Infof("sale %s initialized: %s for sale, tier limit %s, window %d-%d",
		s.address.Hex(), s.totalForSale, s.tierLimit, s.startTime, s.endTime)
	return nil
}

// GetCurrentPrice returns the cost in wei of buying amount whole tokens now.
func (s *TieredSale) GetCurrentPrice(amount *big.Int) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TieredCost(s.sold, s.tierLimit, amount, s.params.Tier1Price, s.params.Tier2Price)
}

// TieredCost prices amount whole tokens given how many have been sold: the
// part still under tierLimit at tier1Price and the rest at tier2Price.
func TieredCost(sold, tierLimit, amount, tier1Price, tier2Price *big.Int) *big.Int {
	remainingTier1 := new(big.Int).Sub(tierLimit, sold)
	if remainingTier1.Sign() < 0 {
		remainingTier1.SetInt64(0)
	}

	if amount.Cmp(remainingTier1) <= 0 {
		return new(big.Int).Mul(amount, tier1Price)
	}

	cost := new(big.Int).Mul(remainingTier1, tier1Price)
	tier2Amount := new(big.Int).Sub(amount, remainingTier1)
	return cost.Add(cost, tier2Amount.Mul(tier2Amount, tier2Price))
}

// BuyTokens sells amount whole tokens to the caller, who must have paid
// exactly GetCurrentPrice(amount).
func (s *TieredSale) BuyTokens(call model.Call, amount *big.Int) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if s.ended || call.Timestamp >= s.endTime {
		s.mu.Unlock()
		return ErrSaleEnded
	}
	if amount == nil || amount.Sign() <= 0 {
		s.mu.Unlock()
		return ErrZeroAmount
	}
	newSold := new(big.Int).Add(s.sold, amount)
	if newSold.Cmp(s.totalForSale) > 0 {
		s.mu.Unlock()
		return ErrSoldOut
	}
	cost := TieredCost(s.sold, s.tierLimit, amount, s.params.Tier1Price, s.params.Tier2Price)
	if valueOf(call).Cmp(cost) != 0 {
		s.mu.Unlock()
		return ErrIncorrectPayment
	}

	prevSold := s.sold
	s.sold = newSold
	s.backend.Append(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sold = prevSold
	})
	s.mu.Unlock()

	// The receiver may run arbitrary code; sold already counts this purchase.
	if err := s.token.Transfer(s.address, call.From, model.ToBaseUnits(amount, s.decimals)); err != nil {
		return fmt.Errorf("transfer purchased tokens: %w", err)
	}
	if err := emit(s.backend, s.address, model.EventTokensPurchased, call.From, copyInt(amount), cost); err != nil {
		return err
	}

	logrus.Infof("sale %s: %s bought %s tokens for %s ETH", s.address.Hex(), call.From.Hex(), amount, model.FormatEther(cost))
	return nil
}

// EndSale closes the sale for good.
func (s *TieredSale) EndSale(call model.Call) error {
	if err := onlyOwner(s.beneficiary, call); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if s.ended {
		s.mu.Unlock()
		return ErrAlreadyEnded
	}
	if !s.params.AllowEarlyEnd && call.Timestamp < s.endTime {
		s.mu.Unlock()
		return ErrSaleNotEnded
	}
	s.ended = true
	s.backend.Append(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.ended = false
	})
	s.mu.Unlock()

	if err := emit(s.backend, s.address, model.EventSaleEnded); err != nil {
		return err
	}
	logrus.Infof("sale %s ended, %s tokens sold", s.address.Hex(), s.Sold())
	return nil
}

// WithdrawETH sends the sale's whole native balance to the beneficiary.
func (s *TieredSale) WithdrawETH(call model.Call) error {
	if err := s.requireEndedByBeneficiary(call); err != nil {
		return err
	}
	amount := s.backend.BalanceOf(s.address)
	if err := s.backend.Transfer(s.address, s.beneficiary, amount); err != nil {
		return fmt.Errorf("withdraw proceeds: %w", err)
	}
	logrus.Infof("sale %s: withdrew %s ETH to %s", s.address.Hex(), model.FormatEther(amount), s.beneficiary.Hex())
	return nil
}

// WithdrawUnsoldTokens sends every token the sale still holds to the
// beneficiary.
func (s *TieredSale) WithdrawUnsoldTokens(call model.Call) error {
	if err := s.requireEndedByBeneficiary(call); err != nil {
		return err
	}
	amount := s.token.BalanceOf(s.address)
	if err := s.token.Transfer(s.address, s.beneficiary, amount); err != nil {
		return fmt.Errorf("withdraw unsold tokens: %w", err)
	}
	logrus.Infof("sale %s: withdrew %s unsold tokens to %s", s.address.Hex(), model.FormatUnits(amount, s.decimals), s.beneficiary.Hex())
	return nil
}

func (s *TieredSale) requireEndedByBeneficiary(call model.Call) error {
	if err := onlyOwner(s.beneficiary, call); err != nil {
		return err
	}
	if !s.Ended() {
		return ErrSaleNotEnded
	}
	return nil
}

func (s *TieredSale) Address() common.Address     { return s.address }
func (s *TieredSale) Beneficiary() common.Address { return s.beneficiary }
func (s *TieredSale) Tier1Price() *big.Int        { return copyInt(s.params.Tier1Price) }
func (s *TieredSale) Tier2Price() *big.Int        { return copyInt(s.params.Tier2Price) }

func (s *TieredSale) TotalForSale() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyInt(s.totalForSale)
}

func (s *TieredSale) TierLimit() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyInt(s.tierLimit)
}

func (s *TieredSale) Sold() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyInt(s.sold)
}

// Remaining returns how many whole tokens can still be sold.
func (s *TieredSale) Remaining() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Sub(s.totalForSale, s.sold)
}

func (s *TieredSale) StartTime() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

func (s *TieredSale) EndTime() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endTime
}

func (s *TieredSale) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

func (s *TieredSale) Status() SaleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case !s.initialized:
		return SaleUninitialized
	case s.ended:
		return SaleEnded
	}
	return SaleActive
}
