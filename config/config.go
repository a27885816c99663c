package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"token-sale-exchange/core/ledger"
	"token-sale-exchange/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	EnvConfigFile = "CONFIG_FILE"
	EnvChainUrl   = "CHAIN_URL"
)

var ErrInvalidConfig = errors.New("invalid config")

type TokenConfig struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Supply   int64  `json:"supply"` // whole tokens
}

type SaleConfig struct {
	Tier1Price     string `json:"tier1Price"` // ether per whole token
	Tier2Price     string `json:"tier2Price"`
	DurationDays   uint64 `json:"durationDays"`
	AllowEarlyEnd  bool   `json:"allowEarlyEnd"`
	AutoInitialize bool   `json:"autoInitialize"`
}

type ExchangeConfig struct {
	InitialPrice      string `json:"initialPrice"` // ether per whole token
	RateBase          int64  `json:"rateBase"`
	UpdatePriceOnSell bool   `json:"updatePriceOnSell"`
	Deposit           string `json:"deposit"` // ether the owner seeds the reserve with
	Stock             int64  `json:"stock"`   // whole tokens moved to the exchange
}

type Config struct {
	ChainURL        string         `json:"chainUrl"`
	TokenAddress    string         `json:"tokenAddress"`
	LedgerAddresses []string       `json:"ledgerAddresses"` // sale and exchange contracts indexed by follow
	DataDir         string         `json:"dataDir"`
	Token           TokenConfig    `json:"token"`
	Sale            SaleConfig     `json:"sale"`
	Exchange        ExchangeConfig `json:"exchange"`
}

func Default() *Config {
	return &Config{
		ChainURL: "https://emerald.oasis.dev",
		Token: TokenConfig{
			Name:     "GiangToken",
			Symbol:   "KHT",
			Decimals: model.CurrencyDecimals,
			Supply:   1000,
		},
		Sale: SaleConfig{
			Tier1Price:     "5",
			Tier2Price:     "10",
			DurationDays:   30,
			AllowEarlyEnd:  true,
			AutoInitialize: true,
		},
		Exchange: ExchangeConfig{
			InitialPrice: "5",
			RateBase:     ledger.DefaultRateBase,
			Deposit:      "10",
			Stock:        250,
		},
	}
}

// Load reads the JSON file at path over the defaults. An empty path falls
// back to CONFIG_FILE; with neither set the defaults are returned. CHAIN_URL
// overrides the chain URL in every case.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		logrus.Infof("loaded config from %s", path)
	}
	if url := os.Getenv(EnvChainUrl); url != "" {
		cfg.ChainURL = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token.Supply <= 0 {
		return fmt.Errorf("%w: token supply must be positive", ErrInvalidConfig)
	}
	if c.TokenAddress != "" && !common.IsHexAddress(c.TokenAddress) {
		return fmt.Errorf("%w: token address %q", ErrInvalidConfig, c.TokenAddress)
	}
	for _, addr := range c.LedgerAddresses {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: ledger address %q", ErrInvalidConfig, addr)
		}
	}
	if len(c.LedgerAddresses) > 0 && c.TokenAddress == "" {
		return fmt.Errorf("%w: ledgerAddresses need tokenAddress", ErrInvalidConfig)
	}
	if _, err := c.SaleParams(); err != nil {
		return err
	}
	if _, err := c.ExchangeParams(); err != nil {
		return err
	}
	if _, err := c.ExchangeDeposit(); err != nil {
		return err
	}
	return nil
}

// Ledgers returns the configured ledger contract addresses.
func (c *Config) Ledgers() []common.Address {
	addrs := make([]common.Address, 0, len(c.LedgerAddresses))
	for _, addr := range c.LedgerAddresses {
		addrs = append(addrs, common.HexToAddress(addr))
	}
	return addrs
}

// TokenSupply is the configured supply in base units.
func (c *Config) TokenSupply() *big.Int {
	return model.ToBaseUnits(big.NewInt(c.Token.Supply), c.Token.Decimals)
}

func (c *Config) SaleParams() (ledger.SaleParams, error) {
	tier1, err := parseEther("sale.tier1Price", c.Sale.Tier1Price)
	if err != nil {
		return ledger.SaleParams{}, err
	}
	tier2, err := parseEther("sale.tier2Price", c.Sale.Tier2Price)
	if err != nil {
		return ledger.SaleParams{}, err
	}
	if tier1.Sign() <= 0 || tier1.Cmp(tier2) >= 0 {
		return ledger.SaleParams{}, fmt.Errorf("%w: %v", ErrInvalidConfig, ledger.ErrInvalidPricing)
	}
	return ledger.SaleParams{
		Tier1Price:     tier1,
		Tier2Price:     tier2,
		Duration:       c.Sale.DurationDays * 24 * 60 * 60,
		AllowEarlyEnd:  c.Sale.AllowEarlyEnd,
		AutoInitialize: c.Sale.AutoInitialize,
	}, nil
}

func (c *Config) ExchangeParams() (ledger.ExchangeParams, error) {
	price, err := parseEther("exchange.initialPrice", c.Exchange.InitialPrice)
	if err != nil {
		return ledger.ExchangeParams{}, err
	}
	if price.Sign() <= 0 {
		return ledger.ExchangeParams{}, fmt.Errorf("%w: %v", ErrInvalidConfig, ledger.ErrInvalidInitialPrice)
	}
	if c.Exchange.RateBase <= 0 {
		return ledger.ExchangeParams{}, fmt.Errorf("%w: %v", ErrInvalidConfig, ledger.ErrInvalidRateBase)
	}
	return ledger.ExchangeParams{
		InitialPrice:      price,
		RateBase:          big.NewInt(c.Exchange.RateBase),
		UpdatePriceOnSell: c.Exchange.UpdatePriceOnSell,
	}, nil
}

func (c *Config) ExchangeDeposit() (*big.Int, error) {
	return parseEther("exchange.deposit", c.Exchange.Deposit)
}

func parseEther(field, value string) (*big.Int, error) {
	amount, err := model.ParseUnits(value, model.CurrencyDecimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidConfig, field, value, err)
	}
	return amount, nil
}
