package main

import (
	"fmt"
	"math/big"
	"time"

	"token-sale-exchange/config"
	"token-sale-exchange/core"
	"token-sale-exchange/core/ledger"
	"token-sale-exchange/core/model"
	"token-sale-exchange/core/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var (
	simDeployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	simBuyer1   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	simBuyer2   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

type simulation struct {
	cfg  *config.Config
	rt   *core.Runtime
	idx  *core.Indexer
	tok  *token.ERC20
	sale *ledger.TieredSale
	ex   *ledger.Exchange
}

// simulate mirrors the deployment scripts on an in-process chain and then
// trades against both ledgers.
func simulate(cfg *config.Config) error {
	es, err := openFreshStore(cfg)
	if err != nil {
		return err
	}
	defer es.Close()

	rt := core.NewRuntime(uint64(time.Now().Unix()))
	idx := core.NewIndexer(rt.BlockNumber(), es)
	rt.Subscribe(idx.HandleNewBlock)

	for _, account := range []common.Address{simDeployer, simBuyer1, simBuyer2} {
		if err := rt.Fund(account, model.Ether(10000)); err != nil {
			return err
		}
	}

	sim := &simulation{cfg: cfg, rt: rt, idx: idx}
	if err := sim.deploy(); err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if err := sim.trade(); err != nil {
		return fmt.Errorf("trade: %w", err)
	}
	sim.report()
	return nil
}

func (s *simulation) deploy() error {
	var err error
	s.tok, err = core.DeployToken(s.rt, simDeployer, s.cfg.Token.Name, s.cfg.Token.Symbol, s.cfg.Token.Decimals, s.cfg.TokenSupply())
	if err != nil {
		return err
	}
	logrus.Infof("%s deployed to: %s", s.cfg.Token.Name, s.tok.Address().Hex())

	saleParams, err := s.cfg.SaleParams()
	if err != nil {
		return err
	}
	s.sale, err = core.DeployTieredSale(s.rt, simDeployer, s.tok, saleParams)
	if err != nil {
		return err
	}
	logrus.Infof("TokenSale deployed to: %s", s.sale.Address().Hex())

	forSale := new(big.Int).Quo(s.tok.TotalSupply(), big.NewInt(2))
	if err := s.transferTokens(simDeployer, s.sale.Address(), forSale); err != nil {
		return err
	}
	if !saleParams.AutoInitialize {
		if _, err := s.rt.Execute(simDeployer, s.sale.Address(), nil, s.sale.Initialize); err != nil {
			return err
		}
	}

	exParams, err := s.cfg.ExchangeParams()
	if err != nil {
		return err
	}
	s.ex, err = core.DeployExchange(s.rt, simDeployer, s.tok, simDeployer, exParams)
	if err != nil {
		return err
	}
	logrus.Infof("Exchange deployed to: %s", s.ex.Address().Hex())

	deposit, err := s.cfg.ExchangeDeposit()
	if err != nil {
		return err
	}
	if deposit.Sign() > 0 {
		if _, err := s.rt.Execute(simDeployer, s.ex.Address(), deposit, s.ex.DepositEthByOwner); err != nil {
			return err
		}
	}
	stock := model.ToBaseUnits(big.NewInt(s.cfg.Exchange.Stock), s.tok.Decimals())
	return s.transferTokens(simDeployer, s.ex.Address(), stock)
}

func (s *simulation) trade() error {
	// buyer1 stays in tier 1, buyer2 crosses into tier 2
	tierLimit := s.sale.TierLimit()
	first := new(big.Int).Sub(tierLimit, big.NewInt(5))
	if first.Sign() <= 0 {
		first = big.NewInt(1)
	}
	if err := s.buyFromSale(simBuyer1, first); err != nil {
		return err
	}
	if err := s.buyFromSale(simBuyer2, big.NewInt(10)); err != nil {
		return err
	}

	if err := s.buyFromExchange(simBuyer1, big.NewInt(2)); err != nil {
		return err
	}
	if err := s.buyFromExchange(simBuyer2, big.NewInt(3)); err != nil {
		return err
	}
	if err := s.sellToExchange(simBuyer1, big.NewInt(1)); err != nil {
		return err
	}

	if _, err := s.rt.Execute(simDeployer, s.sale.Address(), nil, s.sale.EndSale); err != nil {
		return err
	}
	if _, err := s.rt.Execute(simDeployer, s.sale.Address(), nil, s.sale.WithdrawETH); err != nil {
		return err
	}
	_, err := s.rt.Execute(simDeployer, s.sale.Address(), nil, s.sale.WithdrawUnsoldTokens)
	return err
}

func (s *simulation) transferTokens(from, to common.Address, amount *big.Int) error {
	_, err := s.rt.Execute(from, s.tok.Address(), nil, func(call model.Call) error {
		return s.tok.Transfer(call.From, to, amount)
	})
	return err
}

func (s *simulation) buyFromSale(buyer common.Address, amount *big.Int) error {
	cost := s.sale.GetCurrentPrice(amount)
	_, err := s.rt.Execute(buyer, s.sale.Address(), cost, func(call model.Call) error {
		return s.sale.BuyTokens(call, amount)
	})
	return err
}

func (s *simulation) buyFromExchange(buyer common.Address, amount *big.Int) error {
	cost := new(big.Int).Mul(amount, s.ex.GetCurrentCalculatedPrice())
	_, err := s.rt.Execute(buyer, s.ex.Address(), cost, func(call model.Call) error {
		return s.ex.BuyTokens(call, amount)
	})
	return err
}

func (s *simulation) sellToExchange(seller common.Address, amount *big.Int) error {
	baseUnits := model.ToBaseUnits(amount, s.tok.Decimals())
	if _, err := s.rt.Execute(seller, s.tok.Address(), nil, func(call model.Call) error {
		return s.tok.Approve(call.From, s.ex.Address(), baseUnits)
	}); err != nil {
		return err
	}
	_, err := s.rt.Execute(seller, s.ex.Address(), nil, func(call model.Call) error {
		return s.ex.SellTokens(call, amount)
	})
	return err
}

func (s *simulation) report() {
	logrus.Info("---")
	logrus.Infof("sale %s: sold %s of %s, status %s", s.sale.Address().Hex(), s.sale.Sold(), s.sale.TotalForSale(), s.sale.Status())
	logrus.Infof("exchange %s: price %s ETH, reserve %s ETH, stock %s",
		s.ex.Address().Hex(), model.FormatEther(s.ex.CurrentTokenPrice()), model.FormatEther(s.ex.Reserve()), s.ex.Stock())
	logrus.Infof("token %s: %d holders", s.tok.Address().Hex(), s.idx.Holders(s.tok.Address()))

	for _, account := range []common.Address{simBuyer1, simBuyer2} {
		activity := s.idx.Activity(account)
		if activity == nil {
			continue
		}
		logrus.Infof("%s: net %s tokens, spent %s ETH, received %s ETH in %d trades",
			account.Hex(), activity.NetTokens(), model.FormatEther(activity.Spent), model.FormatEther(activity.Received), activity.Trxs)
	}
	logrus.Infof("%d ledger events indexed up to block %d", len(s.idx.Records()), s.idx.LatestBlockNumber())
}
