package core

import (
	"math/big"

	"token-sale-exchange/core/ledger"
	"token-sale-exchange/core/model"
	"token-sale-exchange/core/token"

	"github.com/ethereum/go-ethereum/common"
)

// DeployToken creates a token whose whole supply, in base units, is minted
// to the deployer.
func DeployToken(rt *Runtime, deployer common.Address, name, symbol string, decimals uint8, supply *big.Int) (*token.ERC20, error) {
	var tok *token.ERC20
	_, _, err := rt.Deploy(deployer, func(call model.Call) error {
		tok = token.New(call.To, name, symbol, decimals, supply, call.From, rt.Bank())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// DeployTieredSale deploys a sale whose beneficiary is the deployer and, when
// params.AutoInitialize is set, initializes it in the same call.
func DeployTieredSale(rt *Runtime, beneficiary common.Address, tok ledger.Token, params ledger.SaleParams) (*ledger.TieredSale, error) {
	var sale *ledger.TieredSale
	_, _, err := rt.Deploy(beneficiary, func(call model.Call) error {
		s, err := ledger.NewTieredSale(call.To, tok, call.From, rt.Bank(), params)
		if err != nil {
			return err
		}
		if params.AutoInitialize {
			if err := s.Initialize(call); err != nil {
				return err
			}
		}
		sale = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// DeployExchange deploys an exchange owned by owner.
func DeployExchange(rt *Runtime, deployer common.Address, tok ledger.Token, owner common.Address, params ledger.ExchangeParams) (*ledger.Exchange, error) {
	var exchange *ledger.Exchange
	_, _, err := rt.Deploy(deployer, func(call model.Call) error {
		e, err := ledger.NewExchange(call.To, tok, owner, rt.Bank(), params)
		if err != nil {
			return err
		}
		exchange = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exchange, nil
}
