package ledger_test

import (
	"errors"
	"math/big"
	"testing"

	"token-sale-exchange/core"
	"token-sale-exchange/core/ledger"
	"token-sale-exchange/core/model"
	"token-sale-exchange/core/token"

	"github.com/ethereum/go-ethereum/common"
)

const genesisTime uint64 = 1700000000

var (
	deployer = common.HexToAddress("0xde")
	alice    = common.HexToAddress("0xa1")
	bob      = common.HexToAddress("0xb0")
)

type fixture struct {
	t   *testing.T
	rt  *core.Runtime
	tok *token.ERC20
}

// newFixture deploys a token with supply whole tokens of the given decimals
// minted to deployer and funds alice and bob with 10000 ether each.
func newFixture(t *testing.T, decimals uint8, supply int64) *fixture {
	t.Helper()
	rt := core.NewRuntime(genesisTime)
	for _, account := range []common.Address{deployer, alice, bob} {
		if err := rt.Fund(account, model.Ether(10000)); err != nil {
			t.Fatalf("Fund: %v", err)
		}
	}
	tok, err := core.DeployToken(rt, deployer, "GiangToken", "KHT", decimals, model.ToBaseUnits(big.NewInt(supply), decimals))
	if err != nil {
		t.Fatalf("DeployToken: %v", err)
	}
	return &fixture{t: t, rt: rt, tok: tok}
}

func (f *fixture) transferTokens(from, to common.Address, whole int64) {
	f.t.Helper()
	_, err := f.rt.Execute(from, f.tok.Address(), nil, func(call model.Call) error {
		return f.tok.Transfer(call.From, to, f.units(whole))
	})
	if err != nil {
		f.t.Fatalf("transfer %d tokens: %v", whole, err)
	}
}

func (f *fixture) approve(owner, spender common.Address, whole int64) {
	f.t.Helper()
	_, err := f.rt.Execute(owner, f.tok.Address(), nil, func(call model.Call) error {
		return f.tok.Approve(call.From, spender, f.units(whole))
	})
	if err != nil {
		f.t.Fatalf("approve: %v", err)
	}
}

// units converts whole tokens to base units of the fixture token.
func (f *fixture) units(whole int64) *big.Int {
	return model.ToBaseUnits(big.NewInt(whole), f.tok.Decimals())
}

// wholeBalance returns the token balance of account in whole tokens.
func (f *fixture) wholeBalance(account common.Address) int64 {
	return model.ToWholeUnits(f.tok.BalanceOf(account), f.tok.Decimals()).Int64()
}

func findEvent(t *testing.T, receipt *model.ChainReceipt, name string) *model.LedgerEvent {
	t.Helper()
	for _, log := range receipt.Logs {
		ev, err := model.ParseLedgerEvent(log)
		if err != nil {
			continue
		}
		if ev.Name == name {
			return ev
		}
	}
	t.Fatalf("event %s not found in receipt", name)
	return nil
}

func requireUnauthorized(t *testing.T, err error, account common.Address) {
	t.Helper()
	var unauthorized *ledger.UnauthorizedAccountError
	if !errors.As(err, &unauthorized) {
		t.Fatalf("err = %v, want UnauthorizedAccountError", err)
	}
	if unauthorized.Account != account {
		t.Errorf("unauthorized account = %s, want %s", unauthorized.Account.Hex(), account.Hex())
	}
}

func ether(n int64) *big.Int { return model.Ether(n) }
