package token

import (
	"errors"
	"math/big"
	"testing"

	"token-sale-exchange/core/model"
	"token-sale-exchange/core/state"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenAddr = common.HexToAddress("0x7000")
	owner     = common.HexToAddress("0x0a")
	alice     = common.HexToAddress("0xa1")
	bob       = common.HexToAddress("0xb0")
)

func newTestToken(t *testing.T) (*ERC20, *state.Bank) {
	t.Helper()
	bank := state.NewBank(state.NewJournal())
	supply := model.ToBaseUnits(big.NewInt(1000), 18)
	tok := New(tokenAddr, "GiangToken", "KHT", 18, supply, owner, bank)
	bank.Commit()
	bank.ClearLogs()
	return tok, bank
}

func TestNewEmitsMintTransfer(t *testing.T) {
	bank := state.NewBank(state.NewJournal())
	tok := New(tokenAddr, "GiangToken", "KHT", 18, big.NewInt(7), owner, bank)
	if bank.LogCount() != 1 {
		t.Fatalf("logs = %d, want 1", bank.LogCount())
	}
	ev, err := model.ParseTransferEvent(bank.LogsSince(0)[0])
	if err != nil {
		t.Fatalf("ParseTransferEvent: %v", err)
	}
	if ev.From != (common.Address{}) || ev.To != owner || ev.Value.Cmp(tok.TotalSupply()) != 0 {
		t.Errorf("mint event = %+v", ev)
	}
}

func TestNewMintsToOwner(t *testing.T) {
	tok, _ := newTestToken(t)
	if got := tok.BalanceOf(owner); got.Cmp(tok.TotalSupply()) != 0 {
		t.Errorf("owner balance = %s, want %s", got, tok.TotalSupply())
	}
	info := tok.Info()
	if info.Holders != 1 || info.Decimals != 18 || info.Symbol != "KHT" {
		t.Errorf("info = %+v", info)
	}
	if got := info.WholeSupply(); got.Int64() != 1000 {
		t.Errorf("whole supply = %s, want 1000", got)
	}
}

func TestTransferUpdatesHolders(t *testing.T) {
	tok, bank := newTestToken(t)

	if err := tok.Transfer(owner, alice, big.NewInt(10)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tok.Info().Holders != 2 {
		t.Errorf("holders = %d, want 2", tok.Info().Holders)
	}
	if err := tok.Transfer(alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tok.Info().Holders != 2 {
		t.Errorf("holders after full move = %d, want 2", tok.Info().Holders)
	}
	if bank.LogCount() != 2 {
		t.Errorf("logs = %d, want 2", bank.LogCount())
	}

	ev, err := model.ParseTransferEvent(bank.LogsSince(1)[0])
	if err != nil {
		t.Fatalf("ParseTransferEvent: %v", err)
	}
	if ev.From != alice || ev.To != bob || ev.Value.Int64() != 10 {
		t.Errorf("transfer event = %+v", ev)
	}
}

func TestTransferErrors(t *testing.T) {
	tok, _ := newTestToken(t)

	if err := tok.Transfer(alice, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("error = %v, want ErrInsufficientBalance", err)
	}
	if err := tok.Transfer(owner, common.Address{}, big.NewInt(1)); !errors.Is(err, ErrInvalidReceiver) {
		t.Errorf("error = %v, want ErrInvalidReceiver", err)
	}
	if err := tok.Transfer(owner, alice, big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("error = %v, want ErrNegativeAmount", err)
	}
	if err := tok.Transfer(alice, bob, new(big.Int)); err != nil {
		t.Errorf("zero transfer error = %v, want nil", err)
	}
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	tok, _ := newTestToken(t)
	tok.Transfer(owner, alice, big.NewInt(100))

	if err := tok.TransferFrom(bob, alice, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("error = %v, want ErrInsufficientAllowance", err)
	}

	if err := tok.Approve(alice, bob, big.NewInt(60)); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := tok.TransferFrom(bob, alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if got := tok.Allowance(alice, bob); got.Int64() != 20 {
		t.Errorf("allowance = %s, want 20", got)
	}
	if got := tok.BalanceOf(bob); got.Int64() != 40 {
		t.Errorf("bob = %s, want 40", got)
	}

	tok.Approve(alice, bob, big.NewInt(1000))
	if err := tok.TransferFrom(bob, alice, bob, big.NewInt(61)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("error = %v, want ErrInsufficientBalance", err)
	}
	if got := tok.Allowance(alice, bob); got.Int64() != 1000 {
		t.Errorf("allowance after failed pull = %s, want 1000", got)
	}
}

func TestRevertRestoresTokenState(t *testing.T) {
	tok, bank := newTestToken(t)

	snap := bank.Snapshot()
	tok.Transfer(owner, alice, big.NewInt(5))
	tok.Approve(alice, bob, big.NewInt(5))
	bank.RevertToSnapshot(snap)

	if got := tok.BalanceOf(alice); got.Sign() != 0 {
		t.Errorf("alice after revert = %s, want 0", got)
	}
	if got := tok.Allowance(alice, bob); got.Sign() != 0 {
		t.Errorf("allowance after revert = %s, want 0", got)
	}
	if tok.Info().Holders != 1 {
		t.Errorf("holders after revert = %d, want 1", tok.Info().Holders)
	}
	if bank.LogCount() != 0 {
		t.Errorf("logs after revert = %d, want 0", bank.LogCount())
	}
}

func TestReceiveHook(t *testing.T) {
	tok, _ := newTestToken(t)

	var seen *big.Int
	tok.SetReceiveHook(alice, func(from common.Address, amount *big.Int) error {
		seen = tok.BalanceOf(alice)
		return nil
	})
	tok.Transfer(owner, alice, big.NewInt(3))
	if seen == nil || seen.Int64() != 3 {
		t.Errorf("hook saw balance %v, want 3", seen)
	}

	hookErr := errors.New("rejected")
	tok.SetReceiveHook(bob, func(common.Address, *big.Int) error { return hookErr })
	if err := tok.Transfer(owner, bob, big.NewInt(1)); !errors.Is(err, hookErr) {
		t.Errorf("error = %v, want hook error", err)
	}

	tok.SetReceiveHook(bob, nil)
	if err := tok.Transfer(owner, bob, big.NewInt(1)); err != nil {
		t.Errorf("after removing hook error = %v", err)
	}
}
