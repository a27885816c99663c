// Package token provides an in-memory ERC-20 token used as the ledgers'
// fungible-token collaborator.
package token

import (
	"errors"
	"math/big"
	"sync"

	"token-sale-exchange/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrInvalidReceiver       = errors.New("ERC20: transfer to the zero address")
	ErrNegativeAmount        = errors.New("ERC20: negative amount")
)

// Env is the execution environment the token records its mutations and
// events in.
type Env interface {
	Append(undo func())
	AddLog(log *types.Log)
}

// ReceiveHook runs after tokens have been credited to the hooked address.
// It stands in for arbitrary receiver code and may call back into any
// ledger; a non-nil error reverts the transfer.
type ReceiveHook func(from common.Address, amount *big.Int) error

type ERC20 struct {
	address common.Address
	env     Env

	mu         sync.RWMutex
	info       model.TokenInfo
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	hooks      map[common.Address]ReceiveHook
}

// New deploys a token at address and mints the whole initial supply, given
// in base units, to owner.
func New(address common.Address, name, symbol string, decimals uint8, initialSupply *big.Int, owner common.Address, env Env) *ERC20 {
	t := &ERC20{
		address: address,
		env:     env,
		info: model.TokenInfo{
			Name:        name,
			Symbol:      symbol,
			Decimals:    decimals,
			TotalSupply: new(big.Int).Set(initialSupply),
		},
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		hooks:      make(map[common.Address]ReceiveHook),
	}
	if initialSupply.Sign() > 0 {
		t.balances[owner] = new(big.Int).Set(initialSupply)
		t.info.Holders = 1
		if err := t.emit(model.EventTransfer, common.Address{}, owner, new(big.Int).Set(initialSupply)); err != nil {
			logrus.Errorf("token %s mint event: %v", address.Hex(), err)
		}
	}
	logrus.Infof("token %s (%s) deployed at %s, supply %s", name, symbol, address.Hex(), model.FormatUnits(initialSupply, decimals))
	return t
}

func (t *ERC20) Address() common.Address { return t.address }

func (t *ERC20) Decimals() uint8 { return t.info.Decimals }

func (t *ERC20) TotalSupply() *big.Int { return new(big.Int).Set(t.info.TotalSupply) }

// Info returns a snapshot of the token metadata.
func (t *ERC20) Info() model.TokenInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info := t.info
	info.TotalSupply = new(big.Int).Set(t.info.TotalSupply)
	return info
}

func (t *ERC20) BalanceOf(account common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (t *ERC20) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// SetReceiveHook installs fn to run whenever account receives tokens. A nil
// fn removes the hook.
func (t *ERC20) SetReceiveHook(account common.Address, fn ReceiveHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fn == nil {
		delete(t.hooks, account)
		return
	}
	t.hooks[account] = fn
}

// Transfer moves amount base units from the caller to to.
func (t *ERC20) Transfer(from, to common.Address, amount *big.Int) error {
	return t.move(from, to, amount)
}

// Approve sets the amount spender may pull from owner.
func (t *ERC20) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	t.mu.Lock()
	t.setAllowance(owner, spender, new(big.Int).Set(amount))
	t.mu.Unlock()

	return t.emit(model.EventApproval, owner, spender, amount)
}

// TransferFrom moves amount base units from owner to to, spending the
// allowance owner granted spender.
func (t *ERC20) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	t.mu.Lock()
	allowed, ok := t.allowances[owner][spender]
	if !ok || allowed.Cmp(amount) < 0 {
		t.mu.Unlock()
		return ErrInsufficientAllowance
	}
	if bal, ok := t.balances[owner]; !ok || bal.Cmp(amount) < 0 {
		t.mu.Unlock()
		return ErrInsufficientBalance
	}
	t.setAllowance(owner, spender, new(big.Int).Sub(allowed, amount))
	t.mu.Unlock()

	return t.move(owner, to, amount)
}

func (t *ERC20) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if to == (common.Address{}) {
		return ErrInvalidReceiver
	}

	t.mu.Lock()
	fromBalance, ok := t.balances[from]
	if !ok {
		fromBalance = new(big.Int)
	}
	if fromBalance.Cmp(amount) < 0 {
		t.mu.Unlock()
		return ErrInsufficientBalance
	}
	if from != to && amount.Sign() > 0 {
		t.subBalance(from, amount)
		t.addBalance(to, amount)
	}
	hook := t.hooks[to]
	t.mu.Unlock()

	if err := t.emit(model.EventTransfer, from, to, amount); err != nil {
		return err
	}
	if hook != nil {
		return hook(from, amount)
	}
	return nil
}

// subBalance must be called with t.mu held and a sufficient balance.
func (t *ERC20) subBalance(owner common.Address, amount *big.Int) {
	balance := new(big.Int).Sub(t.balances[owner], amount)
	if balance.Sign() == 0 && amount.Sign() > 0 {
		t.setHolders(t.info.Holders - 1)
	}
	t.setBalance(owner, balance)
}

// addBalance must be called with t.mu held.
func (t *ERC20) addBalance(owner common.Address, amount *big.Int) {
	toBalance, ok := t.balances[owner]
	if !ok {
		toBalance = new(big.Int)
	}
	if toBalance.Sign() == 0 && amount.Sign() > 0 {
		t.setHolders(t.info.Holders + 1)
	}
	t.setBalance(owner, new(big.Int).Add(toBalance, amount))
}

func (t *ERC20) setBalance(owner common.Address, balance *big.Int) {
	prev, existed := t.balances[owner]
	t.balances[owner] = balance
	t.record(func() {
		if existed {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
}

func (t *ERC20) setAllowance(owner, spender common.Address, amount *big.Int) {
	if _, ok := t.allowances[owner]; !ok {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	prev, existed := t.allowances[owner][spender]
	t.allowances[owner][spender] = amount
	t.record(func() {
		if existed {
			t.allowances[owner][spender] = prev
		} else {
			delete(t.allowances[owner], spender)
		}
	})
}

func (t *ERC20) setHolders(n int32) {
	prev := t.info.Holders
	t.info.Holders = n
	t.record(func() { t.info.Holders = prev })
}

// record journals an undo action that runs under the token lock.
func (t *ERC20) record(undo func()) {
	if t.env == nil {
		return
	}
	t.env.Append(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		undo()
	})
}

func (t *ERC20) emit(name string, args ...interface{}) error {
	if t.env == nil {
		return nil
	}
	log, err := model.NewEventLog(model.ERC20ABI, t.address, name, args...)
	if err != nil {
		return err
	}
	t.env.AddLog(log)
	return nil
}
