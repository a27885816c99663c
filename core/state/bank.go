package state

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeValue       = errors.New("negative value")
)

// Bank tracks native-currency balances (in wei) and the logs emitted during
// execution. All mutations are recorded in the journal.
type Bank struct {
	*Journal

	mu       sync.RWMutex
	balances map[common.Address]*big.Int
	logs     []*types.Log
}

func NewBank(journal *Journal) *Bank {
	return &Bank{
		Journal:  journal,
		balances: make(map[common.Address]*big.Int),
	}
}

// BalanceOf returns a copy of the balance held by account.
func (b *Bank) BalanceOf(account common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Fund credits account with freshly created currency, as a genesis
// allocation would.
func (b *Bank) Fund(account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeValue
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setBalance(account, new(big.Int).Add(b.balanceLocked(account), amount))
	return nil
}

// Transfer moves amount wei from one account to another.
func (b *Bank) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeValue
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBalance := b.balanceLocked(from)
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	b.setBalance(from, new(big.Int).Sub(fromBalance, amount))
	b.setBalance(to, new(big.Int).Add(b.balanceLocked(to), amount))
	return nil
}

// AddLog records an emitted event.
func (b *Bank) AddLog(log *types.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, log)
	n := len(b.logs) - 1
	b.Append(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.logs = b.logs[:n]
	})
}

// ClearLogs drops every recorded log. Only call it right after a Commit,
// when no pending undo action refers to the log list.
func (b *Bank) ClearLogs() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = nil
}

// LogCount returns the number of logs emitted so far.
func (b *Bank) LogCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.logs)
}

// LogsSince returns the logs emitted after the first n.
func (b *Bank) LogsSince(n int) []*types.Log {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n >= len(b.logs) {
		return nil
	}
	out := make([]*types.Log, len(b.logs)-n)
	copy(out, b.logs[n:])
	return out
}

func (b *Bank) balanceLocked(account common.Address) *big.Int {
	if bal, ok := b.balances[account]; ok {
		return bal
	}
	return new(big.Int)
}

// setBalance must be called with b.mu held.
func (b *Bank) setBalance(account common.Address, balance *big.Int) {
	prev, existed := b.balances[account]
	b.balances[account] = balance
	b.Append(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existed {
			b.balances[account] = prev
		} else {
			delete(b.balances, account)
		}
	})
}
