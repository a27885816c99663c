package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"token-sale-exchange/core/model"
	"token-sale-exchange/core/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds for transfer")
	ErrTimestampInPast   = errors.New("timestamp is not after the current block time")
)

// BlockHandler receives every block the runtime produces. Handlers run while
// the runtime is locked and must not execute calls themselves.
type BlockHandler func(block *model.ChainBlock) error

// Runtime executes ledger calls one at a time. Each call is mined in its own
// block: the call value is credited first, then the call runs, and on
// failure every journaled change is reverted.
type Runtime struct {
	mu          sync.Mutex
	bank        *state.Bank
	blockNumber uint64
	timestamp   uint64
	nonces      map[common.Address]uint64
	handlers    []BlockHandler
}

func NewRuntime(genesisTime uint64) *Runtime {
	return &Runtime{
		bank:      state.NewBank(state.NewJournal()),
		timestamp: genesisTime,
		nonces:    make(map[common.Address]uint64),
	}
}

// Bank exposes the native-currency state the ledgers run against.
func (r *Runtime) Bank() *state.Bank {
	return r.bank
}

func (r *Runtime) Subscribe(handler BlockHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Fund allocates currency to account outside of any call.
func (r *Runtime) Fund(account common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bank.Fund(account, amount); err != nil {
		return err
	}
	r.bank.Commit()
	return nil
}

func (r *Runtime) BalanceOf(account common.Address) *big.Int {
	return r.bank.BalanceOf(account)
}

func (r *Runtime) Now() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timestamp
}

func (r *Runtime) BlockNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blockNumber
}

func (r *Runtime) Nonce(account common.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonces[account]
}

// IncreaseTime moves the block clock forward.
func (r *Runtime) IncreaseTime(seconds uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timestamp += seconds
}

// SetNextTimestamp sets the time of the following blocks.
func (r *Runtime) SetNextTimestamp(ts uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts <= r.timestamp {
		return ErrTimestampInPast
	}
	r.timestamp = ts
	return nil
}

// Send transfers native currency between two accounts.
func (r *Runtime) Send(from, to common.Address, value *big.Int) (*model.ChainReceipt, error) {
	return r.Execute(from, to, value, nil)
}

// Execute runs fn as a call from from to to carrying value. The returned
// receipt records the outcome; the error is the revert reason.
func (r *Runtime) Execute(from, to common.Address, value *big.Int, fn func(call model.Call) error) (*model.ChainReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.execLocked(from, to, value, fn)
}

// Deploy runs constructor as a call to the address a contract created by
// from would get, and returns that address.
func (r *Runtime) Deploy(from common.Address, constructor func(call model.Call) error) (common.Address, *model.ChainReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	address := crypto.CreateAddress(from, r.nonces[from])
	receipt, err := r.execLocked(from, address, nil, constructor)
	if err == nil {
		receipt.ContractAddress = address
	}
	return address, receipt, err
}

func (r *Runtime) execLocked(from, to common.Address, value *big.Int, fn func(call model.Call) error) (*model.ChainReceipt, error) {
	if value == nil {
		value = new(big.Int)
	}

	r.blockNumber++
	nonce := r.nonces[from]
	r.nonces[from] = nonce + 1

	tx := &model.ChainTransaction{
		Id:        txHash(from, nonce),
		From:      from,
		To:        to,
		Value:     new(big.Int).Set(value),
		Nonce:     nonce,
		Block:     r.blockNumber,
		Timestamp: r.timestamp,
	}
	call := model.Call{
		From:        from,
		To:          to,
		Value:       new(big.Int).Set(value),
		BlockNumber: r.blockNumber,
		Timestamp:   r.timestamp,
	}

	snapshot := r.bank.Snapshot()
	logStart := r.bank.LogCount()

	var err error
	if terr := r.bank.Transfer(from, to, value); terr != nil {
		err = fmt.Errorf("%w: %v", ErrInsufficientFunds, terr)
	} else if fn != nil {
		err = fn(call)
	}

	receipt := &types.Receipt{
		Type:        types.LegacyTxType,
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Id,
		BlockNumber: new(big.Int).SetUint64(r.blockNumber),
	}
	if err != nil {
		r.bank.RevertToSnapshot(snapshot)
		receipt.Status = types.ReceiptStatusFailed
		logrus.Warnf("call %s from %s to %s reverted: %v", tx.Id.Hex(), from.Hex(), to.Hex(), err)
	} else {
		logs := r.bank.LogsSince(logStart)
		for i, log := range logs {
			log.TxHash = tx.Id
			log.BlockNumber = r.blockNumber
			log.Index = uint(i)
		}
		receipt.Logs = logs
		r.bank.Commit()
		r.bank.ClearLogs()
	}

	chainReceipt := &model.ChainReceipt{Receipt: receipt, Timestamp: r.timestamp, Err: err}
	block := &model.ChainBlock{
		Number:    r.blockNumber,
		Txs:       []*model.ChainTransaction{tx},
		Receipts:  []*model.ChainReceipt{chainReceipt},
		Timestamp: r.timestamp,
	}
	for _, handler := range r.handlers {
		if herr := handler(block); herr != nil {
			logrus.Errorf("HandleNewBlock %d err: %v", block.Number, herr)
		}
	}

	return chainReceipt, err
}

func txHash(from common.Address, nonce uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return model.Keccak256Hash(from.Bytes(), buf[:])
}
