package core

import (
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"token-sale-exchange/core/model"
	"token-sale-exchange/core/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var (
	ErrBlockNumberMismatch = errors.New("block number not match")
)

// Indexer follows the blocks produced by a Runtime or a chain client and
// folds the token and ledger events it sees into per-account and per-ledger
// views.
type Indexer struct {
	mu sync.RWMutex

	latestBlockNumber uint64
	store             store.EventStore

	// nil means every contract is decoded
	watchTokens  map[common.Address]struct{}
	watchLedgers map[common.Address]struct{}

	records      []*model.EventRecord
	activities   map[common.Address]*model.AccountActivity
	ledgers      map[common.Address]*model.LedgerStats
	tokenHolders map[common.Address]map[common.Address]*big.Int
	holders      map[common.Address]int32
}

// NewIndexer creates an indexer expecting the block after latestBlockNumber.
// es may be nil.
func NewIndexer(latestBlockNumber uint64, es store.EventStore) *Indexer {
	return &Indexer{
		latestBlockNumber: latestBlockNumber,
		store:             es,
		activities:        make(map[common.Address]*model.AccountActivity),
		ledgers:           make(map[common.Address]*model.LedgerStats),
		tokenHolders:      make(map[common.Address]map[common.Address]*big.Int),
		holders:           make(map[common.Address]int32),
	}
}

// Watch limits Transfer decoding to tokenAddr and ledger event decoding to
// ledgerAddrs. Logs of other contracts are ignored from the next block on.
func (idx *Indexer) Watch(tokenAddr common.Address, ledgerAddrs ...common.Address) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.watchTokens = map[common.Address]struct{}{tokenAddr: {}}
	idx.watchLedgers = make(map[common.Address]struct{}, len(ledgerAddrs))
	for _, addr := range ledgerAddrs {
		idx.watchLedgers[addr] = struct{}{}
	}
}

// Restore rebuilds the ledger views from the records in the store and
// resumes after the stored head. Token holders are not persisted.
func (idx *Indexer) Restore() error {
	if idx.store == nil {
		return nil
	}
	head, err := idx.store.GetHead()
	if err != nil {
		if errors.Is(err, store.ErrHeadNotFound) {
			return nil
		}
		return err
	}
	records, err := idx.store.Events()
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, rec := range records {
		idx.applyLocked(rec)
	}
	idx.latestBlockNumber = head
	logrus.Infof("indexer restored %d events, head %d", len(records), head)
	return nil
}

type tokenTransfer struct {
	token common.Address
	event *model.TransferEvent
}

// blockChanges holds what one block contributes. Nothing is applied until
// every log of the block has been decoded and the store write succeeded.
type blockChanges struct {
	records   []*model.EventRecord
	transfers []tokenTransfer
}

func (idx *Indexer) HandleNewBlock(block *model.ChainBlock) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	logrus.Debugf("handle block %d", block.Number)

	if idx.latestBlockNumber != block.Number-1 {
		logrus.Warn("block number not match, latest: ", idx.latestBlockNumber, ", current: ", block.Number)
		return ErrBlockNumberMismatch
	}

	changes := &blockChanges{}
	for _, receipt := range block.Receipts {
		idx.collectReceipt(receipt, changes)
	}

	if idx.store != nil {
		if err := idx.store.SaveBlock(block.Number, changes.records); err != nil {
			return err
		}
	}

	for _, tr := range changes.transfers {
		idx.applyTransferLocked(tr.token, tr.event)
	}
	for _, rec := range changes.records {
		idx.applyLocked(rec)
	}
	idx.latestBlockNumber = block.Number
	return nil
}

func (idx *Indexer) watching(set map[common.Address]struct{}, addr common.Address) bool {
	if set == nil {
		return true
	}
	_, ok := set[addr]
	return ok
}

func (idx *Indexer) collectReceipt(receipt *model.ChainReceipt, changes *blockChanges) {
	if !receipt.Succeeded() {
		return
	}
	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 {
			continue
		}
		if log.Topics[0].Hex() == model.TopicsTransfer {
			if !idx.watching(idx.watchTokens, log.Address) {
				continue
			}
			event, err := model.ParseTransferEvent(log)
			if err != nil {
				logrus.Warnf("unpack event %s error: %s", model.EventTransfer, err)
				continue
			}
			changes.transfers = append(changes.transfers, tokenTransfer{token: log.Address, event: event})
			continue
		}
		if _, ok := model.EventNameByTopic(log.Topics[0]); !ok {
			continue
		}
		if !idx.watching(idx.watchLedgers, log.Address) {
			continue
		}

		event, err := model.ParseLedgerEvent(log)
		if err != nil {
			logrus.Warnf("unpack ledger event error: %s", err)
			continue
		}

		eventStr, _ := json.Marshal(event)
		logrus.Infof("handleReceipt hash:%s eventName: %s event: %s", receipt.TxHash.Hex(), event.Name, eventStr)

		changes.records = append(changes.records, newEventRecord(log, event, receipt.Timestamp))
	}
}

func newEventRecord(log *types.Log, event *model.LedgerEvent, timestamp uint64) *model.EventRecord {
	return &model.EventRecord{
		Name:      event.Name,
		Ledger:    event.Ledger,
		Account:   event.Account,
		Amount:    event.Amount,
		Value:     event.Value,
		TxHash:    log.TxHash,
		Block:     log.BlockNumber,
		LogIndex:  log.Index,
		Timestamp: timestamp,
	}
}

func (idx *Indexer) applyLocked(rec *model.EventRecord) {
	idx.records = append(idx.records, rec)

	stats, ok := idx.ledgers[rec.Ledger]
	if !ok {
		stats = model.NewLedgerStats(rec.Ledger)
		idx.ledgers[rec.Ledger] = stats
	}
	stats.Trxs++

	switch rec.Name {
	case model.EventTokensPurchased, model.EventTokensBought:
		activity := idx.activityLocked(rec.Account)
		activity.TokensBought.Add(activity.TokensBought, rec.Amount)
		activity.Spent.Add(activity.Spent, rec.Value)
		activity.Trxs++
		stats.TokensOut.Add(stats.TokensOut, rec.Amount)
		stats.Inflow.Add(stats.Inflow, rec.Value)
	case model.EventTokensSold:
		activity := idx.activityLocked(rec.Account)
		activity.TokensSold.Add(activity.TokensSold, rec.Amount)
		activity.Received.Add(activity.Received, rec.Value)
		activity.Trxs++
		stats.TokensIn.Add(stats.TokensIn, rec.Amount)
		stats.Outflow.Add(stats.Outflow, rec.Value)
	case model.EventEthDepositedByOwner:
		stats.Deposited.Add(stats.Deposited, rec.Amount)
	case model.EventEthWithdrawnByOwner:
		stats.Withdrawn.Add(stats.Withdrawn, rec.Amount)
	case model.EventSaleEnded:
		stats.Ended = true
	}
}

func (idx *Indexer) activityLocked(addr common.Address) *model.AccountActivity {
	activity, ok := idx.activities[addr]
	if !ok {
		activity = model.NewAccountActivity(addr)
		idx.activities[addr] = activity
	}
	return activity
}

func (idx *Indexer) applyTransferLocked(tokenAddr common.Address, event *model.TransferEvent) {
	if event.Value == nil || event.Value.Sign() == 0 {
		return
	}
	if _, ok := idx.tokenHolders[tokenAddr]; !ok {
		idx.tokenHolders[tokenAddr] = make(map[common.Address]*big.Int)
	}

	// mint
	if event.From != (common.Address{}) {
		if idx.subBalance(tokenAddr, event.From, event.Value) {
			idx.holders[tokenAddr]--
		}
	}

	if idx.addBalance(tokenAddr, event.To, event.Value) {
		idx.holders[tokenAddr]++
	}
}

// subBalance reports whether owner stops being a tracked holder. An owner
// whose tokens arrived before the first indexed block has no known balance
// and is left untracked.
func (idx *Indexer) subBalance(tokenAddr, owner common.Address, amount *big.Int) bool {
	fromBalance, ok := idx.tokenHolders[tokenAddr][owner]
	if !ok {
		logrus.Debugf("transfer %s from %s: balance predates the index", tokenAddr.Hex(), owner.Hex())
		return false
	}
	if amount.Cmp(fromBalance) == 1 {
		logrus.Warnf("transfer %s from %s: %s exceeds indexed balance %s, dropping holder",
			tokenAddr.Hex(), owner.Hex(), amount, fromBalance)
		delete(idx.tokenHolders[tokenAddr], owner)
		return fromBalance.Sign() > 0
	}

	fromBalance = new(big.Int).Sub(fromBalance, amount)
	idx.tokenHolders[tokenAddr][owner] = fromBalance

	return fromBalance.Sign() == 0
}

func (idx *Indexer) addBalance(tokenAddr, owner common.Address, amount *big.Int) bool {
	toBalance, ok := idx.tokenHolders[tokenAddr][owner]
	newHolder := !ok || toBalance.Sign() == 0
	if !ok {
		toBalance = new(big.Int)
	}
	idx.tokenHolders[tokenAddr][owner] = new(big.Int).Add(toBalance, amount)
	return newHolder
}

func (idx *Indexer) LatestBlockNumber() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.latestBlockNumber
}

// Records returns the ledger events seen so far, oldest first.
func (idx *Indexer) Records() []*model.EventRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]*model.EventRecord(nil), idx.records...)
}

// Activity returns the trading activity of addr, or nil if it never traded.
func (idx *Indexer) Activity(addr common.Address) *model.AccountActivity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	activity, ok := idx.activities[addr]
	if !ok {
		return nil
	}
	cp := *activity
	cp.TokensBought = new(big.Int).Set(activity.TokensBought)
	cp.TokensSold = new(big.Int).Set(activity.TokensSold)
	cp.Spent = new(big.Int).Set(activity.Spent)
	cp.Received = new(big.Int).Set(activity.Received)
	return &cp
}

// Ledger returns the aggregated events of one ledger, or nil.
func (idx *Indexer) Ledger(addr common.Address) *model.LedgerStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	stats, ok := idx.ledgers[addr]
	if !ok {
		return nil
	}
	cp := *stats
	cp.TokensOut = new(big.Int).Set(stats.TokensOut)
	cp.TokensIn = new(big.Int).Set(stats.TokensIn)
	cp.Inflow = new(big.Int).Set(stats.Inflow)
	cp.Outflow = new(big.Int).Set(stats.Outflow)
	cp.Deposited = new(big.Int).Set(stats.Deposited)
	cp.Withdrawn = new(big.Int).Set(stats.Withdrawn)
	return &cp
}

// Holders returns the number of accounts with a non-zero balance of token,
// counting only accounts whose tokens all arrived in indexed blocks.
func (idx *Indexer) Holders(tokenAddr common.Address) int32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.holders[tokenAddr]
}

// HolderBalance returns the balance of owner as reconstructed from
// Transfer events, in base units.
func (idx *Indexer) HolderBalance(tokenAddr, owner common.Address) *big.Int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if balance, ok := idx.tokenHolders[tokenAddr][owner]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}
