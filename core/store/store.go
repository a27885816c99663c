package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"token-sale-exchange/core/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrHeadNotFound = errors.New("indexer head not found in store")
)

// EventStore persists decoded ledger events.
type EventStore interface {
	SaveEvent(rec *model.EventRecord) error
	SaveBlock(head uint64, recs []*model.EventRecord) error
	Events() ([]*model.EventRecord, error)
	EventsByAccount(account common.Address) ([]*model.EventRecord, error)
	SaveHead(blockNumber uint64) error
	GetHead() (uint64, error)
	Close() error
}

// BadgerStore implements EventStore using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens the event index under path. An empty path keeps the
// index in memory and loses it on Close.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	// indexer progress is logged through logrus
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db: db,
	}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Keys:
// Event:           "event:<block>:<logIndex>" -> JSON record
// Account index:   "account:<address>:<block>:<logIndex>" -> event key
// Head:            "indexer:head" -> block number

const (
	eventPrefix   = "event:"
	accountPrefix = "account:"
	headKey       = "indexer:head"
)

func eventKey(block uint64, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%020d:%06d", eventPrefix, block, logIndex))
}

func accountKey(account common.Address, block uint64, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%x:%020d:%06d", accountPrefix, account, block, logIndex))
}

func (s *BadgerStore) SaveEvent(rec *model.EventRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setEvent(txn, rec)
	})
}

// SaveBlock writes the events of one block together with the new head, so a
// crash never leaves a block half indexed.
func (s *BadgerStore) SaveBlock(head uint64, recs []*model.EventRecord) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range recs {
			if err := setEvent(txn, rec); err != nil {
				return err
			}
		}
		return setHead(txn, head)
	})
}

func setEvent(txn *badger.Txn, rec *model.EventRecord) error {
	serialized, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := eventKey(rec.Block, rec.LogIndex)
	if err := txn.Set(key, serialized); err != nil {
		return err
	}

	if rec.Account != (common.Address{}) {
		if err := txn.Set(accountKey(rec.Account, rec.Block, rec.LogIndex), key); err != nil {
			return err
		}
	}
	return nil
}

// Events returns every stored event in block order.
func (s *BadgerStore) Events() ([]*model.EventRecord, error) {
	var records []*model.EventRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(eventPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rec, err := decodeRecord(it.Item())
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// EventsByAccount returns the events whose buyer, seller or owner is account.
func (s *BadgerStore) EventsByAccount(account common.Address) ([]*model.EventRecord, error) {
	var records []*model.EventRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("%s%x:", accountPrefix, account))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(item)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *BadgerStore) SaveHead(blockNumber uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setHead(txn, blockNumber)
	})
}

func setHead(txn *badger.Txn, blockNumber uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], blockNumber)
	return txn.Set([]byte(headKey), buf[:])
}

func (s *BadgerStore) GetHead() (uint64, error) {
	var head uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(headKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrHeadNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			head = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return head, err
}

func decodeRecord(item *badger.Item) (*model.EventRecord, error) {
	var rec model.EventRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
