package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is the execution context handed to a ledger operation. Value has
// already been credited to To when the operation starts.
type Call struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	BlockNumber uint64
	Timestamp   uint64
}

type ChainBlock struct {
	Number    uint64
	Txs       []*ChainTransaction
	Receipts  []*ChainReceipt
	Timestamp uint64
}

type ChainTransaction struct {
	Id        common.Hash
	From      common.Address
	To        common.Address
	Value     *big.Int
	Nonce     uint64
	Block     uint64
	Idx       uint32
	Timestamp uint64
}

type ChainReceipt struct {
	*types.Receipt
	Timestamp uint64
	// Err is the revert reason of a failed call, nil on success.
	Err error
}

func (r *ChainReceipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}
