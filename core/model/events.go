package model

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"token-sale-exchange/utils/generics/must"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	EventTokensPurchased     = "TokensPurchased"
	EventSaleEnded           = "SaleEnded"
	EventTokensBought        = "TokensBought"
	EventTokensSold          = "TokensSold"
	EventEthDepositedByOwner = "EthDepositedByOwner"
	EventEthWithdrawnByOwner = "EthWithdrawnByOwner"
	EventTransfer            = "Transfer"
	EventApproval            = "Approval"
)

const LedgerEventABIJson = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"buyer","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"cost","type":"uint256"}],"name":"TokensPurchased","type":"event"},
{"anonymous":false,"inputs":[],"name":"SaleEnded","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"buyer","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"cost","type":"uint256"}],"name":"TokensBought","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"seller","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"proceeds","type":"uint256"}],"name":"TokensSold","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"owner","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"EthDepositedByOwner","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"owner","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],"name":"EthWithdrawnByOwner","type":"event"}
]`

const ERC20ABIJson = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"from","type":"address"},{"indexed":true,"internalType":"address","name":"to","type":"address"},{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}],"name":"Transfer","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"owner","type":"address"},{"indexed":true,"internalType":"address","name":"spender","type":"address"},{"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}],"name":"Approval","type":"event"},
{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	LedgerEventABI = must.Must(abi.JSON(strings.NewReader(LedgerEventABIJson)))
	ERC20ABI       = must.Must(abi.JSON(strings.NewReader(ERC20ABIJson)))

	TopicsTokensPurchased     = "0x" + Keccak256("TokensPurchased(address,uint256,uint256)")
	TopicsSaleEnded           = "0x" + Keccak256("SaleEnded()")
	TopicsTokensBought        = "0x" + Keccak256("TokensBought(address,uint256,uint256)")
	TopicsTokensSold          = "0x" + Keccak256("TokensSold(address,uint256,uint256)")
	TopicsEthDepositedByOwner = "0x" + Keccak256("EthDepositedByOwner(address,uint256)")
	TopicsEthWithdrawnByOwner = "0x" + Keccak256("EthWithdrawnByOwner(address,uint256)")
	TopicsTransfer            = "0x" + Keccak256("Transfer(address,address,uint256)")
	TopicsApproval            = "0x" + Keccak256("Approval(address,address,uint256)")
)

var (
	ErrUnknownEvent  = errors.New("unknown event")
	ErrTopicMismatch = errors.New("log topics do not match event")
)

// NewEventLog ABI-encodes an event emitted by contract. args follow the
// event's declared input order; indexed inputs must be addresses.
func NewEventLog(parsedAbi abi.ABI, contract common.Address, eventName string, args ...interface{}) (*types.Log, error) {
	event, exists := parsedAbi.Events[eventName]
	if !exists {
		return nil, fmt.Errorf("event '%s' not found: %w", eventName, ErrUnknownEvent)
	}
	if len(args) != len(event.Inputs) {
		return nil, fmt.Errorf("event '%s' takes %d arguments, got %d", eventName, len(event.Inputs), len(args))
	}

	topics := []common.Hash{event.ID}
	var data []interface{}
	for i, input := range event.Inputs {
		if !input.Indexed {
			data = append(data, args[i])
			continue
		}
		addr, ok := args[i].(common.Address)
		if !ok {
			return nil, fmt.Errorf("event '%s' indexed input '%s' is not an address", eventName, input.Name)
		}
		topics = append(topics, common.BytesToHash(addr.Bytes()))
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack event data: %w", err)
	}

	return &types.Log{
		Address: contract,
		Topics:  topics,
		Data:    packed,
	}, nil
}

func ParseEventLog(parsedAbi abi.ABI, eventName string, logData *types.Log) (map[string]interface{}, error) {
	event, exists := parsedAbi.Events[eventName]
	if !exists {
		return nil, fmt.Errorf("event '%s' not found: %w", eventName, ErrUnknownEvent)
	}

	if len(logData.Topics) == 0 {
		return nil, fmt.Errorf("event '%s' log has no topics", eventName)
	}
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(logData.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("event '%s' has %d indexed inputs, log carries %d topics: %w",
			eventName, len(indexed), len(logData.Topics)-1, ErrTopicMismatch)
	}

	eventData := make(map[string]interface{})
	if len(event.Inputs.NonIndexed()) > 0 {
		if err := parsedAbi.UnpackIntoMap(eventData, eventName, logData.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack event data: %w", err)
		}
	}
	for i, topic := range logData.Topics[1:] {
		eventData[indexed[i].Name] = topic
	}

	return eventData, nil
}

// LedgerEvent is the decoded form of any ledger event. Account is the
// buyer, seller or owner; Amount is the whole-token amount for trades and
// the wei amount for deposits and withdrawals; Value is the cost or
// proceeds of a trade.
type LedgerEvent struct {
	Name    string
	Ledger  common.Address
	Account common.Address
	Amount  *big.Int
	Value   *big.Int
}

// EventNameByTopic maps the first topic of a ledger log to its event name.
func EventNameByTopic(topic common.Hash) (string, bool) {
	switch topic.Hex() {
	case TopicsTokensPurchased:
		return EventTokensPurchased, true
	case TopicsSaleEnded:
		return EventSaleEnded, true
	case TopicsTokensBought:
		return EventTokensBought, true
	case TopicsTokensSold:
		return EventTokensSold, true
	case TopicsEthDepositedByOwner:
		return EventEthDepositedByOwner, true
	case TopicsEthWithdrawnByOwner:
		return EventEthWithdrawnByOwner, true
	}
	return "", false
}

func ParseLedgerEvent(logData *types.Log) (*LedgerEvent, error) {
	if len(logData.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	name, ok := EventNameByTopic(logData.Topics[0])
	if !ok {
		return nil, ErrUnknownEvent
	}

	eventData, err := ParseEventLog(LedgerEventABI, name, logData)
	if err != nil {
		return nil, err
	}

	ev := &LedgerEvent{Name: name, Ledger: logData.Address}
	for _, key := range []string{"buyer", "seller", "owner"} {
		if _account, ok := eventData[key].(common.Hash); ok {
			ev.Account = common.BytesToAddress(_account[:])
		}
	}
	if _amount, ok := eventData["amount"].(*big.Int); ok {
		ev.Amount = _amount
	}
	for _, key := range []string{"cost", "proceeds"} {
		if _value, ok := eventData[key].(*big.Int); ok {
			ev.Value = _value
		}
	}

	return ev, nil
}

type TransferEvent struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

func ParseTransferEvent(logData *types.Log) (*TransferEvent, error) {
	eventData, err := ParseEventLog(ERC20ABI, EventTransfer, logData)
	if err != nil {
		return nil, err
	}

	var from, to common.Address
	if _from, ok := eventData["from"].(common.Hash); ok {
		from = common.BytesToAddress(_from[:])
	}
	if _to, ok := eventData["to"].(common.Hash); ok {
		to = common.BytesToAddress(_to[:])
	}
	value, _ := eventData["value"].(*big.Int)

	return &TransferEvent{From: from, To: to, Value: value}, nil
}
