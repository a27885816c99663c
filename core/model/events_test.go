package model

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestTopicsMatchABI(t *testing.T) {
	tests := []struct {
		name  string
		topic string
	}{
		{EventTokensPurchased, TopicsTokensPurchased},
		{EventSaleEnded, TopicsSaleEnded},
		{EventTokensBought, TopicsTokensBought},
		{EventTokensSold, TopicsTokensSold},
		{EventEthDepositedByOwner, TopicsEthDepositedByOwner},
		{EventEthWithdrawnByOwner, TopicsEthWithdrawnByOwner},
	}
	for _, tt := range tests {
		if got := LedgerEventABI.Events[tt.name].ID.Hex(); got != tt.topic {
			t.Errorf("%s topic = %s, want %s", tt.name, got, tt.topic)
		}
	}
	if got := ERC20ABI.Events[EventTransfer].ID.Hex(); got != TopicsTransfer {
		t.Errorf("Transfer topic = %s, want %s", got, TopicsTransfer)
	}
}

func TestLedgerEventRoundTrip(t *testing.T) {
	ledger := common.HexToAddress("0x1000")
	buyer := common.HexToAddress("0x2000")

	log, err := NewEventLog(LedgerEventABI, ledger, EventTokensBought, buyer, big.NewInt(2), Ether(10))
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	if len(log.Topics) != 2 {
		t.Fatalf("topics = %d, want 2", len(log.Topics))
	}

	ev, err := ParseLedgerEvent(log)
	if err != nil {
		t.Fatalf("ParseLedgerEvent: %v", err)
	}
	if ev.Name != EventTokensBought || ev.Ledger != ledger || ev.Account != buyer {
		t.Errorf("decoded %+v", ev)
	}
	if ev.Amount.Int64() != 2 || ev.Value.Cmp(Ether(10)) != 0 {
		t.Errorf("amount = %s, value = %s", ev.Amount, ev.Value)
	}
}

func TestSaleEndedHasNoData(t *testing.T) {
	log, err := NewEventLog(LedgerEventABI, common.HexToAddress("0x1"), EventSaleEnded)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	if len(log.Data) != 0 {
		t.Errorf("SaleEnded data length = %d, want 0", len(log.Data))
	}
	ev, err := ParseLedgerEvent(log)
	if err != nil {
		t.Fatalf("ParseLedgerEvent: %v", err)
	}
	if ev.Name != EventSaleEnded {
		t.Errorf("name = %s, want %s", ev.Name, EventSaleEnded)
	}
}

func TestNewEventLogRejectsBadArgs(t *testing.T) {
	if _, err := NewEventLog(LedgerEventABI, common.Address{}, "Nope"); err == nil {
		t.Error("expected error for unknown event")
	}
	if _, err := NewEventLog(LedgerEventABI, common.Address{}, EventTokensSold, common.Address{}); err == nil {
		t.Error("expected error for wrong argument count")
	}
	if _, err := NewEventLog(LedgerEventABI, common.Address{}, EventTokensSold, "x", big.NewInt(1), big.NewInt(1)); err == nil {
		t.Error("expected error for non-address indexed input")
	}
}

func TestParseTransferEvent(t *testing.T) {
	from := common.HexToAddress("0xaa")
	to := common.HexToAddress("0xbb")
	log, err := NewEventLog(ERC20ABI, common.HexToAddress("0x1"), EventTransfer, from, to, big.NewInt(77))
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	ev, err := ParseTransferEvent(log)
	if err != nil {
		t.Fatalf("ParseTransferEvent: %v", err)
	}
	if ev.From != from || ev.To != to || ev.Value.Int64() != 77 {
		t.Errorf("decoded %+v", ev)
	}
}

func TestParseRejectsExtraTopics(t *testing.T) {
	ledger := common.HexToAddress("0x1000")
	owner := common.HexToAddress("0x2000")
	extra := common.HexToHash("0xbeef")

	ended, err := NewEventLog(LedgerEventABI, ledger, EventSaleEnded)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	ended.Topics = append(ended.Topics, extra)

	deposited, err := NewEventLog(LedgerEventABI, ledger, EventEthDepositedByOwner, owner, Ether(1))
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	deposited.Topics = append(deposited.Topics, extra, extra)

	// an ERC721 Transfer shares the ERC20 topic but indexes the token id
	nft, err := NewEventLog(ERC20ABI, ledger, EventTransfer, owner, ledger, big.NewInt(1))
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	nft.Topics = append(nft.Topics, common.BigToHash(big.NewInt(1)))
	nft.Data = nil

	for name, log := range map[string]*types.Log{"SaleEnded": ended, "EthDepositedByOwner": deposited} {
		if _, err := ParseLedgerEvent(log); !errors.Is(err, ErrTopicMismatch) {
			t.Errorf("%s with %d topics: err = %v, want ErrTopicMismatch", name, len(log.Topics), err)
		}
	}
	if _, err := ParseTransferEvent(nft); !errors.Is(err, ErrTopicMismatch) {
		t.Errorf("ERC721 Transfer: err = %v, want ErrTopicMismatch", err)
	}
}

func TestParseRejectsMissingTopics(t *testing.T) {
	log, err := NewEventLog(LedgerEventABI, common.HexToAddress("0x1"), EventTokensSold, common.HexToAddress("0x2"), big.NewInt(1), Ether(5))
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	log.Topics = log.Topics[:1]
	if _, err := ParseLedgerEvent(log); !errors.Is(err, ErrTopicMismatch) {
		t.Errorf("err = %v, want ErrTopicMismatch", err)
	}
}
