package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"token-sale-exchange/core/ledger"
	"token-sale-exchange/core/model"

	"github.com/ethereum/go-ethereum/common"
)

func TestDefaultMatchesLedgerDefaults(t *testing.T) {
	cfg := Default()
	sale, err := cfg.SaleParams()
	if err != nil {
		t.Fatalf("SaleParams: %v", err)
	}
	want := ledger.DefaultSaleParams()
	if sale.Tier1Price.Cmp(want.Tier1Price) != 0 || sale.Tier2Price.Cmp(want.Tier2Price) != 0 {
		t.Errorf("tiers = %s/%s, want %s/%s", sale.Tier1Price, sale.Tier2Price, want.Tier1Price, want.Tier2Price)
	}
	if sale.Duration != want.Duration {
		t.Errorf("duration = %d, want %d", sale.Duration, want.Duration)
	}

	ex, err := cfg.ExchangeParams()
	if err != nil {
		t.Fatalf("ExchangeParams: %v", err)
	}
	if ex.InitialPrice.Cmp(model.Ether(5)) != 0 || ex.RateBase.Int64() != ledger.DefaultRateBase {
		t.Errorf("exchange params = %+v", ex)
	}
	if got := cfg.TokenSupply(); got.Cmp(model.Ether(1000)) != 0 {
		t.Errorf("supply = %s, want 1000e18", got)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"sale":{"tier1Price":"0.5","tier2Price":"1.25"},"exchange":{"updatePriceOnSell":true}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvChainUrl, "http://localhost:8545")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ChainURL != "http://localhost:8545" {
		t.Errorf("chain url = %s", cfg.ChainURL)
	}
	sale, _ := cfg.SaleParams()
	if model.FormatEther(sale.Tier1Price) != "0.5" || model.FormatEther(sale.Tier2Price) != "1.25" {
		t.Errorf("tiers = %s/%s", sale.Tier1Price, sale.Tier2Price)
	}
	if !sale.AllowEarlyEnd || sale.Duration != ledger.DefaultSaleDuration {
		t.Errorf("defaults lost: %+v", sale)
	}
	ex, _ := cfg.ExchangeParams()
	if !ex.UpdatePriceOnSell {
		t.Error("updatePriceOnSell not applied")
	}
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"token":{"supply":4000}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token.Supply != 4000 || cfg.Token.Symbol != "KHT" {
		t.Errorf("token = %+v", cfg.Token)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"inverted tiers", `{"sale":{"tier1Price":"10","tier2Price":"5"}}`},
		{"bad price", `{"exchange":{"initialPrice":"five"}}`},
		{"negative deposit", `{"exchange":{"deposit":"-1"}}`},
		{"zero rate base", `{"exchange":{"rateBase":0}}`},
		{"zero supply", `{"token":{"supply":0}}`},
		{"bad token address", `{"tokenAddress":"0x12"}`},
		{"bad ledger address", `{"tokenAddress":"0x5FbDB2315678afecb367f032d93F642f64180aa3","ledgerAddresses":["sale"]}`},
		{"ledgers without token", `{"ledgerAddresses":["0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadLedgerAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"tokenAddress":"0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"ledgerAddresses":["0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512","0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ledgers := cfg.Ledgers()
	if len(ledgers) != 2 || ledgers[1] != common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0") {
		t.Errorf("ledgers = %v", ledgers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
