package model

import (
	"math/big"
	"testing"
)

func TestBaseUnitConversion(t *testing.T) {
	tests := []struct {
		whole    int64
		decimals uint8
		base     string
	}{
		{0, 18, "0"},
		{1, 0, "1"},
		{10, 6, "10000000"},
		{1000, 18, "1000000000000000000000"},
	}
	for _, tt := range tests {
		got := ToBaseUnits(big.NewInt(tt.whole), tt.decimals)
		if got.String() != tt.base {
			t.Errorf("ToBaseUnits(%d, %d) = %s, want %s", tt.whole, tt.decimals, got, tt.base)
		}
		back := ToWholeUnits(got, tt.decimals)
		if back.Int64() != tt.whole {
			t.Errorf("ToWholeUnits(%s, %d) = %s, want %d", got, tt.decimals, back, tt.whole)
		}
	}
}

func TestToWholeUnitsTruncates(t *testing.T) {
	base, _ := new(big.Int).SetString("1999999999999999999", 10)
	if got := ToWholeUnits(base, 18); got.Int64() != 1 {
		t.Errorf("ToWholeUnits = %s, want 1", got)
	}
}

func TestWholeCurrencyUnits(t *testing.T) {
	wei := new(big.Int).Add(Ether(100), big.NewInt(1))
	if got := WholeCurrencyUnits(wei); got.Int64() != 100 {
		t.Errorf("WholeCurrencyUnits = %s, want 100", got)
	}
	if got := WholeCurrencyUnits(big.NewInt(999)); got.Sign() != 0 {
		t.Errorf("WholeCurrencyUnits(999 wei) = %s, want 0", got)
	}
}

func TestFormatAndParseUnits(t *testing.T) {
	if got := FormatEther(Ether(5)); got != "5" {
		t.Errorf("FormatEther(5 ether) = %q, want %q", got, "5")
	}
	if got := FormatUnits(big.NewInt(1500000), 6); got != "1.5" {
		t.Errorf("FormatUnits = %q, want %q", got, "1.5")
	}

	got, err := ParseUnits("2.5", 18)
	if err != nil {
		t.Fatalf("ParseUnits: %v", err)
	}
	want := new(big.Int).Div(Ether(5), big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Errorf("ParseUnits(2.5) = %s, want %s", got, want)
	}

	if _, err := ParseUnits("0.001", 2); err == nil {
		t.Error("ParseUnits should reject excess decimals")
	}
	if _, err := ParseUnits("-1", 18); err != ErrNegativeAmount {
		t.Errorf("ParseUnits(-1) error = %v, want ErrNegativeAmount", err)
	}
	if _, err := ParseUnits("abc", 18); err == nil {
		t.Error("ParseUnits should reject garbage")
	}
}
