package ethapi

import (
	"math/big"
	"testing"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		decimals int
		value    *big.Int
		expected uint64
	}{
		// 18-decimal native value of 115 tokens
		{18, new(big.Int).Mul(big.NewInt(115), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)), 115_000_000},
		// 6-decimal token passes through untouched
		{6, big.NewInt(115_000_000), 115_000_000},
		// fewer than 6 decimals scales up
		{2, big.NewInt(11500), 115_000_000},
		// sub-base-unit dust truncates
		{18, big.NewInt(999_999_999_999), 0},
	}
	for i, c := range cases {
		ea := &EthApi{tokenDecimals: c.decimals}
		got, err := ea.toBaseUnits(c.value)
		if err != nil {
			t.Fatalf("case %d: %s", i, err)
		}
		if got != c.expected {
			t.Fatalf("case %d: got %d, expected %d", i, got, c.expected)
		}
	}
}

func TestToBaseUnitsOverflow(t *testing.T) {
	ea := &EthApi{tokenDecimals: 6}
	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	if _, err := ea.toBaseUnits(huge); err == nil {
		t.Fatal("expected overflow rejection")
	}
}
