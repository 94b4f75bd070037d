package matrix

import (
	"testing"

	"github.com/xclera/matrix-core/src/model"
)

func TestRegistrationSplit(t *testing.T) {
	def, err := model.DefaultCatalog().LevelInfo(1)
	if err != nil {
		t.Fatal(err)
	}
	upline, treasury, total := SplitFee(def)
	if upline != 100*model.UsdtDigitMultiplier {
		t.Fatalf("referrer should receive the full 100 USDT price, got %d", upline)
	}
	if treasury != 15*model.UsdtDigitMultiplier {
		t.Fatalf("treasury should receive the 15 USDT service fee, got %d", treasury)
	}
	if total != 115*model.UsdtDigitMultiplier {
		t.Fatalf("registration should cost 115 USDT, got %d", total)
	}
}

func TestUpgradeSplit(t *testing.T) {
	def, err := model.DefaultCatalog().LevelInfo(2)
	if err != nil {
		t.Fatal(err)
	}
	upline, treasury, total := SplitFee(def)
	if treasury != 30*model.UsdtDigitMultiplier {
		t.Fatalf("expected a 30 USDT treasury cut on level 2, got %d", treasury)
	}
	if upline != 120*model.UsdtDigitMultiplier {
		t.Fatalf("expected 120 USDT for the upline on level 2, got %d", upline)
	}
	if total != def.Price {
		t.Fatalf("upgrade total should equal the level price, got %d", total)
	}
}

// Whatever the price, the two shares must account for every base unit.
func TestSplitConservesTotal(t *testing.T) {
	catalog := model.DefaultCatalog()
	for n := uint8(1); n <= model.MaxLevel; n++ {
		def, err := catalog.LevelInfo(n)
		if err != nil {
			t.Fatal(err)
		}
		upline, treasury, total := SplitFee(def)
		if upline+treasury != total {
			t.Fatalf("level %d leaks funds: %d + %d != %d", n, upline, treasury, total)
		}
	}
}

func TestSplitRoundsDownTreasuryShare(t *testing.T) {
	def := model.LevelDefinition{Number: 2, Price: 99, TreasuryPercent: 20}
	upline, treasury, total := SplitFee(def)
	if treasury != 19 {
		t.Fatalf("treasury share of 99 at 20%% should floor to 19, got %d", treasury)
	}
	if upline != 80 {
		t.Fatalf("rounding remainder should go to the upline, got %d", upline)
	}
	if total != 99 {
		t.Fatalf("total changed during the split: %d", total)
	}
}
