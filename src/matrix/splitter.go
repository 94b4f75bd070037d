package matrix

import "github.com/xclera/matrix-core/src/model"

// SplitFee computes the upline/treasury split for one level purchase.
// Registration charges price + service fee as two flat components; upgrades
// carve TreasuryPercent out of the price, rounding down, with the remainder
// going to the upline. upline + treasury always equals total.
func SplitFee(def model.LevelDefinition) (upline, treasury, total uint64) {
	if def.Number == 1 {
		return def.Price, def.ServiceFee, def.Price + def.ServiceFee
	}
	treasury = def.Price * def.TreasuryPercent / 100
	return def.Price - treasury, treasury, def.Price
}
