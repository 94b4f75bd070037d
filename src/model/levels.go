package model

import "github.com/pkg/errors"

// UsdtDigitMultiplier converts whole USDT to the non-decimal base units used
// everywhere in the db and on the wire (6 decimals).
const UsdtDigitMultiplier = 1000000

var ErrUnknownLevel = errors.New("unknown level")

// LevelDefinition is one row of the level price table. Level 1 charges
// Price + ServiceFee as two flat components; levels 2..19 charge Price and
// split it TreasuryPercent / remainder between treasury and upline.
type LevelDefinition struct {
	Number          uint8
	Price           uint64
	ServiceFee      uint64
	TreasuryPercent uint64
}

// LevelCatalog is loaded once at startup and read-only afterwards.
type LevelCatalog struct {
	levels map[uint8]LevelDefinition
}

func NewLevelCatalog(defs []LevelDefinition) (*LevelCatalog, error) {
	levels := make(map[uint8]LevelDefinition, MaxLevel)
	for _, d := range defs {
		if d.Number < 1 || d.Number > MaxLevel {
			return nil, errors.Wrapf(ErrUnknownLevel, "level %d out of range", d.Number)
		}
		if _, dupe := levels[d.Number]; dupe {
			return nil, errors.Errorf("duplicate definition for level %d", d.Number)
		}
		if d.Price == 0 {
			return nil, errors.Errorf("level %d has zero price", d.Number)
		}
		levels[d.Number] = d
	}
	for n := uint8(1); n <= MaxLevel; n++ {
		if _, ok := levels[n]; !ok {
			return nil, errors.Errorf("level table is missing level %d", n)
		}
	}
	return &LevelCatalog{levels: levels}, nil
}

// DefaultLevelDefinitions is the standard schedule: registration at 100 USDT
// plus a 15 USDT service fee, then 50n+50 USDT per upgrade with a 20%
// treasury cut. Deployments may override individual rows through config.
func DefaultLevelDefinitions() []LevelDefinition {
	defs := []LevelDefinition{{
		Number:     1,
		Price:      100 * UsdtDigitMultiplier,
		ServiceFee: 15 * UsdtDigitMultiplier,
	}}
	for n := uint8(2); n <= MaxLevel; n++ {
		defs = append(defs, LevelDefinition{
			Number:          n,
			Price:           (uint64(n)*50 + 50) * UsdtDigitMultiplier,
			TreasuryPercent: 20,
		})
	}
	return defs
}

func DefaultCatalog() *LevelCatalog {
	catalog, err := NewLevelCatalog(DefaultLevelDefinitions())
	if err != nil {
		panic(err) // static table, cannot fail
	}
	return catalog
}

func (c *LevelCatalog) LevelInfo(n uint8) (LevelDefinition, error) {
	def, ok := c.levels[n]
	if !ok {
		return LevelDefinition{}, errors.Wrapf(ErrUnknownLevel, "level %d", n)
	}
	return def, nil
}
