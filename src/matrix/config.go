package matrix

import (
	"time"

	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/model"
)

type Config struct {
	ListenAddress   string `yaml:"listen_address"`
	PromPort        string `yaml:"prom_port"`
	HealthCheckPort string `yaml:"health_check_port"`

	PostgresConfig string `yaml:"postgres"`
	RedisAddress   string `yaml:"redis_address"`

	EthRPC        string `yaml:"eth_rpc"`
	TokenDecimals int    `yaml:"token_decimals"`

	TreasuryWallet string `yaml:"treasury_wallet"`
	RootWallet     string `yaml:"root_wallet"`

	IntentTimeoutMinutes int  `yaml:"intent_timeout_minutes"`
	Mock                 bool `yaml:"use_mock"`

	Levels []LevelOverride `yaml:"levels"`
}

// LevelOverride replaces one row of the default level schedule. Amounts are
// whole USDT; they are scaled to base units when the catalog is built.
type LevelOverride struct {
	Level           uint8  `yaml:"level"`
	PriceUsdt       uint64 `yaml:"price_usdt"`
	ServiceFeeUsdt  uint64 `yaml:"service_fee_usdt"`
	TreasuryPercent uint64 `yaml:"treasury_percent"`
}

const defaultIntentTimeout = 30 * time.Minute

func (c Config) IntentTimeout() time.Duration {
	if c.IntentTimeoutMinutes <= 0 {
		return defaultIntentTimeout
	}
	return time.Duration(c.IntentTimeoutMinutes) * time.Minute
}

// Catalog materializes the level price table: the default schedule with any
// configured overrides applied on top.
func (c Config) Catalog() (*model.LevelCatalog, error) {
	defs := model.DefaultLevelDefinitions()
	for _, o := range c.Levels {
		replaced := false
		for i := range defs {
			if defs[i].Number != o.Level {
				continue
			}
			defs[i] = model.LevelDefinition{
				Number:          o.Level,
				Price:           o.PriceUsdt * model.UsdtDigitMultiplier,
				ServiceFee:      o.ServiceFeeUsdt * model.UsdtDigitMultiplier,
				TreasuryPercent: o.TreasuryPercent,
			}
			replaced = true
			break
		}
		if !replaced {
			return nil, errors.Wrapf(model.ErrUnknownLevel, "override for level %d", o.Level)
		}
	}
	return model.NewLevelCatalog(defs)
}
