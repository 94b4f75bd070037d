package model

import "time"

// MaxLevel is the highest purchasable membership level. The root member is
// seeded at MaxLevel so it qualifies as an upline for every upgrade.
const MaxLevel = 19

// MaxReferralDepth bounds every ancestor-chain walk. The graph is acyclic by
// construction (a referrer must already exist when a member is created), so
// hitting this bound means corrupt data, not a long chain.
const MaxReferralDepth = 512

type Member struct {
	Wallet       WalletAddr
	Referrer     *WalletAddr // nil only for the root member
	Level        uint8
	RegisteredAt time.Time
}
