package matrix

import (
	"context"

	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/model"
)

// RecipientResolution names where the upline share of a settlement goes:
// either a real ancestor or the treasury.
type RecipientResolution struct {
	Wallet     model.WalletAddr
	IsTreasury bool
}

// ResolveUpline walks the referral chain of member from the immediate
// referrer upward and returns the first ancestor already holding targetLevel.
// An exhausted chain resolves to the treasury; that is the documented
// business rule, not a failure.
func ResolveUpline(ctx context.Context, st Store, treasury model.WalletAddr,
	member model.WalletAddr, targetLevel uint8) (RecipientResolution, error) {

	chain, err := st.Ancestors(ctx, member)
	if err != nil {
		return RecipientResolution{}, errors.Wrapf(err, "walking referral chain of %s", member)
	}
	if len(chain) > model.MaxReferralDepth {
		return RecipientResolution{}, errors.Errorf("referral chain of %s exceeds depth %d", member, model.MaxReferralDepth)
	}
	// The graph is acyclic by construction; a repeated wallet means the store
	// is corrupt and must not be walked further.
	seen := make(map[model.WalletAddr]struct{}, len(chain))
	for _, ancestor := range chain {
		if _, dupe := seen[ancestor.Wallet]; dupe {
			return RecipientResolution{}, errors.Errorf("referral cycle detected at %s", ancestor.Wallet)
		}
		seen[ancestor.Wallet] = struct{}{}
		if ancestor.Level >= targetLevel {
			return RecipientResolution{Wallet: ancestor.Wallet}, nil
		}
	}
	return RecipientResolution{Wallet: treasury, IsTreasury: true}, nil
}
