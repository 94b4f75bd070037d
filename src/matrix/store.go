package matrix

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xclera/matrix-core/src/model"
)

// Store is the persistence contract for the settlement engine. The postgres
// implementation lives in src/postgres; an in-memory implementation backs
// tests and mock mode.
//
// Structural rules the implementations uphold:
//   - members are append-only, their level only ever moves up by one
//   - at most one pending intent per member (enforced at the storage layer,
//     not just by the engine's locking)
//   - ledger entries are append-only and a tx reference settles at most once
type Store interface {
	// GetMember returns ErrMemberNotFound for unknown wallets.
	GetMember(ctx context.Context, wallet model.WalletAddr) (*model.Member, error)

	// CreateMember fails with ErrAlreadyRegistered when the wallet exists and
	// ErrUnknownReferrer when the referrer does not. A nil referrer is only
	// legal for the root bootstrap.
	CreateMember(ctx context.Context, wallet model.WalletAddr, referrer *model.WalletAddr, level uint8, at time.Time) (*model.Member, error)

	// Ancestors returns the referral chain of wallet ordered from immediate
	// referrer to root. The walk is depth-bounded and cycle-checked.
	Ancestors(ctx context.Context, wallet model.WalletAddr) ([]*model.Member, error)

	GetIntent(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error)
	PendingIntent(ctx context.Context, wallet model.WalletAddr) (*model.PaymentIntent, error)

	// CreatePendingIntent fails with ErrIntentAlreadyPending when the member
	// already has an open intent.
	CreatePendingIntent(ctx context.Context, intent *model.PaymentIntent) error

	// ConfirmUpgrade atomically marks the intent confirmed, bumps the member
	// from entry.Level-1 to entry.Level, and appends the ledger entry. Any
	// failure leaves the intent pending. Fails with ErrIntentNotPending when
	// the intent already resolved and ErrInvalidLevelTransition when the
	// member's level moved underneath the intent.
	ConfirmUpgrade(ctx context.Context, intentID uuid.UUID, reference string, entry *model.LedgerEntry) error

	// ConfirmRegistration is the level-1 variant: atomically marks the intent
	// confirmed, creates the member under referrer, and appends the entry.
	ConfirmRegistration(ctx context.Context, intentID uuid.UUID, reference string, member *model.Member, entry *model.LedgerEntry) error

	// FailIntent / ExpireIntent move a pending intent to its terminal state;
	// both fail with ErrIntentNotPending once the intent resolved.
	FailIntent(ctx context.Context, intentID uuid.UUID) error
	ExpireIntent(ctx context.Context, intentID uuid.UUID) error

	// ExpireIntentsBefore expires every pending intent created before cutoff
	// and returns how many it moved.
	ExpireIntentsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// LedgerEntriesFor lists settlements paid to recipient, newest first.
	LedgerEntriesFor(ctx context.Context, recipient model.WalletAddr, limit int) ([]*model.LedgerEntry, error)
}
