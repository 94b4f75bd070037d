package postgres

import (
	"context"
	_ "embed"
	"time"

	"github.com/google/uuid"
	"github.com/xclera/matrix-core/src/matrix"
	"github.com/xclera/matrix-core/src/model"
)

//go:embed schema.sql
var schema string

// EnsureSchema applies the (idempotent) schema. Run at startup.
func EnsureSchema(ctx context.Context) error {
	return DoExec(ctx, schema)
}

// Store adapts the package-level query functions to the engine's storage
// contract.
type Store struct{}

var _ matrix.Store = Store{}

func NewStore(connString string) Store {
	ConfigurePostgres(connString)
	return Store{}
}

func (Store) GetMember(ctx context.Context, wallet model.WalletAddr) (*model.Member, error) {
	return GetMember(ctx, wallet)
}

func (Store) CreateMember(ctx context.Context, wallet model.WalletAddr, referrer *model.WalletAddr, level uint8, at time.Time) (*model.Member, error) {
	return CreateMember(ctx, wallet, referrer, level, at)
}

func (Store) Ancestors(ctx context.Context, wallet model.WalletAddr) ([]*model.Member, error) {
	return Ancestors(ctx, wallet)
}

func (Store) GetIntent(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	return GetIntent(ctx, id)
}

func (Store) PendingIntent(ctx context.Context, wallet model.WalletAddr) (*model.PaymentIntent, error) {
	return PendingIntent(ctx, wallet)
}

func (Store) CreatePendingIntent(ctx context.Context, intent *model.PaymentIntent) error {
	return CreatePendingIntent(ctx, intent)
}

func (Store) ConfirmUpgrade(ctx context.Context, intentID uuid.UUID, reference string, entry *model.LedgerEntry) error {
	return ConfirmUpgrade(ctx, intentID, reference, entry)
}

func (Store) ConfirmRegistration(ctx context.Context, intentID uuid.UUID, reference string, member *model.Member, entry *model.LedgerEntry) error {
	return ConfirmRegistration(ctx, intentID, reference, member, entry)
}

func (Store) FailIntent(ctx context.Context, intentID uuid.UUID) error {
	return ResolveIntent(ctx, intentID, model.IntentStatusFailed)
}

func (Store) ExpireIntent(ctx context.Context, intentID uuid.UUID) error {
	return ResolveIntent(ctx, intentID, model.IntentStatusExpired)
}

func (Store) ExpireIntentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return ExpireIntentsBefore(ctx, cutoff)
}

func (Store) LedgerEntriesFor(ctx context.Context, recipient model.WalletAddr, limit int) ([]*model.LedgerEntry, error) {
	return LedgerEntriesFor(ctx, recipient, limit)
}
