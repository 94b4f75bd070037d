package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/matrix"
	"github.com/xclera/matrix-core/src/model"
)

// needs a local dockerized postgres instance
func setupStore(t *testing.T) Store {
	t.Helper()
	ConfigureDockerConnection()
	ctx := context.Background()
	conn, err := GetConnection(ctx)
	if err != nil {
		t.Skipf("postgres unavailable: %s", err)
	}
	conn.Close(ctx)
	if err := EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	DoExecOrDie(ctx, "DELETE FROM ledger")
	DoExecOrDie(ctx, "DELETE FROM payment_intents")
	DoExecOrDie(ctx, "DELETE FROM members")
	return Store{}
}

func pgWallet(n int) model.WalletAddr {
	return model.MustWallet(fmt.Sprintf("0x%040x", n))
}

func seedChain(t *testing.T, st Store, levels []uint8) []model.WalletAddr {
	t.Helper()
	ctx := context.Background()
	wallets := make([]model.WalletAddr, len(levels))
	var prev *model.WalletAddr
	for i, level := range levels {
		w := pgWallet(i + 1)
		if _, err := st.CreateMember(ctx, w, prev, level, time.Now().UTC()); err != nil {
			t.Fatal(err)
		}
		wallets[i] = w
		ref := w
		prev = &ref
	}
	return wallets
}

func pendingIntent(member, recipient model.WalletAddr, level uint8, upline, treasury uint64) *model.PaymentIntent {
	return &model.PaymentIntent{
		ID:             uuid.New(),
		Member:         member,
		TargetLevel:    level,
		Recipient:      recipient,
		UplineAmount:   upline,
		TreasuryAmount: treasury,
		TotalAmount:    upline + treasury,
		Status:         model.IntentStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func entryFor(intent *model.PaymentIntent, reference string) *model.LedgerEntry {
	return &model.LedgerEntry{
		ID:              uuid.New(),
		Member:          intent.Member,
		Level:           intent.TargetLevel,
		UplineRecipient: intent.Recipient,
		UplineAmount:    intent.UplineAmount,
		TreasuryAmount:  intent.TreasuryAmount,
		Reference:       reference,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestMemberRoundtrip(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19, 5, 1})

	m, err := st.GetMember(ctx, wallets[1])
	if err != nil {
		t.Fatal(err)
	}
	if m.Level != 5 || m.Referrer == nil || *m.Referrer != wallets[0] {
		t.Fatalf("read back wrong member: %+v", m)
	}

	if _, err := st.GetMember(ctx, pgWallet(999)); !errors.Is(err, matrix.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	// pk collision maps to the domain error
	if _, err := st.CreateMember(ctx, wallets[2], nil, 1, time.Now().UTC()); !errors.Is(err, matrix.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	// fk violation maps too
	ghost := pgWallet(998)
	if _, err := st.CreateMember(ctx, pgWallet(997), &ghost, 1, time.Now().UTC()); !errors.Is(err, matrix.ErrUnknownReferrer) {
		t.Fatalf("expected ErrUnknownReferrer, got %v", err)
	}
}

func TestAncestorsOrdering(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19, 5, 2, 1})

	chain, err := st.Ancestors(ctx, wallets[3])
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 3 {
		t.Fatalf("expected 3 ancestors, got %d", len(chain))
	}
	// nearest first, root last
	if chain[0].Wallet != wallets[2] || chain[1].Wallet != wallets[1] || chain[2].Wallet != wallets[0] {
		t.Fatalf("ancestors out of order: %v, %v, %v", chain[0].Wallet, chain[1].Wallet, chain[2].Wallet)
	}

	// the root has no ancestors
	chain, err = st.Ancestors(ctx, wallets[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 0 {
		t.Fatalf("root should have no ancestors, got %d", len(chain))
	}
}

func TestOnePendingIntentIndex(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19, 1})

	first := pendingIntent(wallets[1], wallets[0], 2, 120, 30)
	if err := st.CreatePendingIntent(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := pendingIntent(wallets[1], wallets[0], 2, 120, 30)
	if err := st.CreatePendingIntent(ctx, second); !errors.Is(err, matrix.ErrIntentAlreadyPending) {
		t.Fatalf("expected ErrIntentAlreadyPending, got %v", err)
	}

	// resolving the open intent frees the slot
	if err := st.ExpireIntent(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := st.CreatePendingIntent(ctx, second); err != nil {
		t.Fatal(err)
	}
}

func TestConfirmUpgradeIsAtomic(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19, 1})
	member := wallets[1]

	intent := pendingIntent(member, wallets[0], 2, 120, 30)
	if err := st.CreatePendingIntent(ctx, intent); err != nil {
		t.Fatal(err)
	}
	if err := st.ConfirmUpgrade(ctx, intent.ID, "tx_up", entryFor(intent, "tx_up")); err != nil {
		t.Fatal(err)
	}

	m, err := st.GetMember(ctx, member)
	if err != nil {
		t.Fatal(err)
	}
	if m.Level != 2 {
		t.Fatalf("member not promoted, at level %d", m.Level)
	}
	got, err := st.GetIntent(ctx, intent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.IntentStatusConfirmed || got.Reference == nil || *got.Reference != "tx_up" {
		t.Fatalf("intent not resolved: %+v", got)
	}
	earnings, err := st.LedgerEntriesFor(ctx, wallets[0], 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(earnings) != 1 || earnings[0].UplineAmount != 120 {
		t.Fatalf("wrong ledger state: %+v", earnings)
	}

	// the same intent cannot settle twice
	if err := st.ConfirmUpgrade(ctx, intent.ID, "tx_up2", entryFor(intent, "tx_up2")); !errors.Is(err, matrix.ErrIntentNotPending) {
		t.Fatalf("expected ErrIntentNotPending, got %v", err)
	}
}

func TestConfirmUpgradeRejectsStaleLevel(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19, 3})

	// the settlement targets level 2 but the member already moved past it
	intent := pendingIntent(wallets[1], wallets[0], 2, 120, 30)
	if err := st.CreatePendingIntent(ctx, intent); err != nil {
		t.Fatal(err)
	}
	err := st.ConfirmUpgrade(ctx, intent.ID, "tx_stale", entryFor(intent, "tx_stale"))
	if !errors.Is(err, matrix.ErrInvalidLevelTransition) {
		t.Fatalf("expected ErrInvalidLevelTransition, got %v", err)
	}
	// the failed tx must roll everything back
	m, err := st.GetMember(ctx, wallets[1])
	if err != nil {
		t.Fatal(err)
	}
	if m.Level != 3 {
		t.Fatalf("level changed by a rejected settlement: %d", m.Level)
	}
	got, err := st.GetIntent(ctx, intent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.IntentStatusPending {
		t.Fatalf("intent resolved by a rejected settlement: %s", got.Status)
	}
}

func TestConfirmRegistrationCreatesTheMember(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19})
	joiner := pgWallet(50)

	intent := pendingIntent(joiner, wallets[0], 1, 100, 15)
	intent.Referrer = &wallets[0]
	if err := st.CreatePendingIntent(ctx, intent); err != nil {
		t.Fatal(err)
	}
	member := &model.Member{Wallet: joiner, Referrer: &wallets[0], Level: 1, RegisteredAt: time.Now().UTC()}
	if err := st.ConfirmRegistration(ctx, intent.ID, "tx_reg", member, entryFor(intent, "tx_reg")); err != nil {
		t.Fatal(err)
	}

	m, err := st.GetMember(ctx, joiner)
	if err != nil {
		t.Fatal(err)
	}
	if m.Level != 1 || m.Referrer == nil || *m.Referrer != wallets[0] {
		t.Fatalf("registered member wrong: %+v", m)
	}
}

func TestLedgerReferenceIsUnique(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19, 1, 1})

	first := pendingIntent(wallets[1], wallets[0], 2, 120, 30)
	if err := st.CreatePendingIntent(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := st.ConfirmUpgrade(ctx, first.ID, "tx_shared", entryFor(first, "tx_shared")); err != nil {
		t.Fatal(err)
	}

	// a second settlement reusing the reference is a replay
	second := pendingIntent(wallets[2], wallets[0], 2, 120, 30)
	if err := st.CreatePendingIntent(ctx, second); err != nil {
		t.Fatal(err)
	}
	err := st.ConfirmUpgrade(ctx, second.ID, "tx_shared", entryFor(second, "tx_shared"))
	if !errors.Is(err, matrix.ErrProofMismatch) {
		t.Fatalf("expected ErrProofMismatch on a reused reference, got %v", err)
	}
}

func TestExpireIntentsBeforeCutoff(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	wallets := seedChain(t, st, []uint8{19, 1, 1})

	stale := pendingIntent(wallets[1], wallets[0], 2, 120, 30)
	stale.CreatedAt = time.Now().UTC().Add(-time.Hour)
	fresh := pendingIntent(wallets[2], wallets[0], 2, 120, 30)
	for _, intent := range []*model.PaymentIntent{stale, fresh} {
		if err := st.CreatePendingIntent(ctx, intent); err != nil {
			t.Fatal(err)
		}
	}

	expired, err := st.ExpireIntentsBefore(ctx, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired intent, got %d", expired)
	}
	got, err := st.PendingIntent(ctx, wallets[2])
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != fresh.ID {
		t.Fatal("the fresh intent should still be open")
	}
	if _, err := st.PendingIntent(ctx, wallets[1]); !errors.Is(err, matrix.ErrIntentNotFound) {
		t.Fatalf("expected no pending intent after expiry, got %v", err)
	}
}
