package matrix

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/metrics"
	"github.com/xclera/matrix-core/src/model"
	"go.uber.org/zap"
)

// PaymentVerifier re-derives a payment proof from its on-chain reference.
// The engine treats it as an external collaborator: optional, and always
// consulted before the per-member critical section is entered.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string) (*model.PaymentProof, error)
}

// Engine orchestrates the matrix settlement flow: it validates registration
// and upgrade requests, snapshots the payout plan into a payment intent, and
// on confirmed payment atomically promotes the member and writes the ledger.
// It is the only component that moves a member's level.
type Engine struct {
	store    Store
	catalog  *model.LevelCatalog
	treasury model.WalletAddr
	root     model.WalletAddr
	guard    *TxGuard
	verifier PaymentVerifier
	timeout  time.Duration
	locks    *memberLocks
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine wires the engine. guard and verifier may be nil; the db layer's
// unique indexes and the caller's proof remain authoritative without them.
func NewEngine(cfg Config, store Store, guard *TxGuard, verifier PaymentVerifier, logger *zap.Logger) (*Engine, error) {
	treasury, err := model.NormalizeWallet(cfg.TreasuryWallet)
	if err != nil {
		return nil, errors.Wrap(err, "bad treasury_wallet")
	}
	root, err := model.NormalizeWallet(cfg.RootWallet)
	if err != nil {
		return nil, errors.Wrap(err, "bad root_wallet")
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, errors.Wrap(err, "building level catalog")
	}
	return &Engine{
		store:    store,
		catalog:  catalog,
		treasury: treasury,
		root:     root,
		guard:    guard,
		verifier: verifier,
		timeout:  cfg.IntentTimeout(),
		locks:    newMemberLocks(),
		logger:   logger.With(zap.String("component", "settlement_engine")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureRoot bootstraps the root member at the maximum level. Called once at
// startup; a root that already exists is left untouched.
func (e *Engine) EnsureRoot(ctx context.Context) error {
	if _, err := e.store.GetMember(ctx, e.root); err == nil {
		return nil
	} else if !errors.Is(err, ErrMemberNotFound) {
		return err
	}
	if _, err := e.store.CreateMember(ctx, e.root, nil, model.MaxLevel, e.now()); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return nil // lost a startup race, root exists
		}
		return errors.Wrap(err, "bootstrapping root member")
	}
	e.logger.Info("bootstrapped root member", zap.String("wallet", string(e.root)), zap.Uint8("level", model.MaxLevel))
	return nil
}

func (e *Engine) Treasury() model.WalletAddr { return e.treasury }

type PrepareRequest struct {
	Member      model.WalletAddr
	Referrer    *model.WalletAddr // required for registration, rejected for upgrades
	TargetLevel *uint8            // defaults to current level + 1
}

// Prepare validates the request and records a pending payment intent holding
// the resolved recipient and amounts. Exactly one intent can be open per
// member; concurrent calls for the same member are serialized.
func (e *Engine) Prepare(ctx context.Context, req PrepareRequest) (*model.PaymentIntent, error) {
	unlock := e.locks.Lock(req.Member)
	defer unlock()

	member, err := e.store.GetMember(ctx, req.Member)
	if errors.Is(err, ErrMemberNotFound) {
		return e.prepareRegistration(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return e.prepareUpgrade(ctx, member, req)
}

func (e *Engine) prepareRegistration(ctx context.Context, req PrepareRequest) (*model.PaymentIntent, error) {
	if req.TargetLevel != nil && *req.TargetLevel != 1 {
		return nil, errors.Wrapf(ErrInvalidLevelTransition, "unregistered member %s can only purchase level 1", req.Member)
	}
	if req.Referrer == nil {
		return nil, errors.Wrap(ErrUnknownReferrer, "registration requires a referrer")
	}
	if *req.Referrer == req.Member {
		return nil, errors.Wrap(ErrUnknownReferrer, "members cannot refer themselves")
	}
	referrer, err := e.store.GetMember(ctx, *req.Referrer)
	if errors.Is(err, ErrMemberNotFound) {
		return nil, errors.Wrapf(ErrUnknownReferrer, "%s", *req.Referrer)
	}
	if err != nil {
		return nil, err
	}

	def, err := e.catalog.LevelInfo(1)
	if err != nil {
		return nil, err
	}
	uplineAmount, treasuryAmount, total := SplitFee(def)
	intent := &model.PaymentIntent{
		ID:             uuid.New(),
		Member:         req.Member,
		Referrer:       &referrer.Wallet,
		TargetLevel:    1,
		Recipient:      referrer.Wallet,
		UplineAmount:   uplineAmount,
		TreasuryAmount: treasuryAmount,
		TotalAmount:    total,
		Status:         model.IntentStatusPending,
		CreatedAt:      e.now(),
	}
	if err := e.store.CreatePendingIntent(ctx, intent); err != nil {
		return nil, err
	}
	metrics.RecordIntentPrepared("registration")
	e.logger.Info("prepared registration intent",
		zap.String("member", string(req.Member)),
		zap.String("referrer", string(referrer.Wallet)),
		zap.String("intent", intent.ID.String()),
		zap.Uint64("total", total))
	return intent, nil
}

func (e *Engine) prepareUpgrade(ctx context.Context, member *model.Member, req PrepareRequest) (*model.PaymentIntent, error) {
	if req.Referrer != nil {
		return nil, errors.Wrapf(ErrAlreadyRegistered, "%s", member.Wallet)
	}
	target := member.Level + 1
	if req.TargetLevel != nil {
		target = *req.TargetLevel
	}
	if target != member.Level+1 {
		return nil, errors.Wrapf(ErrInvalidLevelTransition, "member %s holds level %d, requested %d", member.Wallet, member.Level, target)
	}
	def, err := e.catalog.LevelInfo(target)
	if err != nil {
		return nil, err
	}

	resolution, err := ResolveUpline(ctx, e.store, e.treasury, member.Wallet, target)
	if err != nil {
		return nil, err
	}
	uplineAmount, treasuryAmount, total := SplitFee(def)
	intent := &model.PaymentIntent{
		ID:                  uuid.New(),
		Member:              member.Wallet,
		TargetLevel:         target,
		Recipient:           resolution.Wallet,
		RecipientIsTreasury: resolution.IsTreasury,
		UplineAmount:        uplineAmount,
		TreasuryAmount:      treasuryAmount,
		TotalAmount:         total,
		Status:              model.IntentStatusPending,
		CreatedAt:           e.now(),
	}
	if err := e.store.CreatePendingIntent(ctx, intent); err != nil {
		return nil, err
	}
	metrics.RecordIntentPrepared("upgrade")
	e.logger.Info("prepared upgrade intent",
		zap.String("member", string(member.Wallet)),
		zap.Uint8("target_level", target),
		zap.String("recipient", string(resolution.Wallet)),
		zap.Bool("treasury", resolution.IsTreasury),
		zap.String("intent", intent.ID.String()))
	return intent, nil
}

// Confirm reconciles a reported payment against the prepared intent and, if
// it matches, settles in one atomic unit: intent confirmed, member promoted
// (or created, for registrations), ledger entry appended. A mismatched proof
// leaves the intent pending and retryable.
func (e *Engine) Confirm(ctx context.Context, intentID uuid.UUID, proof model.PaymentProof) (*model.LedgerEntry, uint8, error) {
	intent, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, 0, err
	}
	if err := checkProof(intent, proof); err != nil {
		metrics.RecordConfirmFailure("proof_mismatch")
		return nil, 0, err
	}

	// Chain verification is blocking I/O; it runs before the member lock so
	// the critical section stays short.
	if e.verifier != nil {
		onchain, err := e.verifier.VerifyPayment(ctx, proof.Reference)
		if err != nil {
			metrics.RecordConfirmFailure("chain_verification")
			return nil, 0, errors.Wrapf(err, "verifying payment %s on chain", proof.Reference)
		}
		if err := checkProof(intent, *onchain); err != nil {
			metrics.RecordConfirmFailure("proof_mismatch")
			return nil, 0, errors.Wrap(err, "on-chain payment differs from submitted proof")
		}
	}

	claimed := false
	if e.guard != nil {
		won, err := e.guard.Claim(ctx, proof.Reference)
		if err != nil {
			return nil, 0, errors.Wrap(err, "claiming tx reference")
		}
		if !won {
			// A retry of an already-settled intent lands here; report it the
			// same way a lost confirm/expire race is reported.
			if cur, gerr := e.store.GetIntent(ctx, intentID); gerr == nil && cur.Status.Terminal() {
				return nil, 0, errors.Wrapf(ErrIntentNotPending, "intent %s is %s", intentID, cur.Status)
			}
			metrics.RecordConfirmFailure("reference_replay")
			return nil, 0, errors.Wrapf(ErrProofMismatch, "reference %s already claimed", proof.Reference)
		}
		claimed = true
	}

	unlock := e.locks.Lock(intent.Member)
	defer unlock()

	entry, newLevel, err := e.confirmLocked(ctx, intentID, proof)
	if err != nil && claimed {
		if rerr := e.guard.Release(ctx, proof.Reference); rerr != nil {
			e.logger.Warn("failed releasing tx reference claim", zap.String("reference", proof.Reference), zap.Error(rerr))
		}
	}
	return entry, newLevel, err
}

func (e *Engine) confirmLocked(ctx context.Context, intentID uuid.UUID, proof model.PaymentProof) (*model.LedgerEntry, uint8, error) {
	// Re-read under the lock; the intent may have expired or confirmed since
	// the pre-lock validation.
	intent, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, 0, err
	}
	if intent.Status != model.IntentStatusPending {
		metrics.RecordConfirmFailure("not_pending")
		return nil, 0, errors.Wrapf(ErrIntentNotPending, "intent %s is %s", intentID, intent.Status)
	}

	entry := &model.LedgerEntry{
		ID:                  uuid.New(),
		Member:              intent.Member,
		Level:               intent.TargetLevel,
		UplineRecipient:     intent.Recipient,
		RecipientIsTreasury: intent.RecipientIsTreasury,
		UplineAmount:        intent.UplineAmount,
		TreasuryAmount:      intent.TreasuryAmount,
		Reference:           proof.Reference,
		CreatedAt:           e.now(),
	}
	if intent.TargetLevel == 1 {
		member := &model.Member{
			Wallet:       intent.Member,
			Referrer:     intent.Referrer,
			Level:        1,
			RegisteredAt: e.now(),
		}
		err = e.store.ConfirmRegistration(ctx, intentID, proof.Reference, member, entry)
	} else {
		err = e.store.ConfirmUpgrade(ctx, intentID, proof.Reference, entry)
	}
	if err != nil {
		return nil, 0, err
	}

	metrics.RecordSettlement(entry.UplineAmount, entry.TreasuryAmount, entry.RecipientIsTreasury)
	e.logger.Info("settlement confirmed",
		zap.String("member", string(intent.Member)),
		zap.Uint8("level", intent.TargetLevel),
		zap.String("recipient", string(intent.Recipient)),
		zap.Uint64("upline_amount", entry.UplineAmount),
		zap.Uint64("treasury_amount", entry.TreasuryAmount),
		zap.String("reference", proof.Reference))
	return entry, intent.TargetLevel, nil
}

// checkProof matches a reported payment against the intent snapshot. An
// overpayment settles; a short payment never does.
func checkProof(intent *model.PaymentIntent, proof model.PaymentProof) error {
	if proof.Reference == "" {
		return errors.Wrap(ErrProofMismatch, "missing tx reference")
	}
	if proof.Payer != intent.Member {
		return errors.Wrapf(ErrProofMismatch, "payer %s, expected %s", proof.Payer, intent.Member)
	}
	if proof.Recipient != intent.Recipient {
		return errors.Wrapf(ErrProofMismatch, "recipient %s, expected %s", proof.Recipient, intent.Recipient)
	}
	if proof.Amount < intent.TotalAmount {
		return errors.Wrapf(ErrProofMismatch, "paid %d of %d", proof.Amount, intent.TotalAmount)
	}
	return nil
}

// Expire abandons a stuck pending intent so the member can prepare again.
// Racing a concurrent Confirm is safe: both are serialized per member and
// the loser observes ErrIntentNotPending.
func (e *Engine) Expire(ctx context.Context, intentID uuid.UUID) error {
	intent, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	unlock := e.locks.Lock(intent.Member)
	defer unlock()

	if err := e.store.ExpireIntent(ctx, intentID); err != nil {
		return err
	}
	metrics.RecordIntentsExpired(1)
	e.logger.Info("expired payment intent", zap.String("intent", intentID.String()), zap.String("member", string(intent.Member)))
	return nil
}

// Fail abandons a pending intent whose payment will not happen, e.g. the
// member cancelled in the wallet. Frees the member's pending slot.
func (e *Engine) Fail(ctx context.Context, intentID uuid.UUID) error {
	intent, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	unlock := e.locks.Lock(intent.Member)
	defer unlock()

	if err := e.store.FailIntent(ctx, intentID); err != nil {
		return err
	}
	metrics.RecordIntentsFailed()
	e.logger.Info("failed payment intent", zap.String("intent", intentID.String()), zap.String("member", string(intent.Member)))
	return nil
}
