package matrix

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/model"
)

// MemStore is the in-memory Store used by tests and by mock mode. It upholds
// the same invariants as the postgres store behind a single mutex.
type MemStore struct {
	mu      sync.Mutex
	members map[model.WalletAddr]*model.Member
	intents map[uuid.UUID]*model.PaymentIntent
	pending map[model.WalletAddr]uuid.UUID
	ledger  []*model.LedgerEntry
	refs    map[string]uuid.UUID
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		members: map[model.WalletAddr]*model.Member{},
		intents: map[uuid.UUID]*model.PaymentIntent{},
		pending: map[model.WalletAddr]uuid.UUID{},
		refs:    map[string]uuid.UUID{},
	}
}

func copyMember(m *model.Member) *model.Member {
	c := *m
	if m.Referrer != nil {
		r := *m.Referrer
		c.Referrer = &r
	}
	return &c
}

func copyIntent(in *model.PaymentIntent) *model.PaymentIntent {
	c := *in
	if in.Referrer != nil {
		r := *in.Referrer
		c.Referrer = &r
	}
	if in.Reference != nil {
		ref := *in.Reference
		c.Reference = &ref
	}
	return &c
}

func (s *MemStore) GetMember(ctx context.Context, wallet model.WalletAddr) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[wallet]
	if !ok {
		return nil, errors.Wrapf(ErrMemberNotFound, "%s", wallet)
	}
	return copyMember(m), nil
}

func (s *MemStore) CreateMember(ctx context.Context, wallet model.WalletAddr, referrer *model.WalletAddr, level uint8, at time.Time) (*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createMemberLocked(wallet, referrer, level, at)
}

func (s *MemStore) createMemberLocked(wallet model.WalletAddr, referrer *model.WalletAddr, level uint8, at time.Time) (*model.Member, error) {
	if _, exists := s.members[wallet]; exists {
		return nil, errors.Wrapf(ErrAlreadyRegistered, "%s", wallet)
	}
	if referrer != nil {
		if _, ok := s.members[*referrer]; !ok {
			return nil, errors.Wrapf(ErrUnknownReferrer, "%s", *referrer)
		}
	}
	m := &model.Member{Wallet: wallet, Referrer: referrer, Level: level, RegisteredAt: at}
	s.members[wallet] = m
	return copyMember(m), nil
}

func (s *MemStore) Ancestors(ctx context.Context, wallet model.WalletAddr) ([]*model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[wallet]
	if !ok {
		return nil, errors.Wrapf(ErrMemberNotFound, "%s", wallet)
	}
	var chain []*model.Member
	seen := map[model.WalletAddr]struct{}{wallet: {}}
	for m.Referrer != nil {
		next, ok := s.members[*m.Referrer]
		if !ok {
			return nil, errors.Errorf("referral chain of %s is broken at %s", wallet, *m.Referrer)
		}
		if _, dupe := seen[next.Wallet]; dupe {
			return nil, errors.Errorf("referral cycle detected at %s", next.Wallet)
		}
		if len(chain) >= model.MaxReferralDepth {
			return nil, errors.Errorf("referral chain of %s exceeds depth %d", wallet, model.MaxReferralDepth)
		}
		seen[next.Wallet] = struct{}{}
		chain = append(chain, copyMember(next))
		m = next
	}
	return chain, nil
}

func (s *MemStore) GetIntent(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return nil, errors.Wrapf(ErrIntentNotFound, "%s", id)
	}
	return copyIntent(in), nil
}

func (s *MemStore) PendingIntent(ctx context.Context, wallet model.WalletAddr) (*model.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pending[wallet]
	if !ok {
		return nil, errors.Wrapf(ErrIntentNotFound, "no pending intent for %s", wallet)
	}
	return copyIntent(s.intents[id]), nil
}

func (s *MemStore) CreatePendingIntent(ctx context.Context, intent *model.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, open := s.pending[intent.Member]; open {
		return errors.Wrapf(ErrIntentAlreadyPending, "%s", intent.Member)
	}
	s.intents[intent.ID] = copyIntent(intent)
	s.pending[intent.Member] = intent.ID
	return nil
}

func (s *MemStore) ConfirmUpgrade(ctx context.Context, intentID uuid.UUID, reference string, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, err := s.pendingIntentLocked(intentID)
	if err != nil {
		return err
	}
	if _, used := s.refs[reference]; used {
		return errors.Wrapf(ErrProofMismatch, "reference %s already settled", reference)
	}
	member, ok := s.members[intent.Member]
	if !ok {
		return errors.Wrapf(ErrMemberNotFound, "%s", intent.Member)
	}
	if member.Level+1 != entry.Level {
		return errors.Wrapf(ErrInvalidLevelTransition, "member %s holds level %d, settlement is for %d", member.Wallet, member.Level, entry.Level)
	}

	member.Level = entry.Level
	s.settleLocked(intent, reference, entry)
	return nil
}

func (s *MemStore) ConfirmRegistration(ctx context.Context, intentID uuid.UUID, reference string, member *model.Member, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, err := s.pendingIntentLocked(intentID)
	if err != nil {
		return err
	}
	if _, used := s.refs[reference]; used {
		return errors.Wrapf(ErrProofMismatch, "reference %s already settled", reference)
	}
	if _, err := s.createMemberLocked(member.Wallet, member.Referrer, member.Level, member.RegisteredAt); err != nil {
		return err
	}
	s.settleLocked(intent, reference, entry)
	return nil
}

func (s *MemStore) pendingIntentLocked(intentID uuid.UUID) (*model.PaymentIntent, error) {
	intent, ok := s.intents[intentID]
	if !ok {
		return nil, errors.Wrapf(ErrIntentNotFound, "%s", intentID)
	}
	if intent.Status != model.IntentStatusPending {
		return nil, errors.Wrapf(ErrIntentNotPending, "intent %s is %s", intentID, intent.Status)
	}
	return intent, nil
}

func (s *MemStore) settleLocked(intent *model.PaymentIntent, reference string, entry *model.LedgerEntry) {
	intent.Status = model.IntentStatusConfirmed
	intent.Reference = &reference
	delete(s.pending, intent.Member)
	s.refs[reference] = intent.ID
	c := *entry
	s.ledger = append(s.ledger, &c)
}

func (s *MemStore) FailIntent(ctx context.Context, intentID uuid.UUID) error {
	return s.resolveIntent(intentID, model.IntentStatusFailed)
}

func (s *MemStore) ExpireIntent(ctx context.Context, intentID uuid.UUID) error {
	return s.resolveIntent(intentID, model.IntentStatusExpired)
}

func (s *MemStore) resolveIntent(intentID uuid.UUID, status model.IntentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, err := s.pendingIntentLocked(intentID)
	if err != nil {
		return err
	}
	intent.Status = status
	delete(s.pending, intent.Member)
	return nil
}

func (s *MemStore) ExpireIntentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired int64
	for wallet, id := range s.pending {
		intent := s.intents[id]
		if intent.CreatedAt.Before(cutoff) {
			intent.Status = model.IntentStatusExpired
			delete(s.pending, wallet)
			expired++
		}
	}
	return expired, nil
}

func (s *MemStore) LedgerEntriesFor(ctx context.Context, recipient model.WalletAddr, limit int) ([]*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LedgerEntry
	for _, entry := range s.ledger {
		if entry.UplineRecipient == recipient {
			c := *entry
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
