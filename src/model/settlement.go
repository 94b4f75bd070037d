package model

import (
	"time"

	"github.com/google/uuid"
)

type IntentStatus string

const ( // needs to match the status check constraint in pg
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusConfirmed IntentStatus = "confirmed"
	IntentStatusFailed    IntentStatus = "failed"
	IntentStatusExpired   IntentStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s IntentStatus) Terminal() bool {
	return s == IntentStatusConfirmed || s == IntentStatusFailed || s == IntentStatusExpired
}

// PaymentIntent is one pending settlement. Recipient and amounts are
// snapshotted when the intent is prepared; confirmation settles against the
// snapshot, never against a re-walk of the referral graph.
type PaymentIntent struct {
	ID          uuid.UUID
	Member      WalletAddr
	Referrer    *WalletAddr // set on registration intents only
	TargetLevel uint8

	Recipient           WalletAddr
	RecipientIsTreasury bool
	UplineAmount        uint64
	TreasuryAmount      uint64
	TotalAmount         uint64

	Status    IntentStatus
	Reference *string // on-chain tx reference, set when resolved
	CreatedAt time.Time
}

// LedgerEntry is the append-only record of a confirmed settlement.
type LedgerEntry struct {
	ID                  uuid.UUID
	Member              WalletAddr
	Level               uint8
	UplineRecipient     WalletAddr
	RecipientIsTreasury bool
	UplineAmount        uint64
	TreasuryAmount      uint64
	Reference           string
	CreatedAt           time.Time
}

// PaymentProof is what the external payment rail reports for an executed
// transaction. The engine consumes it; it never initiates chain calls itself.
type PaymentProof struct {
	Payer     WalletAddr `json:"payer"`
	Recipient WalletAddr `json:"recipient"`
	Amount    uint64     `json:"amount"`
	Reference string     `json:"reference"`
}
