package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/matrix"
	"github.com/xclera/matrix-core/src/model"
)

// ConfirmUpgrade settles an upgrade intent as one transaction: the member row
// is locked and bumped by exactly one level, the intent is confirmed with a
// status compare-and-set, and the ledger entry is appended. Any failure rolls
// the whole settlement back, leaving the intent pending.
func ConfirmUpgrade(ctx context.Context, intentID uuid.UUID, reference string, entry *model.LedgerEntry) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to begin transaction for settlement")
		}
		defer tx.Rollback(ctx)

		var level int16
		row := tx.QueryRow(ctx, `SELECT level FROM members WHERE wallet = $1 FOR UPDATE`, string(entry.Member))
		if err := row.Scan(&level); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.Wrapf(matrix.ErrMemberNotFound, "%s", entry.Member)
			}
			return errors.Wrapf(err, "failed locking member %s", entry.Member)
		}
		if uint8(level)+1 != entry.Level {
			return errors.Wrapf(matrix.ErrInvalidLevelTransition,
				"member %s holds level %d, settlement is for %d", entry.Member, level, entry.Level)
		}

		if err := confirmIntentTx(ctx, tx, intentID, reference); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE members SET level = $2 WHERE wallet = $1`,
			string(entry.Member), int16(entry.Level)); err != nil {
			return errors.Wrapf(err, "failed promoting member %s", entry.Member)
		}
		if err := appendLedgerTx(ctx, tx, entry); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// ConfirmRegistration is the level-1 settlement: member creation takes the
// place of the level bump, in the same transaction.
func ConfirmRegistration(ctx context.Context, intentID uuid.UUID, reference string, member *model.Member, entry *model.LedgerEntry) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to begin transaction for settlement")
		}
		defer tx.Rollback(ctx)

		if err := confirmIntentTx(ctx, tx, intentID, reference); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO members(wallet, referrer, level, registered_at) VALUES ($1, $2, $3, $4)`,
			string(member.Wallet), walletOrNil(member.Referrer), int16(member.Level), member.RegisteredAt.UTC()); err != nil {
			return errors.Wrapf(mapConstraintError(err), "failed creating member %s", member.Wallet)
		}
		if err := appendLedgerTx(ctx, tx, entry); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

func confirmIntentTx(ctx context.Context, tx pgx.Tx, intentID uuid.UUID, reference string) error {
	ct, err := tx.Exec(ctx,
		`UPDATE payment_intents SET status = 'confirmed', reference = $2, resolved_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		intentID, reference, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed confirming intent %s", intentID)
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(matrix.ErrIntentNotPending, "%s", intentID)
	}
	return nil
}

func appendLedgerTx(ctx context.Context, tx pgx.Tx, entry *model.LedgerEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger(id, member, level, upline_recipient, recipient_is_treasury,
			upline_amount, treasury_amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, string(entry.Member), int16(entry.Level), string(entry.UplineRecipient),
		entry.RecipientIsTreasury, int64(entry.UplineAmount), int64(entry.TreasuryAmount),
		entry.Reference, entry.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(mapConstraintError(err), "failed appending ledger entry")
	}
	return nil
}

func LedgerEntriesFor(ctx context.Context, recipient model.WalletAddr, limit int) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	return entries, DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, member, level, upline_recipient, recipient_is_treasury,
			       upline_amount, treasury_amount, reference, created_at
			FROM ledger WHERE upline_recipient = $1
			ORDER BY created_at DESC LIMIT $2`,
			string(recipient), limit)
		if err != nil {
			return errors.Wrapf(err, "failed fetching ledger entries for %s", recipient)
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			var member, uplineRecipient, reference string
			var level int16
			var isTreasury bool
			var uplineAmount, treasuryAmount int64
			var createdAt time.Time
			if err := rows.Scan(&id, &member, &level, &uplineRecipient, &isTreasury,
				&uplineAmount, &treasuryAmount, &reference, &createdAt); err != nil {
				return errors.Wrap(err, "failed unmarshalling ledger row")
			}
			entries = append(entries, &model.LedgerEntry{
				ID:                  id,
				Member:              model.WalletAddr(member),
				Level:               uint8(level),
				UplineRecipient:     model.WalletAddr(uplineRecipient),
				RecipientIsTreasury: isTreasury,
				UplineAmount:        uint64(uplineAmount),
				TreasuryAmount:      uint64(treasuryAmount),
				Reference:           reference,
				CreatedAt:           createdAt,
			})
		}
		return rows.Err()
	})
}
