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

func CreatePendingIntent(ctx context.Context, intent *model.PaymentIntent) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO payment_intents(id, member, referrer, target_level, recipient,
				recipient_is_treasury, upline_amount, treasury_amount, total_amount,
				status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			intent.ID, string(intent.Member), walletOrNil(intent.Referrer),
			int16(intent.TargetLevel), string(intent.Recipient), intent.RecipientIsTreasury,
			int64(intent.UplineAmount), int64(intent.TreasuryAmount), int64(intent.TotalAmount),
			string(intent.Status), intent.CreatedAt.UTC())
		if err != nil {
			return errors.Wrapf(mapConstraintError(err), "failed recording intent for %s", intent.Member)
		}
		return nil
	})
}

func GetIntent(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	var intent *model.PaymentIntent
	return intent, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, selectIntent+` WHERE id = $1`, id)
		in, err := scanIntent(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(matrix.ErrIntentNotFound, "%s", id)
		}
		if err != nil {
			return errors.Wrapf(err, "failed fetching intent %s", id)
		}
		intent = in
		return nil
	})
}

func PendingIntent(ctx context.Context, wallet model.WalletAddr) (*model.PaymentIntent, error) {
	var intent *model.PaymentIntent
	return intent, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, selectIntent+` WHERE member = $1 AND status = 'pending'`, string(wallet))
		in, err := scanIntent(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(matrix.ErrIntentNotFound, "no pending intent for %s", wallet)
		}
		if err != nil {
			return errors.Wrapf(err, "failed fetching pending intent for %s", wallet)
		}
		intent = in
		return nil
	})
}

// ResolveIntent moves a pending intent to a terminal state with a
// compare-and-set on status; losers of a confirm/expire race get
// ErrIntentNotPending.
func ResolveIntent(ctx context.Context, id uuid.UUID, status model.IntentStatus) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx,
			`UPDATE payment_intents SET status = $2, resolved_at = $3 WHERE id = $1 AND status = 'pending'`,
			id, string(status), time.Now().UTC())
		if err != nil {
			return errors.Wrapf(err, "failed resolving intent %s", id)
		}
		if ct.RowsAffected() == 0 {
			return errors.Wrapf(matrix.ErrIntentNotPending, "%s", id)
		}
		return nil
	})
}

func ExpireIntentsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var expired int64
	return expired, DoQuery(ctx, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx,
			`UPDATE payment_intents SET status = 'expired', resolved_at = $2
			 WHERE status = 'pending' AND created_at < $1`,
			cutoff.UTC(), time.Now().UTC())
		if err != nil {
			return errors.Wrap(err, "failed expiring stale intents")
		}
		expired = ct.RowsAffected()
		return nil
	})
}

const selectIntent = `
	SELECT id, member, referrer, target_level, recipient, recipient_is_treasury,
	       upline_amount, treasury_amount, total_amount, status, reference, created_at
	FROM payment_intents`

func scanIntent(row rowScanner) (*model.PaymentIntent, error) {
	var id uuid.UUID
	var member, recipient, status string
	var referrer, reference *string
	var targetLevel int16
	var isTreasury bool
	var uplineAmount, treasuryAmount, totalAmount int64
	var createdAt time.Time
	if err := row.Scan(&id, &member, &referrer, &targetLevel, &recipient, &isTreasury,
		&uplineAmount, &treasuryAmount, &totalAmount, &status, &reference, &createdAt); err != nil {
		return nil, err
	}
	intent := &model.PaymentIntent{
		ID:                  id,
		Member:              model.WalletAddr(member),
		TargetLevel:         uint8(targetLevel),
		Recipient:           model.WalletAddr(recipient),
		RecipientIsTreasury: isTreasury,
		UplineAmount:        uint64(uplineAmount),
		TreasuryAmount:      uint64(treasuryAmount),
		TotalAmount:         uint64(totalAmount),
		Status:              model.IntentStatus(status),
		Reference:           reference,
		CreatedAt:           createdAt,
	}
	if referrer != nil {
		r := model.WalletAddr(*referrer)
		intent.Referrer = &r
	}
	return intent, nil
}
