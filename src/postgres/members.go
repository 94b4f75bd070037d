package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/matrix"
	"github.com/xclera/matrix-core/src/model"
)

func GetMember(ctx context.Context, wallet model.WalletAddr) (*model.Member, error) {
	var member *model.Member
	return member, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT wallet, referrer, level, registered_at FROM members WHERE wallet = $1`, string(wallet))
		m, err := scanMember(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(matrix.ErrMemberNotFound, "%s", wallet)
		}
		if err != nil {
			return errors.Wrapf(err, "failed fetching member %s", wallet)
		}
		member = m
		return nil
	})
}

func CreateMember(ctx context.Context, wallet model.WalletAddr, referrer *model.WalletAddr, level uint8, at time.Time) (*model.Member, error) {
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO members(wallet, referrer, level, registered_at) VALUES ($1, $2, $3, $4)`,
			string(wallet), walletOrNil(referrer), int16(level), at.UTC())
		if err != nil {
			return errors.Wrapf(mapConstraintError(err), "failed creating member %s", wallet)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &model.Member{Wallet: wallet, Referrer: referrer, Level: level, RegisteredAt: at.UTC()}, nil
}

// Ancestors fetches the referral chain ordered from immediate referrer to
// root. Depth is capped in the CTE; the resolver double-checks for cycles.
func Ancestors(ctx context.Context, wallet model.WalletAddr) ([]*model.Member, error) {
	var chain []*model.Member
	return chain, DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			WITH RECURSIVE chain AS (
				SELECT m.wallet, m.referrer, m.level, m.registered_at, 1 AS depth
				FROM members m
				WHERE m.wallet = (SELECT referrer FROM members WHERE wallet = $1)
				UNION ALL
				SELECT m.wallet, m.referrer, m.level, m.registered_at, c.depth + 1
				FROM members m JOIN chain c ON m.wallet = c.referrer
				WHERE c.depth < $2
			)
			SELECT wallet, referrer, level, registered_at FROM chain ORDER BY depth`,
			string(wallet), model.MaxReferralDepth)
		if err != nil {
			return errors.Wrapf(err, "failed walking referral chain of %s", wallet)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMember(rows)
			if err != nil {
				return errors.Wrap(err, "failed unmarshalling ancestor row")
			}
			chain = append(chain, m)
		}
		return rows.Err()
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*model.Member, error) {
	var wallet string
	var referrer *string
	var level int16
	var registeredAt time.Time
	if err := row.Scan(&wallet, &referrer, &level, &registeredAt); err != nil {
		return nil, err
	}
	m := &model.Member{
		Wallet:       model.WalletAddr(wallet),
		Level:        uint8(level),
		RegisteredAt: registeredAt,
	}
	if referrer != nil {
		r := model.WalletAddr(*referrer)
		m.Referrer = &r
	}
	return m, nil
}

func walletOrNil(w *model.WalletAddr) *string {
	if w == nil {
		return nil
	}
	s := string(*w)
	return &s
}
