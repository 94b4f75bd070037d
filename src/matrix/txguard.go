package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TxGuard is the fast-path replay check for on-chain references: a tx hash
// may settle at most one intent. It is backed by a redis sorted set scored
// by claim time so stale claims can be swept. The ledger's unique reference
// index remains the authority; the guard just rejects replays before any
// locking or db work happens.
type TxGuard struct {
	client *redis.Client
	key    string
}

func NewTxGuard(client *redis.Client, key string) *TxGuard {
	return &TxGuard{client: client, key: key}
}

// Claim registers reference and reports whether this caller won it. A false
// return means the reference has already been used for a settlement.
func (g *TxGuard) Claim(ctx context.Context, reference string) (bool, error) {
	added, err := g.client.ZAddArgs(ctx, g.key, redis.ZAddArgs{
		NX:      true,
		Members: []redis.Z{{Member: reference, Score: float64(time.Now().Unix())}},
	}).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

// Release frees a claim whose settlement did not go through, so the caller
// may retry with the same reference.
func (g *TxGuard) Release(ctx context.Context, reference string) error {
	return g.client.ZRem(ctx, g.key, reference).Err()
}

// Sweep drops claims older than cutoff. Confirmed references stay protected
// by the ledger index, so the set only needs to cover in-flight work.
func (g *TxGuard) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd := g.client.ZRemRangeByScore(ctx, g.key, "-inf", fmt.Sprintf("%d", cutoff.Unix()))
	return cmd.Val(), cmd.Err()
}
