package matrix

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// needs a local redis instance
func setupGuard(t *testing.T) *TxGuard {
	t.Helper()
	rd := redis.NewClient(&redis.Options{
		Addr: ":6379",
		DB:   0, // use default DB
	})
	if err := rd.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable at :6379: %s", err)
	}
	key := fmt.Sprintf("txguard_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		rd.Del(context.Background(), key)
		rd.Close()
	})
	return NewTxGuard(rd, key)
}

func TestTxGuardClaim(t *testing.T) {
	guard := setupGuard(t)
	ctx := context.Background()

	won, err := guard.Claim(ctx, "tx_1")
	if err != nil {
		t.Fatal(err)
	}
	if !won {
		t.Fatal("first claim should win")
	}
	won, err = guard.Claim(ctx, "tx_1")
	if err != nil {
		t.Fatal(err)
	}
	if won {
		t.Fatal("second claim of the same reference should lose")
	}

	// releasing reopens the reference
	if err := guard.Release(ctx, "tx_1"); err != nil {
		t.Fatal(err)
	}
	won, err = guard.Claim(ctx, "tx_1")
	if err != nil {
		t.Fatal(err)
	}
	if !won {
		t.Fatal("claim after release should win")
	}
}

func TestTxGuardSweep(t *testing.T) {
	guard := setupGuard(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := guard.Claim(ctx, fmt.Sprintf("tx_%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	// nothing is old enough yet
	removed, err := guard.Sweep(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Fatalf("swept %d fresh claims", removed)
	}

	removed, err = guard.Sweep(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 5 {
		t.Fatalf("expected 5 claims swept, got %d", removed)
	}
}
