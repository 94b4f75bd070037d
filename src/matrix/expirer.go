package matrix

import (
	"context"
	"fmt"
	"time"

	"github.com/xclera/matrix-core/src/metrics"
	"go.uber.org/zap"
)

// StartExpirer sweeps stale pending intents on a fixed cadence. The store
// moves them pending -> expired with a compare-and-set, so a sweep racing a
// confirm resolves cleanly to whichever wrote first.
func (e *Engine) StartExpirer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := e.logger.With(zap.String("component", "intent_expirer"))
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping intent expirer, context cancelled")
			return
		case <-ticker.C:
			cutoff := e.now().Add(-e.timeout)
			n, err := e.store.ExpireIntentsBefore(ctx, cutoff)
			if err != nil {
				logger.Error("failed expiring stale intents", zap.Error(err))
				continue
			}
			if n > 0 {
				metrics.RecordIntentsExpired(n)
				logger.Info(fmt.Sprintf("expired %d stale payment intents", n))
			}
			if e.guard != nil {
				// claims for settled references are covered by the ledger
				// index; only in-flight claims need to stay in redis
				if _, err := e.guard.Sweep(ctx, cutoff.Add(-24*time.Hour)); err != nil {
					logger.Warn("failed sweeping tx reference claims", zap.Error(err))
				}
			}
		}
	}
}
