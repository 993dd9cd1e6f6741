package tasks

import (
	"context"
	"fmt"
	"time"
)

// newStoreProbeTask pings the store. Whether a failure reconnects or only
// logs is the connection manager's self-heal policy.
func newStoreProbeTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "store_probe")

	return func(ctx context.Context) error {
		startTime := time.Now()
		if err := deps.Prober.Probe(ctx); err != nil {
			return fmt.Errorf("store probe failed: %w", err)
		}
		log.DebugContext(ctx, "Store probe completed", "duration", time.Since(startTime))
		return nil
	}
}
