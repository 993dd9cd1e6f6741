package tasks

import (
	"context"
	"fmt"
	"time"
)

func newDailyChallengeTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_challenge")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting daily challenge dispatch...")
		startTime := time.Now()

		report, err := deps.Dispatcher.Run(ctx)
		duration := time.Since(startTime)
		if report != nil {
			log.InfoContext(ctx, "Daily challenge dispatch finished",
				"run_id", report.RunID,
				"delivered", len(report.Delivered),
				"failed", len(report.Failed),
				"duration", duration,
			)
		}
		if err != nil {
			return fmt.Errorf("daily challenge dispatch: %w", err)
		}
		return nil
	}
}
