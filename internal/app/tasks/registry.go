// Package tasks implements the scheduled jobs: the store liveness probe and
// the daily challenge dispatch.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/chatlog/internal/challenge"
	"github.com/edgard/chatlog/internal/config"
)

// ScheduledTaskFunc is the signature of every scheduled task. The context
// is cancelled on shutdown.
type ScheduledTaskFunc func(ctx context.Context) error

// Prober checks store liveness.
type Prober interface {
	Probe(ctx context.Context) error
}

// Dispatcher sends the daily challenge.
type Dispatcher interface {
	Run(ctx context.Context) (*challenge.Report, error)
}

// TaskDeps contains the dependencies of scheduled tasks. Dispatcher may be
// nil when the challenge relay is not configured.
type TaskDeps struct {
	Logger     *slog.Logger
	Prober     Prober
	Dispatcher Dispatcher
}

// RegisterAllTasks returns the task functions keyed by their configuration
// name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	tasks := make(map[string]ScheduledTaskFunc)
	if deps.Prober != nil {
		tasks[config.TaskStoreProbe] = newStoreProbeTask(deps)
	}
	if deps.Dispatcher != nil {
		tasks[config.TaskDailyChallenge] = newDailyChallengeTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
