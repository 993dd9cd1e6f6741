// Package challenge relays the daily challenge to every subscriber. Each
// recipient is an independent delivery: one failing recipient never stops
// the others.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/chatlog/internal/ai"
	"github.com/edgard/chatlog/internal/resilience"
)

// Config holds the delivery policy.
type Config struct {
	Level         string
	MaxAttempts   int
	Concurrency   int
	RetryInterval time.Duration
	// Timeout bounds each delivery attempt.
	Timeout time.Duration
}

// Report summarizes one dispatch run.
type Report struct {
	RunID     string
	Text      string
	Delivered []string
	Failed    map[string]error
}

// Dispatcher generates the day's challenge and fans it out.
type Dispatcher struct {
	subs      SubscriberStore
	generator ai.Generator
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(subs SubscriberStore, generator ai.Generator, notifier Notifier, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Dispatcher{
		subs:      subs,
		generator: generator,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "challenge_dispatcher"),
	}
}

// Run sends today's challenge to every subscriber. The returned error joins
// every recipient that still failed after its retries.
func (d *Dispatcher) Run(ctx context.Context) (*Report, error) {
	recipients, err := d.subs.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:  uuid.NewString(),
		Failed: map[string]error{},
	}
	log := d.logger.With("run_id", report.RunID)

	if len(recipients) == 0 {
		log.InfoContext(ctx, "No challenge subscribers, nothing to send")
		return report, nil
	}

	text, err := d.generator.GenerateChallenge(ctx, d.cfg.Level)
	if err != nil {
		log.WarnContext(ctx, "Challenge generation failed, using fallback text", "error", err)
		text = ai.FallbackChallenge(d.cfg.Level)
	}
	report.Text = text

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)

	for _, userID := range recipients {
		delivery := Delivery{
			ID:     report.RunID + ":" + userID,
			UserID: userID,
			Text:   text,
		}
		g.Go(func() error {
			err := d.deliver(ctx, delivery)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[delivery.UserID] = err
				log.WarnContext(ctx, "Challenge delivery failed", "user_id", delivery.UserID, "error", err)
				return nil
			}
			report.Delivered = append(report.Delivered, delivery.UserID)
			return nil
		})
	}
	_ = g.Wait()

	log.InfoContext(ctx, "Challenge dispatch finished",
		"recipients", len(recipients),
		"delivered", len(report.Delivered),
		"failed", len(report.Failed),
	)

	if len(report.Failed) == 0 {
		return report, nil
	}
	errs := make([]error, 0, len(report.Failed))
	for userID, err := range report.Failed {
		errs = append(errs, fmt.Errorf("recipient %s: %w", userID, err))
	}
	return report, errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, delivery Delivery) error {
	cfg := resilience.FixedRetryConfig(d.cfg.MaxAttempts, d.cfg.RetryInterval)
	// Spread the retries of recipients that failed together.
	cfg.RandomFactor = 0.2
	cfg.Retryable = func(err error) bool { return !IsPermanent(err) }
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		d.logger.DebugContext(ctx, "Retrying challenge delivery",
			"delivery_id", delivery.ID,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}

	return resilience.WithRetry(ctx, func(ctx context.Context) error {
		attemptCtx := ctx
		if d.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
			defer cancel()
		}
		return d.notifier.Notify(attemptCtx, delivery)
	}, cfg)
}
