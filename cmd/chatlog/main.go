// Package main contains the entrypoint for the chatlog service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/edgard/chatlog/internal/ai"
	"github.com/edgard/chatlog/internal/app"
	"github.com/edgard/chatlog/internal/app/tasks"
	"github.com/edgard/chatlog/internal/challenge"
	"github.com/edgard/chatlog/internal/config"
	"github.com/edgard/chatlog/internal/database"
	"github.com/edgard/chatlog/internal/logger"
	"github.com/edgard/chatlog/internal/server"
	"github.com/edgard/chatlog/internal/service"
	"github.com/edgard/chatlog/internal/telegram"
	"github.com/edgard/chatlog/internal/tutor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the exit
// code: 0 on a clean stop, 1 when startup or a component fails.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("Failed to load env file", "path", *envPath, "error", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	manager := database.NewManager(
		database.NewConnector(cfg.Database, log),
		database.ManagerConfig{
			ConnectTimeout:   cfg.Database.ConnectTimeout,
			OperationTimeout: cfg.Database.OperationTimeout,
			RetryInterval:    cfg.Database.RetryInterval,
			SelfHeal:         cfg.Database.SelfHeal,
		},
		log,
	)
	defer func() {
		if err := manager.Close(); err != nil {
			log.Error("Error closing store connection", "error", err)
		}
	}()

	switch {
	case cfg.Database.FailFast:
		if err := manager.Start(ctx); err != nil {
			log.Error("Store unavailable at startup, exiting", "driver", cfg.Database.Driver, "error", err)
			return 1
		}
	case cfg.Database.RetryOnStartupFailure:
		go func() {
			if err := manager.ConnectWithRetry(ctx); err != nil {
				log.Warn("Background store connection stopped", "error", err)
			}
		}()
	default:
		log.Info("Store connection deferred to first request")
	}

	store := database.NewStore(manager, database.StoreConfig{
		OperationTimeout:    cfg.Database.OperationTimeout,
		DefaultHistoryLimit: cfg.Messages.DefaultHistoryLimit,
		MaxHistoryLimit:     cfg.Messages.MaxHistoryLimit,
		RequiredFields:      cfg.Messages.RequiredFields,
	}, log)
	ingestion := service.NewIngestion(manager, store, log)
	history := service.NewHistory(manager, store, log)

	generator, err := ai.New(ctx, cfg.AI, log)
	if err != nil {
		log.Error("Failed to initialize AI generator", "provider", cfg.AI.Provider, "error", err)
		return 1
	}

	var checks []server.Check

	subs, subsCheck, closeSubs, err := newSubscriberStore(cfg.Challenge)
	if err != nil {
		log.Error("Failed to initialize challenge subscribers", "error", err)
		return 1
	}
	defer closeSubs()
	if subsCheck != nil {
		checks = append(checks, *subsCheck)
	}

	var adapter *telegram.Adapter
	if cfg.Telegram.Enabled {
		sessions, sessionsCheck, closeSessions, err := newSessionStore(cfg.Tutor)
		if err != nil {
			log.Error("Failed to initialize tutor sessions", "error", err)
			return 1
		}
		defer closeSessions()
		if sessionsCheck != nil {
			checks = append(checks, *sessionsCheck)
		}

		hDeps := telegram.HandlerDeps{
			Ingestion: ingestion,
			History:   history,
			Generator: generator,
			Tutor: tutor.New(generator, sessions, tutor.Config{
				DefaultMode: tutor.Mode(cfg.Tutor.DefaultMode),
				Level:       cfg.Tutor.Level,
			}, log),
			HistoryLimit: cfg.AI.HistoryLimit,
			Cooldown:     cfg.Tutor.Cooldown,
			Logger:       log,
		}
		if cfg.Scheduler.Tasks[config.TaskDailyChallenge].Enabled {
			hDeps.Subscriptions = subs
		}
		adapter, err = telegram.NewAdapter(cfg.Telegram, telegram.NewHandler(hDeps), log)
		if err != nil {
			log.Error("Failed to create Telegram adapter", "error", err)
			return 1
		}
	}

	var notifier challenge.Notifier
	switch {
	case adapter != nil:
		notifier = adapter.Notifier()
	case cfg.Challenge.NotifyURL != "":
		notifier = challenge.NewHTTPNotifier(cfg.Challenge.NotifyURL, nil, cfg.Challenge.Timeout)
	}

	tDeps := tasks.TaskDeps{Logger: log, Prober: manager}
	routerDeps := server.Deps{
		Ingestion:    ingestion,
		History:      history,
		Readiness:    manager,
		Checks:       checks,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       log,
	}

	if notifier != nil {
		tDeps.Dispatcher = challenge.NewDispatcher(subs, generator, notifier, challenge.Config{
			Level:         cfg.Challenge.Level,
			MaxAttempts:   cfg.Challenge.MaxAttempts,
			Concurrency:   cfg.Challenge.Concurrency,
			RetryInterval: cfg.Challenge.RetryInterval,
			Timeout:       cfg.Challenge.Timeout,
		}, log)
		routerDeps.Subscriptions = subs
	} else if cfg.Scheduler.Tasks[config.TaskDailyChallenge].Enabled {
		log.Warn("Daily challenge enabled but no notifier configured; set telegram.enabled or challenge.notify_url")
	}

	var webhook app.Runner
	if adapter != nil {
		routerDeps.WebhookPath = cfg.Telegram.WebhookPath
		routerDeps.Webhook = adapter.WebhookHandler()
		webhook = adapter
	}

	sched, err := app.NewScheduler(log, cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	srv := server.New(cfg.Server, server.NewRouter(routerDeps), log)

	log.Info("Starting chatlog...", "addr", cfg.Server.Addr(), "store_state", manager.State().String())
	runErr := app.New(log, srv, sched, webhook).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Chatlog stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Chatlog stopped gracefully.")
	return 0
}

// newSubscriberStore returns the Redis set when an address is configured,
// otherwise the static list from configuration. The Redis set also comes with
// a readiness check.
func newSubscriberStore(cfg config.ChallengeConfig) (challenge.SubscriberStore, *server.Check, func(), error) {
	if cfg.RedisAddr == "" {
		return challenge.NewMemorySubscribers(cfg.Subscribers), nil, func() {}, nil
	}

	subs, err := challenge.NewRedisSubscribers(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return subs, &server.Check{Name: "challenge_subscribers", Ping: subs.Ping}, func() { _ = subs.Close() }, nil
}

// newSessionStore returns Redis-backed tutor sessions when an address is
// configured, otherwise in-process sessions.
func newSessionStore(cfg config.TutorConfig) (tutor.SessionStore, *server.Check, func(), error) {
	if cfg.RedisAddr == "" {
		return tutor.NewMemorySessions(), nil, func() {}, nil
	}

	sessions, err := tutor.NewRedisSessions(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionPrefix, cfg.SessionTTL)
	if err != nil {
		return nil, nil, nil, err
	}
	return sessions, &server.Check{Name: "tutor_sessions", Ping: sessions.Ping}, func() { _ = sessions.Close() }, nil
}
