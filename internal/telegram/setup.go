// Package telegram is the inbound messaging adapter. Updates arrive on a
// webhook; each text message is saved, answered as a reply to the inbound
// message, and the answer saved too. Storage is reached only through the
// ingestion and history services.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-telegram/bot"

	"github.com/edgard/chatlog/internal/config"
	"github.com/edgard/chatlog/internal/logger"
)

// Adapter owns the Telegram bot running in webhook mode.
type Adapter struct {
	bot    *bot.Bot
	logger *slog.Logger
}

// NewAdapter creates the bot. GetMe is skipped so startup does not depend on
// the Telegram API being reachable.
func NewAdapter(cfg config.TelegramConfig, h *Handler, logger *slog.Logger, opts ...bot.Option) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	opts = append([]bot.Option{
		bot.WithSkipGetMe(),
		bot.WithMiddlewares(logMiddleware(logger)),
		bot.WithDefaultHandler(h.Handle),
	}, opts...)
	if cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created", "webhook_path", cfg.WebhookPath, "secret_set", cfg.WebhookSecret != "")
	return &Adapter{bot: b, logger: log}, nil
}

// WebhookHandler returns the HTTP handler to mount on the webhook path.
func (a *Adapter) WebhookHandler() http.Handler {
	return a.bot.WebhookHandler()
}

// Run processes webhook updates until ctx is done.
func (a *Adapter) Run(ctx context.Context) error {
	a.logger.Info("Starting Telegram webhook worker...")
	a.bot.StartWebhook(ctx)
	a.logger.Info("Telegram webhook worker stopped.")
	return nil
}

// Notifier returns a challenge notifier that sends through this bot.
func (a *Adapter) Notifier() *Notifier {
	return &Notifier{sender: a.bot}
}

func logMiddleware(log *slog.Logger) bot.Middleware {
	return logger.Middleware(log.With("component", "telegram_updates"))
}
