package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/chatlog/internal/logger"
)

// Deps holds what the router serves. Subscriptions, Webhook and Checks are
// optional.
type Deps struct {
	Ingestion     Ingestor
	History       HistoryReader
	Readiness     Readiness
	Checks        []Check
	Subscriptions Subscriptions
	WebhookPath   string
	Webhook       http.Handler
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

// NewRouter wires HTTP routes to the services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.HTTPMiddleware(log))
	r.Use(middleware.Recoverer)
	if deps.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(deps.MaxBodyBytes))
	}

	messages := &messageHandler{ingest: deps.Ingestion, history: deps.History, logger: log}
	r.Post("/save_message", messages.saveMessage)
	r.Get("/get_history", messages.getHistory)

	r.Get("/health", health)
	r.Get("/ready", ready(deps.Readiness, deps.Checks, log))

	if deps.Subscriptions != nil {
		subs := &subscriptionHandler{subs: deps.Subscriptions, logger: log}
		r.Route("/challenge/subscribers", func(cr chi.Router) {
			cr.Post("/", subs.subscribe)
			cr.Delete("/{userID}", subs.unsubscribe)
		})
	}

	if deps.Webhook != nil && deps.WebhookPath != "" {
		r.Method(http.MethodPost, deps.WebhookPath, deps.Webhook)
	}

	return r
}
