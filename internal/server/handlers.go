package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgard/chatlog/internal/database"
	apperrors "github.com/edgard/chatlog/internal/errors"
)

// Ingestor saves messages.
type Ingestor interface {
	Save(ctx context.Context, p database.Payload) (*database.Message, error)
}

// HistoryReader loads recent history.
type HistoryReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]database.Message, error)
}

// Readiness exposes the store connection state.
type Readiness interface {
	State() database.State
}

// readyCheckTimeout bounds each dependency check on /ready.
const readyCheckTimeout = 2 * time.Second

// Check is an extra dependency that must answer for /ready to pass.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Subscriptions manages daily challenge subscribers.
type Subscriptions interface {
	Subscribe(ctx context.Context, userID string) error
	Unsubscribe(ctx context.Context, userID string) error
}

type messageHandler struct {
	ingest  Ingestor
	history HistoryReader
	logger  *slog.Logger
}

func (h *messageHandler) saveMessage(w http.ResponseWriter, r *http.Request) {
	var p database.Payload
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&p); err != nil {
		reason := "malformed JSON body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			reason = "request body too large"
		}
		RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid data", "reason": reason})
		return
	}

	msg, err := h.ingest.Save(r.Context(), p)
	switch {
	case err == nil:
		h.logger.InfoContext(r.Context(), "Message saved", "id", msg.ID, "user_id", msg.UserID, "message_type", msg.MessageType)
		RespondJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Message saved"})
	case apperrors.IsValidation(err):
		RespondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid data", "reason": apperrors.ValidationReason(err)})
	default:
		h.logger.ErrorContext(r.Context(), "Failed to save message", "code", apperrors.Code(err), "error", err)
		RespondError(w, http.StatusInternalServerError, "Database error")
	}
}

func (h *messageHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		RespondError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	messages, err := h.history.Recent(r.Context(), userID, limit)
	if err != nil {
		if apperrors.IsValidation(err) {
			RespondError(w, http.StatusBadRequest, apperrors.ValidationReason(err))
			return
		}
		h.logger.ErrorContext(r.Context(), "Failed to load history", "user_id", userID, "code", apperrors.Code(err), "error", err)
		RespondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	RespondJSON(w, http.StatusOK, map[string][]database.Message{"messages": messages})
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func ready(rd Readiness, checks []Check, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := rd.State()
		if state != database.StateReady {
			RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": state.String()})
			return
		}
		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
			err := c.Ping(ctx)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "Readiness check failed", "dependency", c.Name, "error", err)
				RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": c.Name})
				return
			}
		}
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type subscriptionHandler struct {
	subs   Subscriptions
	logger *slog.Logger
}

func (h *subscriptionHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		RespondError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		RespondError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	if err := h.subs.Subscribe(r.Context(), userID); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to subscribe user", "user_id", userID, "error", err)
		RespondError(w, http.StatusInternalServerError, "subscription failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "subscribed"})
}

func (h *subscriptionHandler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.subs.Unsubscribe(r.Context(), userID); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to unsubscribe user", "user_id", userID, "error", err)
		RespondError(w, http.StatusInternalServerError, "unsubscribe failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}
