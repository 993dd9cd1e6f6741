package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/edgard/chatlog/internal/errors"
)

// Handle hands out the live connection. *Manager implements it.
type Handle interface {
	DB() (*sqlx.DB, error)
}

// StoreConfig holds the store's per-operation policy.
type StoreConfig struct {
	OperationTimeout    time.Duration
	DefaultHistoryLimit int
	MaxHistoryLimit     int
	RequiredFields      []string
}

// Store is the data access layer for messages.
type Store struct {
	handle    Handle
	validator *Validator
	cfg       StoreConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates a Store reading its connection from handle.
func NewStore(handle Handle, cfg StoreConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		handle:    handle,
		validator: NewValidator(cfg.RequiredFields),
		cfg:       cfg,
		logger:    logger.With("component", "store"),
		now:       time.Now,
	}
}

const insertMessageQuery = `
	INSERT INTO messages (user_id, message_text, bot_response, message_type,
		interaction_rounds, constructive_contribution, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

const historyQuery = `
	SELECT id, user_id, message_text, bot_response, message_type,
		interaction_rounds, constructive_contribution, timestamp
	FROM messages
	WHERE user_id = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?`

// SaveMessage validates and normalizes p, inserts it and returns the stored
// copy. Invalid payloads fail with a ValidationError before any I/O.
func (s *Store) SaveMessage(ctx context.Context, p Payload) (*Message, error) {
	msg, err := s.validator.Prepare(p, s.now())
	if err != nil {
		return nil, err
	}

	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	err = db.QueryRowxContext(ctx, db.Rebind(insertMessageQuery),
		msg.UserID,
		msg.MessageText,
		msg.BotResponse,
		msg.MessageType,
		msg.InteractionRounds,
		msg.ConstructiveContribution,
		msg.Timestamp,
	).Scan(&msg.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "user_id", msg.UserID, "error", err)
		return nil, classify("failed to save message", err)
	}

	s.logger.DebugContext(ctx, "Message saved", "id", msg.ID, "user_id", msg.UserID)
	return msg, nil
}

// History returns up to limit of the user's most recent messages, oldest
// first. limit <= 0 means the configured default; larger values are capped.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]Message, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("user_id is required", nil)
	}
	limit = s.clampLimit(limit)

	db, err := s.handle.DB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	messages := []Message{}
	if err := db.SelectContext(ctx, &messages, db.Rebind(historyQuery), userID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error loading history", "user_id", userID, "error", err)
		return nil, classify("failed to load history", err)
	}

	// Newest-first from the query; callers get chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		messages[i].Timestamp = messages[i].Timestamp.UTC()
	}
	return messages, nil
}

func (s *Store) clampLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.DefaultHistoryLimit
	}
	if s.cfg.MaxHistoryLimit > 0 && limit > s.cfg.MaxHistoryLimit {
		limit = s.cfg.MaxHistoryLimit
	}
	return limit
}

func classify(message string, err error) error {
	if isConnectionError(err) {
		return apperrors.NewConnectionError(message, err)
	}
	return apperrors.NewStorageError(message, err)
}
