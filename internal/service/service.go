// Package service holds the ingestion and history services. Both gate every
// operation on store readiness and let only taxonomy errors escape.
package service

import (
	"context"
	"log/slog"

	"github.com/edgard/chatlog/internal/database"
	apperrors "github.com/edgard/chatlog/internal/errors"
)

// Connection is the part of the connection manager the services need.
type Connection interface {
	EnsureConnected(ctx context.Context) error
	MarkDisconnected(cause error)
}

// MessageStore is the data access the services delegate to.
type MessageStore interface {
	SaveMessage(ctx context.Context, p database.Payload) (*database.Message, error)
	History(ctx context.Context, userID string, limit int) ([]database.Message, error)
}

// Ingestion accepts new messages.
type Ingestion struct {
	conn   Connection
	store  MessageStore
	logger *slog.Logger
}

// NewIngestion creates an Ingestion service.
func NewIngestion(conn Connection, store MessageStore, logger *slog.Logger) *Ingestion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestion{conn: conn, store: store, logger: logger.With("component", "ingestion")}
}

// Save persists p and returns the stored copy. Writes are not retried.
func (s *Ingestion) Save(ctx context.Context, p database.Payload) (*database.Message, error) {
	if err := s.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	msg, err := s.store.SaveMessage(ctx, p)
	if err != nil {
		if apperrors.IsConnection(err) {
			s.conn.MarkDisconnected(err)
		}
		return nil, shape(err)
	}
	return msg, nil
}

// History serves recent-history reads.
type History struct {
	conn   Connection
	store  MessageStore
	logger *slog.Logger
}

// NewHistory creates a History service.
func NewHistory(conn Connection, store MessageStore, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{conn: conn, store: store, logger: logger.With("component", "history")}
}

// Recent returns the user's most recent messages in ascending time order.
// Reads are idempotent, so a connection failure gets one reconnect and retry.
func (s *History) Recent(ctx context.Context, userID string, limit int) ([]database.Message, error) {
	if err := s.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	messages, err := s.store.History(ctx, userID, limit)
	if err == nil || !apperrors.IsConnection(err) {
		return messages, shape(err)
	}

	s.conn.MarkDisconnected(err)
	s.logger.WarnContext(ctx, "History read lost the store, retrying once", "user_id", userID, "error", err)

	if err := s.conn.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	messages, err = s.store.History(ctx, userID, limit)
	if err != nil {
		if apperrors.IsConnection(err) {
			s.conn.MarkDisconnected(err)
		}
		return nil, shape(err)
	}
	return messages, nil
}

// shape wraps anything outside the taxonomy as a StorageError.
func shape(err error) error {
	if err == nil || apperrors.Code(err) != apperrors.CodeUnknown {
		return err
	}
	return apperrors.NewStorageError("store operation failed", err)
}
