package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/chatlog/internal/config"
	apperrors "github.com/edgard/chatlog/internal/errors"
	"github.com/edgard/chatlog/internal/logger"
)

func testDBConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatlog.db")
	return config.DatabaseConfig{
		Driver:           DriverSQLite,
		URI:              fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_time_format=sqlite", path),
		OperationTimeout: 5 * time.Second,
		ConnectTimeout:   5 * time.Second,
		RetryInterval:    time.Millisecond,
		MaxOpenConns:     4,
		MaxIdleConns:     2,
	}
}

// countingConnector wraps connect and fails the first failures calls.
func countingConnector(connect Connector, failures int32, calls *atomic.Int32) Connector {
	return func(ctx context.Context) (*sqlx.DB, error) {
		n := calls.Add(1)
		if n <= failures {
			return nil, errors.New("connection refused")
		}
		return connect(ctx)
	}
}

func newTestManager(t *testing.T, selfHeal bool) (*Manager, *atomic.Int32) {
	t.Helper()
	cfg := testDBConfig(t)
	calls := &atomic.Int32{}
	m := NewManager(
		countingConnector(NewConnector(cfg, logger.Discard()), 0, calls),
		ManagerConfig{
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.OperationTimeout,
			RetryInterval:    cfg.RetryInterval,
			SelfHeal:         selfHeal,
		},
		logger.Discard(),
	)
	t.Cleanup(func() { _ = m.Close() })
	return m, calls
}

func newTestStore(t *testing.T) (*Store, *Manager) {
	t.Helper()
	m, _ := newTestManager(t, true)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s := NewStore(m, StoreConfig{
		OperationTimeout:    time.Second,
		DefaultHistoryLimit: 20,
		MaxHistoryLimit:     100,
		RequiredFields:      []string{"user_id"},
	}, logger.Discard())
	return s, m
}

func countMessages(t *testing.T, m *Manager) int {
	t.Helper()
	db, err := m.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM messages"); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

func sameMessage(a, b Message) bool {
	ts := a.Timestamp.Equal(b.Timestamp)
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	return ts && a == b
}

func TestValidatorPrepare(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	given := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		required   []string
		payload    Payload
		wantReason string
		check      func(t *testing.T, m *Message)
	}{
		{
			name:    "defaults and server timestamp",
			payload: Payload{UserID: "  u1  ", MessageText: "hi"},
			check: func(t *testing.T, m *Message) {
				if m.UserID != "u1" {
					t.Errorf("UserID = %q, want trimmed", m.UserID)
				}
				want := now.UTC().Truncate(time.Microsecond)
				if !m.Timestamp.Equal(want) || m.Timestamp.Location() != time.UTC {
					t.Errorf("Timestamp = %v, want %v", m.Timestamp, want)
				}
				if m.InteractionRounds != 0 || m.ConstructiveContribution || m.BotResponse != "" {
					t.Errorf("defaults not applied: %+v", m)
				}
			},
		},
		{
			name:    "caller timestamp kept",
			payload: Payload{UserID: "u1", BotResponse: "hello", Timestamp: &given},
			check: func(t *testing.T, m *Message) {
				if !m.Timestamp.Equal(given) {
					t.Errorf("Timestamp = %v, want %v", m.Timestamp, given)
				}
			},
		},
		{
			name:       "missing user_id",
			payload:    Payload{MessageText: "hi"},
			wantReason: "user_id is required",
		},
		{
			name:       "blank user_id",
			payload:    Payload{UserID: "   ", MessageText: "hi"},
			wantReason: "user_id is required",
		},
		{
			name:       "no text and no response",
			payload:    Payload{UserID: "u1"},
			wantReason: "message_text or bot_response is required",
		},
		{
			name:       "negative rounds",
			payload:    Payload{UserID: "u1", MessageText: "hi", InteractionRounds: -1},
			wantReason: "interaction_rounds must be at least 0",
		},
		{
			name:       "configured required field",
			required:   []string{"user_id", "message_type"},
			payload:    Payload{UserID: "u1", MessageText: "hi"},
			wantReason: "message_type is required",
		},
		{
			name:     "configured required field present",
			required: []string{"message_type"},
			payload:  Payload{UserID: "u1", MessageText: "hi", MessageType: " text "},
			check: func(t *testing.T, m *Message) {
				if m.MessageType != "text" {
					t.Errorf("MessageType = %q, want trimmed", m.MessageType)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := NewValidator(tt.required).Prepare(tt.payload, now)
			if tt.wantReason != "" {
				if !apperrors.IsValidation(err) {
					t.Fatalf("Prepare() error = %v, want ValidationError", err)
				}
				if got := apperrors.ValidationReason(err); got != tt.wantReason {
					t.Errorf("reason = %q, want %q", got, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			tt.check(t, msg)
		})
	}
}

func TestStoreSaveAndHistory(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		_, err := s.SaveMessage(ctx, Payload{
			UserID:            "u1",
			MessageText:       fmt.Sprintf("msg %d", i),
			InteractionRounds: i,
			Timestamp:         &ts,
		})
		if err != nil {
			t.Fatalf("SaveMessage(%d) error = %v", i, err)
		}
	}
	if _, err := s.SaveMessage(ctx, Payload{UserID: "u2", BotResponse: "other user"}); err != nil {
		t.Fatalf("SaveMessage(u2) error = %v", err)
	}

	got, err := s.History(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(History) = %d, want 2", len(got))
	}
	if got[0].MessageText != "msg 1" || got[1].MessageText != "msg 2" {
		t.Errorf("History order = [%q %q], want [msg 1 msg 2]", got[0].MessageText, got[1].MessageText)
	}
	if !got[1].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("Timestamp = %v", got[1].Timestamp)
	}
	if got[1].InteractionRounds != 2 {
		t.Errorf("InteractionRounds = %d, want 2", got[1].InteractionRounds)
	}

	again, err := s.History(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("History() second call error = %v", err)
	}
	for i := range got {
		if !sameMessage(got[i], again[i]) {
			t.Errorf("History not idempotent at %d: %+v vs %+v", i, got[i], again[i])
		}
	}
}

func TestStoreSaveReturnsStoredCopy(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveMessage(ctx, Payload{
		UserID:                   "u1",
		MessageText:              "hello",
		BotResponse:              "hi there",
		MessageType:              "text",
		ConstructiveContribution: true,
	})
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if saved.ID == 0 {
		t.Error("saved.ID = 0, want storage-assigned id")
	}

	got, err := s.History(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 || !sameMessage(got[0], *saved) {
		t.Errorf("History() = %+v, want [%+v]", got, *saved)
	}
}

func TestStoreSameTimestampOrderedByInsert(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for _, text := range []string{"first", "second", "third"} {
		if _, err := s.SaveMessage(ctx, Payload{UserID: "u1", MessageText: text, Timestamp: &ts}); err != nil {
			t.Fatalf("SaveMessage(%s) error = %v", text, err)
		}
	}

	got, err := s.History(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 3 || got[0].MessageText != "first" || got[2].MessageText != "third" {
		t.Errorf("History() = %+v, want insert order", got)
	}
}

func TestStoreValidationDoesNotWrite(t *testing.T) {
	t.Parallel()

	s, m := newTestStore(t)
	_, err := s.SaveMessage(context.Background(), Payload{MessageText: "no user"})
	if !apperrors.IsValidation(err) {
		t.Fatalf("SaveMessage() error = %v, want ValidationError", err)
	}
	if n := countMessages(t, m); n != 0 {
		t.Errorf("messages stored = %d, want 0", n)
	}
}

func TestStoreHistoryUnknownUser(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	got, err := s.History(context.Background(), "nobody", 20)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("History() = %#v, want empty non-nil slice", got)
	}
}

func TestStoreHistoryEmptyUser(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.History(context.Background(), "", 20); !apperrors.IsValidation(err) {
		t.Errorf("History(\"\") error = %v, want ValidationError", err)
	}
}

func TestStoreClampLimit(t *testing.T) {
	t.Parallel()

	s := &Store{cfg: StoreConfig{DefaultHistoryLimit: 20, MaxHistoryLimit: 100}}
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-5, 20},
		{7, 7},
		{100, 100},
		{5000, 100},
	}
	for _, tt := range tests {
		if got := s.clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStoreNotConnected(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, false)
	s := NewStore(m, StoreConfig{DefaultHistoryLimit: 20, MaxHistoryLimit: 100}, logger.Discard())

	_, err := s.SaveMessage(context.Background(), Payload{UserID: "u1", MessageText: "hi"})
	if !apperrors.IsConnection(err) {
		t.Errorf("SaveMessage() error = %v, want ConnectionError", err)
	}
}

func TestManagerStartFailure(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	m := NewManager(
		countingConnector(nil, 1, calls),
		ManagerConfig{RetryInterval: time.Millisecond},
		logger.Discard(),
	)

	err := m.Start(context.Background())
	if !apperrors.IsFatalStartup(err) {
		t.Fatalf("Start() error = %v, want FatalStartupError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("connect calls = %d, want exactly 1", calls.Load())
	}
	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", m.State())
	}
}

func TestManagerConnectWithRetry(t *testing.T) {
	t.Parallel()

	cfg := testDBConfig(t)
	calls := &atomic.Int32{}
	m := NewManager(
		countingConnector(NewConnector(cfg, logger.Discard()), 3, calls),
		ManagerConfig{RetryInterval: time.Millisecond, OperationTimeout: time.Second},
		logger.Discard(),
	)
	t.Cleanup(func() { _ = m.Close() })

	if err := m.ConnectWithRetry(context.Background()); err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	if calls.Load() != 4 {
		t.Errorf("connect calls = %d, want 4", calls.Load())
	}
	if !m.Ready() {
		t.Errorf("State() = %v, want ready", m.State())
	}
}

func TestManagerConnectWithRetryCancelled(t *testing.T) {
	t.Parallel()

	calls := &atomic.Int32{}
	m := NewManager(
		countingConnector(nil, 1<<30, calls),
		ManagerConfig{RetryInterval: time.Millisecond},
		logger.Discard(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := m.ConnectWithRetry(ctx); !apperrors.IsConnection(err) {
		t.Errorf("ConnectWithRetry() error = %v, want ConnectionError", err)
	}
	if calls.Load() < 2 {
		t.Errorf("connect calls = %d, want repeated attempts", calls.Load())
	}
}

func TestManagerRecoversAfterOutage(t *testing.T) {
	t.Parallel()

	s, m := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveMessage(ctx, Payload{UserID: "u1", MessageText: "before"}); err != nil {
		t.Fatalf("SaveMessage(before) error = %v", err)
	}

	// Simulate the store going away under a ready manager.
	db, err := m.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	_ = db.Close()

	_, err = s.SaveMessage(ctx, Payload{UserID: "u1", MessageText: "during"})
	if !apperrors.IsConnection(err) {
		t.Fatalf("SaveMessage(during) error = %v, want ConnectionError", err)
	}
	m.MarkDisconnected(err)
	if m.State() != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected", m.State())
	}

	if err := m.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected() error = %v", err)
	}
	if !m.Ready() {
		t.Fatalf("State() = %v, want ready", m.State())
	}
	if _, err := s.SaveMessage(ctx, Payload{UserID: "u1", MessageText: "after"}); err != nil {
		t.Fatalf("SaveMessage(after) error = %v", err)
	}

	got, err := s.History(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(History) = %d, want 2", len(got))
	}
}

func TestManagerProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		selfHeal  bool
		wantState State
		wantCalls int32
	}{
		{name: "monitor only", selfHeal: false, wantState: StateDisconnected, wantCalls: 1},
		{name: "self healing", selfHeal: true, wantState: StateReady, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, calls := newTestManager(t, tt.selfHeal)
			ctx := context.Background()
			if err := m.Start(ctx); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if err := m.Probe(ctx); err != nil {
				t.Fatalf("Probe() on healthy store error = %v", err)
			}

			db, _ := m.DB()
			_ = db.Close()

			err := m.Probe(ctx)
			if tt.selfHeal && err != nil {
				t.Errorf("Probe() error = %v, want recovery", err)
			}
			if !tt.selfHeal && !apperrors.IsConnection(err) {
				t.Errorf("Probe() error = %v, want ConnectionError", err)
			}
			if m.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", m.State(), tt.wantState)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("connect calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}
