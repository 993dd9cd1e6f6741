package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/edgard/chatlog/internal/errors"
	"github.com/edgard/chatlog/internal/resilience"
)

// State is the connection state of a Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Connector opens a ready-to-use handle: connected, pinged and migrated.
type Connector func(ctx context.Context) (*sqlx.DB, error)

// ManagerConfig holds the connection policy.
type ManagerConfig struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	RetryInterval    time.Duration
	// SelfHeal makes a failed Probe reconnect instead of only logging.
	SelfHeal bool
}

// Manager owns the shared store handle and its connection state. It is the
// only component that mutates either; everything else reads through DB.
type Manager struct {
	connect Connector
	cfg     ManagerConfig
	logger  *slog.Logger

	mu    sync.Mutex // serializes connect attempts
	state atomic.Int32
	db    atomic.Pointer[sqlx.DB]
}

// NewManager creates a Manager in the disconnected state. No connection is
// attempted until Start, ConnectWithRetry or EnsureConnected is called.
func NewManager(connect Connector, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		connect: connect,
		cfg:     cfg,
		logger:  logger.With("component", "connection_manager"),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Ready reports whether the manager holds a live handle.
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// DB returns the live handle, or a ConnectionError when not ready.
func (m *Manager) DB() (*sqlx.DB, error) {
	db := m.db.Load()
	if m.State() != StateReady || db == nil {
		return nil, apperrors.NewConnectionError("store is not connected", nil)
	}
	return db, nil
}

// Start makes exactly one connection attempt. Failure is fatal to startup.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.attempt(ctx); err != nil {
		return apperrors.NewFatalStartupError("initial store connection failed", err)
	}
	return nil
}

// ConnectWithRetry attempts to connect every RetryInterval until it succeeds
// or ctx is done.
func (m *Manager) ConnectWithRetry(ctx context.Context) error {
	cfg := resilience.FixedRetryConfig(0, m.cfg.RetryInterval)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.logger.WarnContext(ctx, "Store connection attempt failed, retrying",
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}

	err := resilience.WithRetry(ctx, m.attempt, cfg)
	if err != nil {
		return apperrors.NewConnectionError("store reconnection abandoned", err)
	}
	return nil
}

// EnsureConnected returns nil when ready, otherwise makes one reconnect
// attempt bounded by ctx.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.Ready() {
		return nil
	}
	if err := m.attempt(ctx); err != nil {
		return apperrors.NewConnectionError("store unavailable", err)
	}
	return nil
}

// Probe pings the store. On failure the manager is marked disconnected and,
// with SelfHeal, reconnection is retried until it succeeds or ctx is done.
func (m *Manager) Probe(ctx context.Context) error {
	err := m.ping(ctx)
	if err == nil {
		m.logger.DebugContext(ctx, "Store probe succeeded")
		return nil
	}

	m.MarkDisconnected(err)
	if !m.cfg.SelfHeal {
		m.logger.ErrorContext(ctx, "Store probe failed", "error", err)
		return apperrors.NewConnectionError("store probe failed", err)
	}

	m.logger.WarnContext(ctx, "Store probe failed, reconnecting", "error", err)
	return m.ConnectWithRetry(ctx)
}

// MarkDisconnected moves a ready manager to disconnected. The old handle is
// closed by the next successful connect.
func (m *Manager) MarkDisconnected(cause error) {
	if m.state.CompareAndSwap(int32(StateReady), int32(StateDisconnected)) {
		m.logger.Warn("Store marked disconnected", "error", cause)
	}
}

// Close releases the handle and leaves the manager disconnected.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Store(int32(StateDisconnected))
	if db := m.db.Swap(nil); db != nil {
		if err := db.Close(); err != nil {
			return err
		}
		m.logger.Info("Store connection closed")
	}
	return nil
}

func (m *Manager) ping(ctx context.Context) error {
	db, err := m.DB()
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, m.cfg.OperationTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

// attempt runs one connect. Concurrent callers queue on mu; whoever finds
// the manager already ready returns without connecting again.
func (m *Manager) attempt(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Ready() {
		return nil
	}

	m.state.Store(int32(StateConnecting))
	m.logger.InfoContext(ctx, "Connecting to store")

	ctx, cancel := withTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	startTime := time.Now()
	db, err := m.connect(ctx)
	if err != nil {
		m.state.Store(int32(StateDisconnected))
		return err
	}

	if old := m.db.Swap(db); old != nil {
		if closeErr := old.Close(); closeErr != nil {
			m.logger.Debug("Error closing stale store handle", "error", closeErr)
		}
	}
	m.state.Store(int32(StateReady))

	m.logger.InfoContext(ctx, "Store connected", "duration_ms", time.Since(startTime).Milliseconds())
	return nil
}

// isConnectionError reports whether err means the store could not be
// reached, as opposed to the store rejecting the operation.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// SQLSTATE class 08: connection exception.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return true
	}

	return strings.Contains(err.Error(), "database is closed")
}

// withTimeout bounds ctx by d; d <= 0 leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
