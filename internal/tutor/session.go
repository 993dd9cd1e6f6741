package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is the per-user tutoring state.
type Session struct {
	Mode            Mode   `json:"mode"`
	Level           string `json:"level"`
	LastQuestion    string `json:"last_question,omitempty"`
	AwaitingAnswer  bool   `json:"awaiting_answer"`
	Responded       bool   `json:"responded"`
	IrrelevantCount int    `json:"irrelevant_count"`
	// Rounds counts the user's messages since the mode was selected.
	Rounds int `json:"rounds"`
}

// SessionStore persists sessions by user id. Get reports found=false for a
// user with no stored session.
type SessionStore interface {
	Get(ctx context.Context, userID string) (Session, bool, error)
	Put(ctx context.Context, userID string, s Session) error
}

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]Session)}
}

func (m *MemorySessions) Get(_ context.Context, userID string) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok, nil
}

func (m *MemorySessions) Put(_ context.Context, userID string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = s
	return nil
}

// RedisSessions keeps sessions as JSON under prefix+userID, refreshed to
// expire ttl after the last write. A zero ttl keeps them forever.
type RedisSessions struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessions builds a Redis-backed session store.
func NewRedisSessions(addr, password, prefix string, ttl time.Duration) (*RedisSessions, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address is required")
	}
	return &RedisSessions{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (r *RedisSessions) Get(ctx context.Context, userID string) (Session, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, true, nil
}

func (r *RedisSessions) Put(ctx context.Context, userID string, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+userID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisSessions) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (r *RedisSessions) Close() error {
	return r.client.Close()
}
