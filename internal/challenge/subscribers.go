package challenge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// SubscriberStore keeps the set of users who receive the daily challenge.
type SubscriberStore interface {
	List(ctx context.Context) ([]string, error)
	Subscribe(ctx context.Context, userID string) error
	Unsubscribe(ctx context.Context, userID string) error
}

var errEmptyUserID = errors.New("user id is empty")

// RedisSubscribers keeps subscribers in a Redis set.
type RedisSubscribers struct {
	client *redis.Client
	key    string
}

// NewRedisSubscribers builds a Redis-backed subscriber set stored under key.
func NewRedisSubscribers(addr, password, key string) (*RedisSubscribers, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address is required")
	}
	return &RedisSubscribers{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		key: key,
	}, nil
}

// List returns all subscribers in lexical order.
func (s *RedisSubscribers) List(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

// Subscribe adds userID. Adding an existing subscriber is a no-op.
func (s *RedisSubscribers) Subscribe(ctx context.Context, userID string) error {
	if userID == "" {
		return errEmptyUserID
	}
	if err := s.client.SAdd(ctx, s.key, userID).Err(); err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

// Unsubscribe removes userID. Removing an unknown subscriber is a no-op.
func (s *RedisSubscribers) Unsubscribe(ctx context.Context, userID string) error {
	if err := s.client.SRem(ctx, s.key, userID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to remove subscriber: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisSubscribers) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *RedisSubscribers) Close() error {
	return s.client.Close()
}

// MemorySubscribers is an in-process subscriber set seeded from
// configuration. Changes do not survive a restart.
type MemorySubscribers struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewMemorySubscribers creates a set holding the given user ids.
func NewMemorySubscribers(userIDs []string) *MemorySubscribers {
	s := &MemorySubscribers{set: make(map[string]struct{}, len(userIDs))}
	for _, id := range userIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.set[id] = struct{}{}
		}
	}
	return s
}

func (s *MemorySubscribers) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.set))
	for id := range s.set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemorySubscribers) Subscribe(_ context.Context, userID string) error {
	if userID == "" {
		return errEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[userID] = struct{}{}
	return nil
}

func (s *MemorySubscribers) Unsubscribe(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, userID)
	return nil
}
