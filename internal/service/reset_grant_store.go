package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"otp-auth/internal/clock"
)

// ResetGrantStore guarda el jti de cada autorizacion de reset hasta que se canjea.
type ResetGrantStore interface {
	Store(ctx context.Context, jti, email string, ttl time.Duration) error
	// Take devuelve el email asociado y borra el jti en la misma operacion.
	Take(ctx context.Context, jti string) (string, bool, error)
}

type grantEntry struct {
	email     string
	expiresAt time.Time
}

type memoryResetGrantStore struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]grantEntry
}

func NewMemoryResetGrantStore(clk clock.Clock) ResetGrantStore {
	if clk == nil {
		clk = clock.System()
	}
	return &memoryResetGrantStore{
		clock: clk,
		items: make(map[string]grantEntry),
	}
}

func (s *memoryResetGrantStore) Store(_ context.Context, jti, email string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	s.items[jti] = grantEntry{email: email, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *memoryResetGrantStore) Take(_ context.Context, jti string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[jti]
	if !ok {
		return "", false, nil
	}
	delete(s.items, jti)
	if !s.clock.Now().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.email, true, nil
}

type redisGrantClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

type redisResetGrantStore struct {
	client redisGrantClient
	prefix string
}

func NewRedisResetGrantStore(client *redis.Client) ResetGrantStore {
	if client == nil {
		return nil
	}
	return &redisResetGrantStore{
		client: client,
		prefix: "auth:reset:",
	}
}

func (s *redisResetGrantStore) Store(ctx context.Context, jti, email string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultResetGrantTTL
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+jti, email, ttl).Err()
}

func (s *redisResetGrantStore) Take(ctx context.Context, jti string) (string, bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	email, err := s.client.GetDel(ctx, s.prefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return email, true, nil
}
