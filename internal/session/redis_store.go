// Package session stores unlocked admin sessions in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session token is unknown or expired.
var ErrNotFound = errors.New("session not found or expired")

// AdminSession is the data stored for each unlocked admin token.
type AdminSession struct {
	UnlockedAt time.Time `json:"unlocked_at"`
}

// RedisStore implements admin session storage using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "adminsess:",
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "adminsess:",
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// SaveAdminSession stores an unlocked admin session under the token
// hash with an expiration.
func (s *RedisStore) SaveAdminSession(ctx context.Context, tokenHash string, ttl time.Duration) error {
	data := AdminSession{UnlockedAt: time.Now()}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}

	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	if err := s.client.Set(ctx, s.key(tokenHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save admin session: %w", err)
	}
	return nil
}

// LookupAdminSession retrieves a session by token hash.
func (s *RedisStore) LookupAdminSession(ctx context.Context, tokenHash string) (AdminSession, error) {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return AdminSession{}, ErrNotFound
	}
	if err != nil {
		return AdminSession{}, fmt.Errorf("lookup admin session: %w", err)
	}

	var data AdminSession
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return AdminSession{}, fmt.Errorf("unmarshal session data: %w", err)
	}
	return data, nil
}

// RevokeAdminSession deletes a session.
func (s *RedisStore) RevokeAdminSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke admin session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
