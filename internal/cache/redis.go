package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "shellcache:"

// RedisStorage keeps each generation in one Redis hash, so deleting a
// superseded generation is a single DEL and never a partial edit.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(redisURL string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStorage{client: client}, nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (s *RedisStorage) Put(ctx context.Context, generation, key string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.client.HSet(ctx, redisKeyPrefix+generation, key, payload).Err(); err != nil {
		return fmt.Errorf("store cache entry %s: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) Match(ctx context.Context, generation, key string) (Entry, bool, error) {
	payload, err := s.client.HGet(ctx, redisKeyPrefix+generation, key).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("match cache entry %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return entry, true, nil
}

func (s *RedisStorage) Delete(ctx context.Context, generation string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+generation).Err(); err != nil {
		return fmt.Errorf("delete generation %s: %w", generation, err)
	}
	return nil
}

func (s *RedisStorage) Generations(ctx context.Context) ([]string, error) {
	keys, err := s.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, redisKeyPrefix))
	}
	return names, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
