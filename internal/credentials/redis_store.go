package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "credentials:v1:"

type redisStore struct {
	client *redis.Client
}

// NewRedisStore stores one JSON value per user key. SET replaces the whole
// value, which keeps the single-key write atomic.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, userID string) (Credentials, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+userID).Result()
	if err == redis.Nil {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("redis get credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

func (s *redisStore) Upsert(ctx context.Context, userID string, creds Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+userID, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set credentials: %w", err)
	}
	return nil
}
