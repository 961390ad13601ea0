package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "advisor:prefs:"

// RedisStore keeps preferences in Redis so they survive restarts and are
// shared across instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("prefs store redis addr is required")
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, p Preferences) error {
	payload, err := json.Marshal(normalize(p))
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+userID, payload, 0).Err(); err != nil {
		return fmt.Errorf("save prefs: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, userID string) (Preferences, error) {
	payload, err := s.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Defaults(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load prefs: %w", err)
	}
	var p Preferences
	if err := json.Unmarshal(payload, &p); err != nil {
		return Defaults(), nil
	}
	return normalize(p), nil
}
