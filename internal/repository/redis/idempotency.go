package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedPrefix = "pos:processed:"

// IdempotencyStore records processed event IDs in Redis so every consumer
// replica shares one view. It satisfies kafka.IdempotencyStore.
type IdempotencyStore struct {
	client *redis.Client
	group  string
	ttl    time.Duration
}

// NewIdempotencyStore scopes processed IDs to a consumer group.
func NewIdempotencyStore(client *redis.Client, group string, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, group: group, ttl: ttl}
}

func (s *IdempotencyStore) key(eventID string) string {
	return processedPrefix + s.group + ":" + eventID
}

// Contains reports whether eventID was recorded and has not expired.
func (s *IdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists processed event: %w", err)
	}
	return n > 0, nil
}

// Add records eventID.
func (s *IdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, s.key(eventID), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set processed event: %w", err)
	}
	return nil
}
