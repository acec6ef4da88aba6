package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/permalink-studio/pos/internal/domain"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

const sessionPrefix = "pos:checkout:"

// SessionRepository implements repository.SessionRepository using Redis.
// Each save refreshes the TTL, so only idle terminals expire.
type SessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionRepository creates a Redis-backed session repository.
func NewSessionRepository(client *redis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(tenantID, terminalID string) string {
	return sessionPrefix + tenantID + ":" + terminalID
}

// Get returns the terminal's session or ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	data, err := r.client.Get(ctx, sessionKey(tenantID, terminalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("checkout session", terminalID)
		}
		return nil, fmt.Errorf("redis get checkout session: %w", err)
	}

	var co domain.Checkout
	if err := json.Unmarshal(data, &co); err != nil {
		return nil, fmt.Errorf("unmarshal checkout session: %w", err)
	}
	if co.Cart == nil {
		return nil, fmt.Errorf("unmarshal checkout session: missing cart")
	}
	return &co, nil
}

// Save writes the session with the configured TTL.
func (r *SessionRepository) Save(ctx context.Context, co *domain.Checkout) error {
	data, err := json.Marshal(co)
	if err != nil {
		return fmt.Errorf("marshal checkout session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(co.TenantID, co.TerminalID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkout session: %w", err)
	}
	return nil
}

// Delete removes the terminal's session.
func (r *SessionRepository) Delete(ctx context.Context, tenantID, terminalID string) error {
	if err := r.client.Del(ctx, sessionKey(tenantID, terminalID)).Err(); err != nil {
		return fmt.Errorf("redis del checkout session: %w", err)
	}
	return nil
}
