// Package idempotency makes purchase requests single-shot per member and Idempotency-Key.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/chessclub-academy/service-pricing/pkg/domain"
)

const pending = "pending"

// ErrInProgress is returned while another request with the same key is running.
var ErrInProgress = &domain.DomainError{
	Err:     domain.ErrConflict,
	Code:    "request_in_progress",
	Message: "a request with this idempotency key is already in progress",
}

// Store keeps idempotency keys in Redis. A nil *Store accepts every request.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns nil when client is nil.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Key scopes a client supplied key to a member.
func Key(userID uuid.UUID, key string) string {
	return fmt.Sprintf("pricing:idempotency:%s:%s", userID, key)
}

// Begin claims key. When the key was already completed it returns the stored
// result and reserved=false.
func (s *Store) Begin(ctx context.Context, key string) (result string, reserved bool, err error) {
	if s == nil || key == "" {
		return "", true, nil
	}
	ok, err := s.client.SetNX(ctx, key, pending, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			return s.Begin(ctx, key)
		}
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pending {
		return "", false, ErrInProgress
	}
	return val, false, nil
}

// Complete stores the result for replays.
func (s *Store) Complete(ctx context.Context, key, result string) error {
	if s == nil || key == "" {
		return nil
	}
	return s.client.Set(ctx, key, result, s.ttl).Err()
}

// Abandon frees the key after a failed request so the member can retry.
func (s *Store) Abandon(ctx context.Context, key string) error {
	if s == nil || key == "" {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}
