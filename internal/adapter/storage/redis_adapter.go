package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vintrack/cellar/internal/core/domain"
)

const (
	summaryKey          = "report:summary"
	resetTokenKeyPrefix = "resettoken:"
)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetSummary(ctx context.Context) (*domain.Summary, bool, error) {
	raw, err := r.client.Get(ctx, summaryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get summary: %w", err)
	}

	var s domain.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("decode summary: %w", err)
	}
	return &s, true, nil
}

func (r *RedisAdapter) SetSummary(ctx context.Context, s *domain.Summary, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return r.client.Set(ctx, summaryKey, raw, ttl).Err()
}

// MarkResetTokenUsed wins the SETNX race exactly once per token ID; a second
// call for the same jti reports the token as already consumed.
func (r *RedisAdapter) MarkResetTokenUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, resetTokenKeyPrefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark reset token: %w", err)
	}
	return ok, nil
}
