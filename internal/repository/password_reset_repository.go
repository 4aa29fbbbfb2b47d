package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key format: reset:used:<jti>
const resetKeyPrefix = "reset:used:"

type redisPasswordResetRepository struct {
	client *redis.Client
}

// NewRedisPasswordResetRepository records consumed reset tokens in Redis so
// single use holds across replicas.
func NewRedisPasswordResetRepository(client *redis.Client) PasswordResetRepository {
	return &redisPasswordResetRepository{client: client}
}

func (r *redisPasswordResetRepository) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	ok, err := r.client.SetNX(ctx, resetKeyPrefix+tokenID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark reset token used: %w", err)
	}
	return ok, nil
}
