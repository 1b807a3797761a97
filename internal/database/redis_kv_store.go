package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bedtime-server/internal/interfaces"
	"bedtime-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ interfaces.KeyValueStore = (*redisKeyValueStore)(nil)

type redisKeyValueStore struct {
	client  redis.UniversalClient
	hashTTL time.Duration
	logger  *zap.Logger
}

// NewRedisKeyValueStore создает хранилище поверх go-redis.
// hashTTL > 0 продлевает время жизни хэша при каждом HSet.
func NewRedisKeyValueStore(client redis.UniversalClient, hashTTL time.Duration, logger *zap.Logger) interfaces.KeyValueStore {
	return &redisKeyValueStore{
		client:  client,
		hashTTL: hashTTL,
		logger:  logger.Named("RedisKVStore"),
	}
}

func (r *redisKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", models.ErrNotFound
		}
		r.logger.Debug("Redis GET failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *redisKeyValueStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *redisKeyValueStore) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := r.client.HGet(ctx, key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", models.ErrNotFound
		}
		return "", fmt.Errorf("redis hget %s %s: %w", key, field, err)
	}
	return val, nil
}

// HSet записывает поля хэша и (если задан hashTTL) обновляет EXPIRE в одном pipeline.
func (r *redisKeyValueStore) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(values)*2)
	for field, value := range values {
		args = append(args, field, value)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, args...)
		if r.hashTTL > 0 {
			pipe.Expire(ctx, key, r.hashTTL)
		}
		return nil
	})
	if err != nil {
		r.logger.Debug("Redis HSET pipeline failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

// HGetAll возвращает пустую карту, если ключа нет.
func (r *redisKeyValueStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	return vals, nil
}
