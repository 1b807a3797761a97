package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions - параметры подключения к Redis.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
	RetryDelay time.Duration
}

// PostgresOptions - параметры пула соединений PostgreSQL.
type PostgresOptions struct {
	DSN         string
	MaxConns    int
	IdleTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// ConnectRedis создает клиент Redis и ждет успешного PING с повторами.
func ConnectRedis(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*redis.Client, error) {
	redisOpts := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	maxRetries := max(opts.MaxRetries, 1)
	logger.Info("Attempting to connect and ping Redis",
		zap.String("address", redisOpts.Addr),
		zap.Int("db", redisOpts.DB),
		zap.Int("max_retries", maxRetries),
		zap.Duration("retry_delay", opts.RetryDelay),
	)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		client := redis.NewClient(redisOpts)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err == nil {
			logger.Info("Successfully connected and pinged Redis", zap.Int("attempt", attempt))
			return client, nil
		}

		_ = client.Close()
		lastErr = err
		logger.Warn("Redis ping failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if attempt < maxRetries {
			if err := sleepCtx(ctx, opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}

// ConnectPostgres создает пул pgx и проверяет его через Ping с повторами.
func ConnectPostgres(ctx context.Context, opts PostgresOptions, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.IdleTimeout > 0 {
		poolCfg.MaxConnIdleTime = opts.IdleTimeout
	}

	maxRetries := max(opts.MaxRetries, 1)
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := pgxpool.NewWithConfig(attemptCtx, poolCfg)
		if err == nil {
			err = pool.Ping(attemptCtx)
			if err == nil {
				cancel()
				logger.Info("Successfully connected to PostgreSQL",
					zap.Int("attempt", attempt),
					zap.Int32("max_conns", poolCfg.MaxConns),
				)
				return pool, nil
			}
			pool.Close()
		}
		cancel()

		lastErr = err
		logger.Warn("PostgreSQL connection failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if attempt < maxRetries {
			if err := sleepCtx(ctx, opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", maxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
