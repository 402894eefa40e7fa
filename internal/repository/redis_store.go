package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultTxRetries = 16

// NewRedisClient REDIS_URL 로 클라이언트 생성 및 연결 확인
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// runOptimistic WATCH/MULTI/EXEC 트랜잭션. 다른 클라이언트가 먼저 커밋하면 처음부터 다시 읽음
func runOptimistic(ctx context.Context, client *redis.Client, key string, retries int, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < retries; attempt++ {
		err := client.Watch(ctx, fn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}
