package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options задаёт подключение к Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Open создаёт клиента и проверяет соединение.
func Open(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 20
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
