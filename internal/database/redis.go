package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDialTimeout = 5 * time.Second

// ConnectRedis configures the Redis client backing duplicate-order
// fingerprints, last-event caches, and cross-node event fanout. URL options
// win; only absent pool settings get gateway defaults.
func ConnectRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if options.PoolSize == 0 {
		options.PoolSize = 20
	}
	if options.MinIdleConns == 0 {
		options.MinIdleConns = 2
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return client, nil
}
