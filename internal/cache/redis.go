// Package cache holds the Redis-backed pieces: the client, the sweeper lease and the
// readiness report cache.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JBD-GER/maklernull-sub000/internal/config"
	"github.com/JBD-GER/maklernull-sub000/internal/db"
)

const connectAttempts = 5

// ConnectRedis opens the client the API, the worker and asynq share. The first ping is
// retried so a worker started together with Redis does not exit.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}
	if err := db.WithRetries(ping, connectAttempts-1, func(error) bool { return true }); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis at %s unreachable after %d attempts: %w", cfg.RedisAddr, connectAttempts, err)
	}

	log.Printf("Connected to Redis at %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	return rdb, nil
}

func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	log.Println("Redis connection closed.")
	return nil
}
