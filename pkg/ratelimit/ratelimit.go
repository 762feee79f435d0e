// Package ratelimit builds request limiters backed by memory or Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiterlib "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

type Config struct {
	RedisAddr string
	RedisDB   int
	Prefix    string
}

// Store owns the limiter backend and any connection it opened.
type Store struct {
	limiterlib.Store
	client *redis.Client
}

// NewStore uses Redis when an address is configured so limits hold across replicas,
// and an in-process store otherwise.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "limiter"
	}

	if cfg.RedisAddr == "" {
		return &Store{
			Store: memory.NewStoreWithOptions(limiterlib.StoreOptions{
				Prefix:          prefix,
				CleanUpInterval: time.Minute,
			}),
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	store, err := sredis.NewStoreWithOptions(client, limiterlib.StoreOptions{Prefix: prefix})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create redis limiter store: %w", err)
	}
	return &Store{Store: store, client: client}, nil
}

// Ping checks the Redis connection; the in-process store is always reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// New parses a "<limit>-<period>" rate such as "10-M" or "1000-H".
func New(store limiterlib.Store, formatted string) (*limiterlib.Limiter, error) {
	rate, err := limiterlib.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid limit format %q: %w", formatted, err)
	}
	return limiterlib.New(store, rate), nil
}
